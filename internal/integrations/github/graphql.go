package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/similigh/gl2gh/internal/retry"
)

const defaultGraphQLEndpoint = "https://api.github.com/graphql"

const (
	issueNodeIDQuery = `query($owner: String!, $repo: String!, $number: Int!) {
  repository(owner: $owner, name: $repo) { issue(number: $number) { id } }
}`

	deleteIssueMutation = `mutation($issueId: ID!) {
  deleteIssue(input: {issueId: $issueId}) { clientMutationId }
}`
)

// GraphQLClient covers the few operations GitHub only offers over GraphQL.
type GraphQLClient struct {
	httpClient *http.Client
	endpoint   string
	token      string
}

// NewGraphQLClient creates a GraphQL client. A nil httpClient uses
// http.DefaultClient; an empty endpoint means github.com.
func NewGraphQLClient(httpClient *http.Client, endpoint, token string) *GraphQLClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if endpoint == "" {
		endpoint = defaultGraphQLEndpoint
	}
	return &GraphQLClient{httpClient: httpClient, endpoint: endpoint, token: token}
}

type gqlError struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

// execute posts one query and decodes its data into out, which may be nil.
// HTTP failures come back as *retry.StatusError so callers can classify them.
func (c *GraphQLClient) execute(ctx context.Context, query string, vars map[string]any, out any) error {
	payload, err := json.Marshal(struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables,omitempty"`
	}{query, vars})
	if err != nil {
		return fmt.Errorf("failed to encode graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("graphql request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read graphql response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(raw)
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		return fmt.Errorf("graphql request failed: %w", &retry.StatusError{StatusCode: resp.StatusCode, Message: msg})
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []gqlError      `json:"errors"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("failed to decode graphql response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		msgs := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("graphql: %s", strings.Join(msgs, "; "))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to decode graphql data: %w", err)
	}
	return nil
}

// GetIssueNodeID returns the global node ID of owner/repo#number.
func (c *GraphQLClient) GetIssueNodeID(ctx context.Context, owner, repo string, number int) (string, error) {
	var data struct {
		Repository struct {
			Issue *struct {
				ID string `json:"id"`
			} `json:"issue"`
		} `json:"repository"`
	}
	vars := map[string]any{"owner": owner, "repo": repo, "number": number}
	if err := c.execute(ctx, issueNodeIDQuery, vars, &data); err != nil {
		return "", err
	}
	if data.Repository.Issue == nil || data.Repository.Issue.ID == "" {
		return "", fmt.Errorf("issue %s/%s#%d not found", owner, repo, number)
	}
	return data.Repository.Issue.ID, nil
}

// DeleteIssue permanently deletes an issue. The REST API has no equivalent
// and the token needs admin rights on the repository.
func (c *GraphQLClient) DeleteIssue(ctx context.Context, nodeID string) error {
	if err := c.execute(ctx, deleteIssueMutation, map[string]any{"issueId": nodeID}, nil); err != nil {
		return fmt.Errorf("failed to delete issue: %w", err)
	}
	return nil
}
