package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/similigh/gl2gh/internal/retry"
)

// NewClient creates a new GitLab client for one project.
func NewClient(token, baseURL, projectID string) *Client {
	return &Client{
		Token:     token,
		BaseURL:   strings.TrimSuffix(baseURL, "/"),
		ProjectID: projectID,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		Retry: retry.DefaultConfig(),
	}
}

// WithEndpoint returns a copy of the client pointed at a different API endpoint.
func (c *Client) WithEndpoint(endpoint string) *Client {
	clone := *c
	clone.BaseURL = strings.TrimSuffix(endpoint, "/")
	return &clone
}

// instanceURL is the GitLab host without the API suffix.
func (c *Client) instanceURL() string {
	return strings.TrimSuffix(c.BaseURL, DefaultAPIEndpoint)
}

func (c *Client) projectPath() string {
	return url.PathEscape(c.ProjectID)
}

func (c *Client) buildURL(path string, params map[string]string) string {
	u := c.instanceURL() + DefaultAPIEndpoint + path
	if len(params) == 0 {
		return u
	}
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	return u + "?" + q.Encode()
}

// get performs one authenticated GET with retries on transient failures.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, http.Header, error) {
	type response struct {
		body   []byte
		header http.Header
	}
	resp, err := retry.Do(ctx, c.Retry, "GET "+redactQuery(rawURL), nil, func() (response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return response{}, err
		}
		req.Header.Set("PRIVATE-TOKEN", c.Token)
		req.Header.Set("Accept", "application/json")

		res, err := c.HTTPClient.Do(req)
		if err != nil {
			return response{}, err
		}
		defer res.Body.Close()

		body, err := io.ReadAll(res.Body)
		if err != nil {
			return response{}, fmt.Errorf("failed to read response: %w", err)
		}
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			msg := string(body)
			if len(msg) > 200 {
				msg = msg[:200] + "..."
			}
			return response{}, &retry.StatusError{StatusCode: res.StatusCode, Message: msg}
		}
		return response{body: body, header: res.Header}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return resp.body, resp.header, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params map[string]string, v interface{}) error {
	body, _, err := c.get(ctx, c.buildURL(path, params))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", path, err)
	}
	return nil
}

// fetchAll follows X-Next-Page until the last page or MaxPages.
func fetchAll[T any](ctx context.Context, c *Client, path string, params map[string]string) ([]T, error) {
	query := map[string]string{"per_page": strconv.Itoa(MaxPageSize)}
	for k, v := range params {
		query[k] = v
	}

	var all []T
	page := 1
	for i := 0; i < MaxPages; i++ {
		query["page"] = strconv.Itoa(page)
		body, header, err := c.get(ctx, c.buildURL(path, query))
		if err != nil {
			return nil, err
		}
		var items []T
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("failed to parse response from %s: %w", path, err)
		}
		all = append(all, items...)

		next, err := strconv.Atoi(header.Get("X-Next-Page"))
		if err != nil || next <= page {
			return all, nil
		}
		page = next
	}
	return all, nil
}

// FetchProject returns the configured project.
func (c *Client) FetchProject(ctx context.Context) (*Project, error) {
	var p Project
	if err := c.getJSON(ctx, "/projects/"+c.projectPath(), nil, &p); err != nil {
		return nil, fmt.Errorf("failed to fetch project %s: %w", c.ProjectID, err)
	}
	return &p, nil
}

// FetchIssues returns all issues in the given state ("opened", "closed", "all").
func (c *Client) FetchIssues(ctx context.Context, state string) ([]Issue, error) {
	issues, err := fetchAll[Issue](ctx, c, "/projects/"+c.projectPath()+"/issues", map[string]string{
		"state":    state,
		"order_by": "created_at",
		"sort":     "asc",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch issues: %w", err)
	}
	return issues, nil
}

// FetchMilestones returns every project milestone, active and closed.
func (c *Client) FetchMilestones(ctx context.Context) ([]Milestone, error) {
	ms, err := fetchAll[Milestone](ctx, c, "/projects/"+c.projectPath()+"/milestones", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch milestones: %w", err)
	}
	return ms, nil
}

// FetchLabels returns the labels defined on the project.
func (c *Client) FetchLabels(ctx context.Context) ([]Label, error) {
	labels, err := fetchAll[Label](ctx, c, "/projects/"+c.projectPath()+"/labels", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch labels: %w", err)
	}
	return labels, nil
}

// FetchNotes returns the notes of an issue, oldest first.
func (c *Client) FetchNotes(ctx context.Context, iid int) ([]Note, error) {
	path := fmt.Sprintf("/projects/%s/issues/%d/notes", c.projectPath(), iid)
	notes, err := fetchAll[Note](ctx, c, path, map[string]string{
		"order_by": "created_at",
		"sort":     "asc",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notes for issue #%d: %w", iid, err)
	}
	return notes, nil
}

// FetchIssueLinks returns the issues linked to iid. Each entry carries its LinkType.
func (c *Client) FetchIssueLinks(ctx context.Context, iid int) ([]Issue, error) {
	path := fmt.Sprintf("/projects/%s/issues/%d/links", c.projectPath(), iid)
	var links []Issue
	if err := c.getJSON(ctx, path, nil, &links); err != nil {
		return nil, fmt.Errorf("failed to fetch links for issue #%d: %w", iid, err)
	}
	return links, nil
}

// DownloadUpload fetches an upload referenced as /uploads/<secret>/<file>
// relative to the project web URL.
func (c *Client) DownloadUpload(ctx context.Context, projectWebURL, locator string) ([]byte, error) {
	body, _, err := c.get(ctx, strings.TrimSuffix(projectWebURL, "/")+locator)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", locator, err)
	}
	return body, nil
}

const workItemChildrenQuery = `
	query($projectPath: ID!, $iid: String!) {
		project(fullPath: $projectPath) {
			workItem(iid: $iid) {
				widgets {
					type
					... on WorkItemWidgetHierarchy {
						children {
							nodes {
								iid
								title
								state
								workItemType { name }
								webUrl
							}
						}
					}
				}
			}
		}
	}
`

// FetchWorkItemChildren returns the hierarchy children of issue iid. The REST
// API does not expose work item hierarchy, so this goes through GraphQL.
func (c *Client) FetchWorkItemChildren(ctx context.Context, projectFullPath string, iid int) ([]WorkItemChild, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"query": workItemChildrenQuery,
		"variables": map[string]interface{}{
			"projectPath": projectFullPath,
			"iid":         strconv.Itoa(iid),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	body, err := retry.Do(ctx, c.Retry, "gitlab graphql", nil, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.instanceURL()+"/api/graphql", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.Token)

		res, err := c.HTTPClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()
		b, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, err
		}
		if res.StatusCode != http.StatusOK {
			return nil, &retry.StatusError{StatusCode: res.StatusCode, Message: "GraphQL request failed"}
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			Project *struct {
				WorkItem *struct {
					Widgets []struct {
						Type     string `json:"type"`
						Children *struct {
							Nodes []struct {
								IID          string `json:"iid"`
								Title        string `json:"title"`
								State        string `json:"state"`
								WebURL       string `json:"webUrl"`
								WorkItemType struct {
									Name string `json:"name"`
								} `json:"workItemType"`
							} `json:"nodes"`
						} `json:"children"`
					} `json:"widgets"`
				} `json:"workItem"`
			} `json:"project"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse GraphQL response: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("GraphQL error: %s", resp.Errors[0].Message)
	}
	if resp.Data.Project == nil || resp.Data.Project.WorkItem == nil {
		return nil, nil
	}

	var children []WorkItemChild
	for _, w := range resp.Data.Project.WorkItem.Widgets {
		if w.Type != "HIERARCHY" || w.Children == nil {
			continue
		}
		for _, n := range w.Children.Nodes {
			childIID, err := strconv.Atoi(n.IID)
			if err != nil {
				return nil, fmt.Errorf("invalid work item iid %q: %w", n.IID, err)
			}
			children = append(children, WorkItemChild{
				IID:    childIID,
				Title:  n.Title,
				State:  n.State,
				Type:   n.WorkItemType.Name,
				WebURL: n.WebURL,
			})
		}
	}
	return children, nil
}

// redactQuery drops the query string so log lines and errors stay short.
func redactQuery(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
