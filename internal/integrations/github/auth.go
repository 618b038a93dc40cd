package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cli/go-gh/v2/pkg/auth"
	"github.com/google/go-github/v60/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/similigh/gl2gh/internal/retry"
)

// Options configures a Client.
type Options struct {
	// Repo is the target repository, "owner/repo".
	Repo  string
	Token string

	// APIURL points at a GitHub Enterprise REST endpoint. Empty means github.com.
	APIURL string

	// ReleaseTag and ReleaseName identify the draft release holding attachments.
	ReleaseTag  string
	ReleaseName string

	// HTTPClient overrides the oauth2 client, mainly for tests.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewClient creates a new GitHub target client for opts.Repo.
// If opts.Token is empty, it returns an unauthenticated client.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	owner, repo, ok := strings.Cut(opts.Repo, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return nil, fmt.Errorf("invalid github repository %q: expected owner/repo", opts.Repo)
	}

	tc := opts.HTTPClient
	if tc == nil && opts.Token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: opts.Token},
		)
		tc = oauth2.NewClient(ctx, ts)
	}

	client := github.NewClient(tc)
	if opts.APIURL != "" {
		base, err := url.Parse(strings.TrimSuffix(opts.APIURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid github api url: %w", err)
		}
		client.BaseURL = base
		client.UploadURL = base
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		client:      client,
		graphql:     NewGraphQLClient(tc, graphQLEndpointFor(client.BaseURL), opts.Token),
		owner:       owner,
		repo:        repo,
		releaseTag:  opts.ReleaseTag,
		releaseName: opts.ReleaseName,
		retry:       retry.DefaultConfig(),
		logger:      logger,
	}, nil
}

// graphQLEndpointFor derives the GraphQL endpoint from the REST base URL.
func graphQLEndpointFor(base *url.URL) string {
	if base == nil || base.Host == "api.github.com" {
		return defaultGraphQLEndpoint
	}
	u := *base
	path := strings.TrimSuffix(u.Path, "/")
	if strings.HasSuffix(path, "/v3") {
		path = strings.TrimSuffix(path, "/v3")
	}
	u.Path = path + "/graphql"
	return u.String()
}

// ResolveToken returns the first non-empty token from the given candidates,
// falling back to the credentials stored by the gh CLI for host.
func ResolveToken(host string, candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	if host == "" {
		host = "github.com"
	}
	token, _ := auth.TokenForHost(host)
	return token
}
