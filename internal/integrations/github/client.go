// Package github implements the migration target on top of the GitHub REST
// and GraphQL APIs.
package github

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/google/go-github/v60/github"
	"go.uber.org/zap"

	"github.com/similigh/gl2gh/internal/core/tracker"
	"github.com/similigh/gl2gh/internal/retry"
)

// maxDescriptionLength is GitHub's limit for repository descriptions.
const maxDescriptionLength = 350

var controlChars = regexp.MustCompile(`[\x00-\x08\x0b-\x1f\x7f-\x9f]`)

// Client wraps the GitHub API client and implements tracker.Target for one repository.
type Client struct {
	client  *github.Client
	graphql *GraphQLClient

	owner string
	repo  string

	releaseTag  string
	releaseName string

	retry  retry.Config
	logger *zap.Logger

	releaseMu sync.Mutex
	releaseID int64
}

var _ tracker.Target = (*Client)(nil)

// statusOf returns the HTTP status carried by a go-github error, or 0.
func statusOf(err error) int {
	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		return er.Response.StatusCode
	}
	return 0
}

// retryable classifies go-github errors for read retries.
func retryable(err error) bool {
	var rl *github.RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var abuse *github.AbuseRateLimitError
	if errors.As(err, &abuse) {
		return true
	}
	if code := statusOf(err); code != 0 {
		return code == http.StatusTooManyRequests || code >= 500
	}
	return retry.IsRetryable(err)
}

// SanitizeDescription strips characters GitHub rejects in repository
// descriptions and caps the length.
func SanitizeDescription(description string) string {
	s := strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(description)
	s = controlChars.ReplaceAllString(s, "")
	if r := []rune(s); len(r) > maxDescriptionLength {
		s = string(r[:maxDescriptionLength])
	}
	return strings.TrimSpace(s)
}

// CheckAccess verifies the token by fetching the authenticated user.
func (c *Client) CheckAccess(ctx context.Context) error {
	_, err := retry.Do(ctx, c.retry, "github access check", retryable, func() (*github.User, error) {
		u, _, err := c.client.Users.Get(ctx, "")
		return u, err
	})
	if err != nil {
		return fmt.Errorf("failed to authenticate with github: %w", err)
	}
	return nil
}

// RepositoryExists reports whether the target repository is already there.
func (c *Client) RepositoryExists(ctx context.Context) (bool, error) {
	_, err := retry.Do(ctx, c.retry, "get repository", retryable, func() (*github.Repository, error) {
		r, _, err := c.client.Repositories.Get(ctx, c.owner, c.repo)
		return r, err
	})
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to fetch repository: %w", err)
	}
	return true, nil
}

// CreateRepository creates a private repository with issues enabled, under
// the owner organization or, when the owner is not an organization, under
// the authenticated user.
func (c *Client) CreateRepository(ctx context.Context, description string) error {
	repo := &github.Repository{
		Name:        github.String(c.repo),
		Description: github.String(SanitizeDescription(description)),
		Private:     github.Bool(true),
		HasIssues:   github.Bool(true),
	}

	org := c.owner
	if _, _, err := c.client.Organizations.Get(ctx, c.owner); err != nil {
		if statusOf(err) != http.StatusNotFound {
			return fmt.Errorf("failed to look up owner %s: %w", c.owner, err)
		}
		user, _, err := c.client.Users.Get(ctx, "")
		if err != nil {
			return fmt.Errorf("failed to fetch authenticated user: %w", err)
		}
		if user.GetLogin() != c.owner {
			return fmt.Errorf("cannot create repository for %q: not an organization and not the authenticated user %q", c.owner, user.GetLogin())
		}
		org = ""
	}

	if _, _, err := c.client.Repositories.Create(ctx, org, repo); err != nil {
		return fmt.Errorf("failed to create repository: %w", err)
	}
	c.logger.Info("repository created", zap.String("repo", c.owner+"/"+c.repo), zap.Bool("organization", org != ""))
	return nil
}

// CreateItem creates an issue or milestone and returns the number GitHub assigned.
// Creation is never retried: a retried POST could allocate a second number.
func (c *Client) CreateItem(ctx context.Context, kind tracker.Kind, p tracker.Payload) (*tracker.Created, error) {
	switch kind {
	case tracker.KindMilestone:
		m := &github.Milestone{
			Title:       github.String(p.Title),
			Description: github.String(p.Body),
		}
		if p.State != "" {
			m.State = github.String(string(p.State))
		}
		if p.DueDate != nil {
			m.DueOn = &github.Timestamp{Time: *p.DueDate}
		}
		created, _, err := c.client.Issues.CreateMilestone(ctx, c.owner, c.repo, m)
		if err != nil {
			return nil, fmt.Errorf("failed to create milestone: %w", err)
		}
		return &tracker.Created{Number: created.GetNumber(), ID: created.GetID(), URL: created.GetHTMLURL()}, nil

	case tracker.KindIssue:
		req := &github.IssueRequest{
			Title: github.String(p.Title),
			Body:  github.String(p.Body),
		}
		if len(p.Labels) > 0 {
			labels := append([]string(nil), p.Labels...)
			req.Labels = &labels
		}
		if p.Milestone > 0 {
			req.Milestone = github.Int(p.Milestone)
		}
		created, _, err := c.client.Issues.Create(ctx, c.owner, c.repo, req)
		if err != nil {
			return nil, fmt.Errorf("failed to create issue: %w", err)
		}
		return &tracker.Created{Number: created.GetNumber(), ID: created.GetID(), URL: created.GetHTMLURL()}, nil
	}
	return nil, fmt.Errorf("unsupported item kind %q", kind)
}

// EditState opens or closes an issue or milestone.
func (c *Client) EditState(ctx context.Context, kind tracker.Kind, number int, state tracker.State) error {
	var err error
	switch kind {
	case tracker.KindMilestone:
		_, _, err = c.client.Issues.EditMilestone(ctx, c.owner, c.repo, number, &github.Milestone{State: github.String(string(state))})
	case tracker.KindIssue:
		_, _, err = c.client.Issues.Edit(ctx, c.owner, c.repo, number, &github.IssueRequest{State: github.String(string(state))})
	default:
		return fmt.Errorf("unsupported item kind %q", kind)
	}
	if err != nil {
		return fmt.Errorf("failed to set %s #%d %s: %w", kind, number, state, err)
	}
	return nil
}

// CreateComment posts a comment on an issue.
func (c *Client) CreateComment(ctx context.Context, number int, body string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("comment body cannot be empty")
	}

	comment := &github.IssueComment{
		Body: github.String(body),
	}
	_, _, err := c.client.Issues.CreateComment(ctx, c.owner, c.repo, number, comment)
	if err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

// ListItems returns every issue or milestone in the repository, open and closed.
// Pull requests are excluded.
func (c *Client) ListItems(ctx context.Context, kind tracker.Kind) ([]tracker.TargetItem, error) {
	switch kind {
	case tracker.KindMilestone:
		ms, err := listAll(ctx, c, "list milestones", func(opt github.ListOptions) ([]*github.Milestone, *github.Response, error) {
			return c.client.Issues.ListMilestones(ctx, c.owner, c.repo, &github.MilestoneListOptions{State: "all", ListOptions: opt})
		})
		if err != nil {
			return nil, err
		}
		out := make([]tracker.TargetItem, 0, len(ms))
		for _, m := range ms {
			out = append(out, tracker.TargetItem{Number: m.GetNumber(), ID: m.GetID(), Title: m.GetTitle(), State: tracker.State(m.GetState())})
		}
		return out, nil

	case tracker.KindIssue:
		issues, err := listAll(ctx, c, "list issues", func(opt github.ListOptions) ([]*github.Issue, *github.Response, error) {
			return c.client.Issues.ListByRepo(ctx, c.owner, c.repo, &github.IssueListByRepoOptions{State: "all", ListOptions: opt})
		})
		if err != nil {
			return nil, err
		}
		out := make([]tracker.TargetItem, 0, len(issues))
		for _, i := range issues {
			if i.IsPullRequest() {
				continue
			}
			out = append(out, tracker.TargetItem{Number: i.GetNumber(), ID: i.GetID(), Title: i.GetTitle(), State: tracker.State(i.GetState())})
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported item kind %q", kind)
}

// DeleteItem removes a milestone, or an issue through GraphQL.
func (c *Client) DeleteItem(ctx context.Context, kind tracker.Kind, number int) error {
	switch kind {
	case tracker.KindMilestone:
		if _, err := c.client.Issues.DeleteMilestone(ctx, c.owner, c.repo, number); err != nil {
			return fmt.Errorf("failed to delete milestone #%d: %w", number, err)
		}
		return nil
	case tracker.KindIssue:
		nodeID, err := retry.Do(ctx, c.retry, "get issue node id", nil, func() (string, error) {
			return c.graphql.GetIssueNodeID(ctx, c.owner, c.repo, number)
		})
		if err != nil {
			return err
		}
		if err := c.graphql.DeleteIssue(ctx, nodeID); err != nil {
			return fmt.Errorf("issue #%d: %w", number, err)
		}
		return nil
	}
	return fmt.Errorf("unsupported item kind %q", kind)
}

// ListLabels returns every label defined in the repository.
func (c *Client) ListLabels(ctx context.Context) ([]tracker.Label, error) {
	labels, err := listAll(ctx, c, "list labels", func(opt github.ListOptions) ([]*github.Label, *github.Response, error) {
		return c.client.Issues.ListLabels(ctx, c.owner, c.repo, &opt)
	})
	if err != nil {
		return nil, err
	}
	out := make([]tracker.Label, 0, len(labels))
	for _, l := range labels {
		out = append(out, tracker.Label{Name: l.GetName(), Color: l.GetColor(), Description: l.GetDescription()})
	}
	return out, nil
}

// CreateLabel creates a repository label.
func (c *Client) CreateLabel(ctx context.Context, l tracker.Label) error {
	label := &github.Label{
		Name:  github.String(l.Name),
		Color: github.String(strings.TrimPrefix(l.Color, "#")),
	}
	if l.Description != "" {
		label.Description = github.String(l.Description)
	}
	if _, _, err := c.client.Issues.CreateLabel(ctx, c.owner, c.repo, label); err != nil {
		return fmt.Errorf("failed to create label: %w", err)
	}
	return nil
}

// UploadAttachment stores data as an asset of the draft attachments release
// and returns its download URL.
func (c *Client) UploadAttachment(ctx context.Context, data []byte, name string) (string, error) {
	releaseID, err := c.attachmentsRelease(ctx)
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(name)
	f, err := os.CreateTemp("", "gl2gh-asset-*"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return "", fmt.Errorf("failed to rewind temp file: %w", err)
	}

	asset, _, err := c.client.Repositories.UploadReleaseAsset(ctx, c.owner, c.repo, releaseID, &github.UploadOptions{Name: name, MediaType: mime.TypeByExtension(ext)}, f)
	if err != nil {
		return "", fmt.Errorf("failed to upload asset %s: %w", name, err)
	}
	return asset.GetBrowserDownloadURL(), nil
}

// attachmentsRelease finds or creates the draft release that holds attachments.
func (c *Client) attachmentsRelease(ctx context.Context) (int64, error) {
	c.releaseMu.Lock()
	defer c.releaseMu.Unlock()
	if c.releaseID != 0 {
		return c.releaseID, nil
	}

	releases, err := listAll(ctx, c, "list releases", func(opt github.ListOptions) ([]*github.RepositoryRelease, *github.Response, error) {
		return c.client.Repositories.ListReleases(ctx, c.owner, c.repo, &opt)
	})
	if err != nil {
		return 0, err
	}
	for _, r := range releases {
		if r.GetTagName() == c.releaseTag {
			c.releaseID = r.GetID()
			return c.releaseID, nil
		}
	}

	created, _, err := c.client.Repositories.CreateRelease(ctx, c.owner, c.repo, &github.RepositoryRelease{
		TagName: github.String(c.releaseTag),
		Name:    github.String(c.releaseName),
		Body:    github.String("Storage for migrated GitLab attachments. Do not delete."),
		Draft:   github.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create attachments release: %w", err)
	}
	c.logger.Info("attachments release created", zap.String("tag", c.releaseTag))
	c.releaseID = created.GetID()
	return c.releaseID, nil
}

// CreateSubIssue attaches the issue with childID under parentNumber.
func (c *Client) CreateSubIssue(ctx context.Context, parentNumber int, childID int64) error {
	path := fmt.Sprintf("repos/%s/%s/issues/%d/sub_issues", c.owner, c.repo, parentNumber)
	return c.link(ctx, path, map[string]int64{"sub_issue_id": childID})
}

// ListSubIssues returns the IDs of the sub-issues of parentNumber.
func (c *Client) ListSubIssues(ctx context.Context, parentNumber int) ([]int64, error) {
	path := fmt.Sprintf("repos/%s/%s/issues/%d/sub_issues", c.owner, c.repo, parentNumber)
	return c.linkedIDs(ctx, path)
}

// CreateBlockedBy records that blockedNumber is blocked by the issue with blockingID.
func (c *Client) CreateBlockedBy(ctx context.Context, blockedNumber int, blockingID int64) error {
	path := fmt.Sprintf("repos/%s/%s/issues/%d/dependencies/blocked_by", c.owner, c.repo, blockedNumber)
	return c.link(ctx, path, map[string]int64{"issue_id": blockingID})
}

// ListBlockedBy returns the IDs of the issues blocking blockedNumber.
func (c *Client) ListBlockedBy(ctx context.Context, blockedNumber int) ([]int64, error) {
	path := fmt.Sprintf("repos/%s/%s/issues/%d/dependencies/blocked_by", c.owner, c.repo, blockedNumber)
	return c.linkedIDs(ctx, path)
}

// link posts to an issue relationship endpoint. go-github has no typed
// wrappers for these yet.
func (c *Client) link(ctx context.Context, path string, body interface{}) error {
	req, err := c.client.NewRequest(http.MethodPost, path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if _, err := c.client.Do(ctx, req, nil); err != nil {
		if statusOf(err) == http.StatusUnprocessableEntity {
			return fmt.Errorf("%s: %w: %w", path, tracker.ErrAlreadyLinked, err)
		}
		return fmt.Errorf("failed to create link: %w", err)
	}
	return nil
}

func (c *Client) linkedIDs(ctx context.Context, path string) ([]int64, error) {
	issues, err := retry.Do(ctx, c.retry, "list linked issues", retryable, func() ([]*github.Issue, error) {
		req, err := c.client.NewRequest(http.MethodGet, path+"?per_page=100", nil)
		if err != nil {
			return nil, err
		}
		var issues []*github.Issue
		if _, err := c.client.Do(ctx, req, &issues); err != nil {
			return nil, err
		}
		return issues, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list linked issues: %w", err)
	}
	ids := make([]int64, 0, len(issues))
	for _, i := range issues {
		ids = append(ids, i.GetID())
	}
	return ids, nil
}

type page[T any] struct {
	items []T
	next  int
}

// listAll walks every page of a list endpoint, retrying each page on
// transient failures.
func listAll[T any](ctx context.Context, c *Client, operation string, fetch func(opt github.ListOptions) ([]T, *github.Response, error)) ([]T, error) {
	var all []T
	opt := github.ListOptions{PerPage: 100}
	for {
		p, err := retry.Do(ctx, c.retry, operation, retryable, func() (page[T], error) {
			items, resp, err := fetch(opt)
			if err != nil {
				return page[T]{}, err
			}
			next := 0
			if resp != nil {
				next = resp.NextPage
			}
			return page[T]{items: items, next: next}, nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to %s: %w", operation, err)
		}
		all = append(all, p.items...)
		if p.next == 0 {
			return all, nil
		}
		opt.Page = p.next
	}
}

// GetFileContent fetches a file from any repository the token can read.
// It serves remote configuration for "extends".
func (c *Client) GetFileContent(ctx context.Context, org, repo, path, ref string) ([]byte, error) {
	opts := &github.RepositoryContentGetOptions{Ref: ref}
	file, err := retry.Do(ctx, c.retry, "get file content", retryable, func() (*github.RepositoryContent, error) {
		f, _, _, err := c.client.Repositories.GetContents(ctx, org, repo, path, opts)
		return f, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get file content: %w", err)
	}
	if file == nil {
		return nil, fmt.Errorf("%s is not a file", path)
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode file content: %w", err)
	}
	return []byte(content), nil
}
