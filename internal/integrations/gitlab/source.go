package gitlab

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/similigh/gl2gh/internal/core/tracker"
)

// Source implements tracker.Source for a single GitLab project.
type Source struct {
	client *Client
	logger *zap.Logger

	mu      sync.Mutex
	project *Project
}

var _ tracker.Source = (*Source)(nil)

// NewSource wraps client as a migration source.
func NewSource(client *Client, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{client: client, logger: logger}
}

func (s *Source) loadProject(ctx context.Context) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.project != nil {
		return s.project, nil
	}
	p, err := s.client.FetchProject(ctx)
	if err != nil {
		return nil, err
	}
	s.project = p
	return p, nil
}

// CheckAccess verifies the token can read the project.
func (s *Source) CheckAccess(ctx context.Context) error {
	_, err := s.loadProject(ctx)
	return err
}

// Project describes the source project.
func (s *Source) Project(ctx context.Context) (*tracker.Project, error) {
	p, err := s.loadProject(ctx)
	if err != nil {
		return nil, err
	}
	return &tracker.Project{
		Path:        p.PathWithNamespace,
		Name:        p.Name,
		Description: p.Description,
		WebURL:      p.WebURL,
		HTTPURL:     p.HTTPURLToRepo,
	}, nil
}

// ListItems returns every issue or milestone, sorted by number.
func (s *Source) ListItems(ctx context.Context, kind tracker.Kind) ([]tracker.Item, error) {
	var items []tracker.Item
	switch kind {
	case tracker.KindIssue:
		issues, err := s.client.FetchIssues(ctx, "all")
		if err != nil {
			return nil, err
		}
		for i := range issues {
			items = append(items, issueToItem(&issues[i]))
		}
	case tracker.KindMilestone:
		ms, err := s.client.FetchMilestones(ctx)
		if err != nil {
			return nil, err
		}
		for i := range ms {
			item, err := milestoneToItem(&ms[i])
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	default:
		return nil, fmt.Errorf("unsupported item kind %q", kind)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Number < items[j].Number })
	return items, nil
}

// ListLabels returns the project labels with colors normalised to bare hex.
func (s *Source) ListLabels(ctx context.Context) ([]tracker.Label, error) {
	labels, err := s.client.FetchLabels(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]tracker.Label, 0, len(labels))
	for _, l := range labels {
		out = append(out, tracker.Label{
			Name:        l.Name,
			Color:       strings.TrimPrefix(l.Color, "#"),
			Description: l.Description,
		})
	}
	return out, nil
}

// Comments returns the notes of an issue in creation order, system notes included.
func (s *Source) Comments(ctx context.Context, number int) ([]tracker.Comment, error) {
	notes, err := s.client.FetchNotes(ctx, number)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(notes, func(i, j int) bool {
		return timeOf(notes[i].CreatedAt).Before(timeOf(notes[j].CreatedAt))
	})

	out := make([]tracker.Comment, 0, len(notes))
	for _, n := range notes {
		c := tracker.Comment{
			CreatedAt: timeOf(n.CreatedAt),
			Body:      n.Body,
			System:    n.System,
		}
		if n.Author != nil {
			c.AuthorName = n.Author.Name
			c.AuthorHandle = n.Author.Username
		}
		out = append(out, c)
	}
	return out, nil
}

// Relationships returns the hierarchy children and issue links of an issue.
// When only the hierarchy lookup fails, the links are returned together with
// a *tracker.IncompleteError.
func (s *Source) Relationships(ctx context.Context, number int) ([]tracker.Edge, error) {
	p, err := s.loadProject(ctx)
	if err != nil {
		return nil, err
	}

	var edges []tracker.Edge
	var incomplete error

	children, err := s.client.FetchWorkItemChildren(ctx, p.PathWithNamespace, number)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("failed to fetch work item children", zap.Int("issue", number), zap.Error(err))
		incomplete = &tracker.IncompleteError{Missing: "child items", Err: err}
	}
	for _, child := range children {
		e := tracker.Edge{Kind: tracker.EdgeParentOf, From: number, To: child.IID, ToTitle: child.Title}
		if child.WebURL != "" && !strings.HasPrefix(child.WebURL, strings.TrimSuffix(p.WebURL, "/")+"/") {
			e = tracker.Edge{
				Kind:     tracker.EdgeCrossProject,
				From:     number,
				LinkType: "child_of",
				External: &tracker.ExternalRef{
					Path:   projectPathFromURL(child.WebURL),
					Number: child.IID,
					WebURL: child.WebURL,
					Title:  child.Title,
				},
			}
		}
		edges = append(edges, e)
	}

	links, err := s.client.FetchIssueLinks(ctx, number)
	if err != nil {
		return nil, err
	}
	for i := range links {
		edges = append(edges, linkToEdge(p, number, &links[i]))
	}

	s.logger.Debug("relationships discovered", zap.Int("issue", number), zap.Int("children", len(children)), zap.Int("links", len(links)))
	return edges, incomplete
}

// FetchAttachment downloads an upload referenced from issue or note text.
func (s *Source) FetchAttachment(ctx context.Context, locator string) ([]byte, error) {
	p, err := s.loadProject(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.DownloadUpload(ctx, p.WebURL, locator)
}

func issueToItem(gl *Issue) tracker.Item {
	item := tracker.Item{
		Kind:      tracker.KindIssue,
		Number:    gl.IID,
		Title:     gl.Title,
		Body:      gl.Description,
		State:     stateOf(gl.State),
		CreatedAt: timeOf(gl.CreatedAt),
		WebURL:    gl.WebURL,
		Labels:    gl.Labels,
	}
	if gl.Author != nil {
		item.AuthorName = gl.Author.Name
		item.AuthorHandle = gl.Author.Username
	}
	// Group milestones have no project-scoped number to preserve.
	if gl.Milestone != nil && gl.Milestone.GroupID == 0 {
		item.MilestoneNumber = gl.Milestone.IID
	}
	return item
}

func milestoneToItem(m *Milestone) (tracker.Item, error) {
	item := tracker.Item{
		Kind:      tracker.KindMilestone,
		Number:    m.IID,
		Title:     m.Title,
		Body:      m.Description,
		State:     stateOf(m.State),
		CreatedAt: timeOf(m.CreatedAt),
		WebURL:    m.WebURL,
	}
	if m.DueDate != "" {
		due, err := time.Parse("2006-01-02", m.DueDate)
		if err != nil {
			return tracker.Item{}, fmt.Errorf("milestone %d: invalid due date %q: %w", m.IID, m.DueDate, err)
		}
		item.DueDate = &due
	}
	return item, nil
}

func linkToEdge(p *Project, from int, l *Issue) tracker.Edge {
	same := l.ProjectID == p.ID
	if l.ProjectID == 0 {
		same = linkedProjectPath(l) == p.PathWithNamespace
	}
	if !same {
		return tracker.Edge{
			Kind:     tracker.EdgeCrossProject,
			From:     from,
			LinkType: l.LinkType,
			External: &tracker.ExternalRef{
				Path:   linkedProjectPath(l),
				Number: l.IID,
				WebURL: l.WebURL,
				Title:  l.Title,
			},
		}
	}

	e := tracker.Edge{From: from, To: l.IID, ToTitle: l.Title, LinkType: l.LinkType}
	switch l.LinkType {
	case "blocks":
		e.Kind = tracker.EdgeBlocks
	case "is_blocked_by":
		e.Kind = tracker.EdgeBlockedBy
	default:
		e.Kind = tracker.EdgeRelatesTo
	}
	return e
}

// linkedProjectPath extracts "group/project" from the full reference or web URL.
func linkedProjectPath(l *Issue) string {
	if l.References != nil && l.References.Full != "" {
		if i := strings.LastIndexByte(l.References.Full, '#'); i > 0 {
			return l.References.Full[:i]
		}
	}
	return projectPathFromURL(l.WebURL)
}

// projectPathFromURL turns https://host/group/project/-/issues/3 into group/project.
func projectPathFromURL(webURL string) string {
	rest := webURL
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[i+1:]
	}
	if i := strings.Index(rest, "/-/"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

func stateOf(s string) tracker.State {
	if s == "closed" {
		return tracker.StateClosed
	}
	return tracker.StateOpen
}

func timeOf(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// ParseProjectID accepts a numeric ID or a group/project path.
func ParseProjectID(s string) (string, error) {
	s = strings.Trim(strings.TrimSpace(s), "/")
	if s == "" {
		return "", fmt.Errorf("gitlab project is required")
	}
	if _, err := strconv.Atoi(s); err == nil {
		return s, nil
	}
	if !strings.Contains(s, "/") {
		return "", fmt.Errorf("invalid gitlab project %q: expected group/project or numeric ID", s)
	}
	return s, nil
}
