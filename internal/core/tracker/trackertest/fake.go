// Package trackertest provides in-memory Source and Target implementations for tests.
package trackertest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/similigh/gl2gh/internal/core/tracker"
)

// Source is an in-memory tracker.Source.
type Source struct {
	Proj        tracker.Project
	Issues      []tracker.Item
	Milestones  []tracker.Item
	Labels      []tracker.Label
	CommentsBy  map[int][]tracker.Comment
	EdgesBy     map[int][]tracker.Edge
	EdgeErrBy   map[int]error
	Files       map[string][]byte
	AccessErr   error
	Downloads   atomic.Int32
	FailLocator map[string]bool
}

// NewSource returns an empty source for group/project.
func NewSource(path string) *Source {
	return &Source{
		Proj: tracker.Project{
			Path:    path,
			Name:    path[strings.LastIndex(path, "/")+1:],
			WebURL:  "https://gitlab.example.com/" + path,
			HTTPURL: "https://gitlab.example.com/" + path + ".git",
		},
		CommentsBy:  map[int][]tracker.Comment{},
		EdgesBy:     map[int][]tracker.Edge{},
		Files:       map[string][]byte{},
		FailLocator: map[string]bool{},
	}
}

func (s *Source) CheckAccess(ctx context.Context) error { return s.AccessErr }

func (s *Source) Project(ctx context.Context) (*tracker.Project, error) {
	p := s.Proj
	return &p, nil
}

func (s *Source) ListItems(ctx context.Context, kind tracker.Kind) ([]tracker.Item, error) {
	if kind == tracker.KindMilestone {
		return append([]tracker.Item(nil), s.Milestones...), nil
	}
	return append([]tracker.Item(nil), s.Issues...), nil
}

func (s *Source) ListLabels(ctx context.Context) ([]tracker.Label, error) {
	return append([]tracker.Label(nil), s.Labels...), nil
}

func (s *Source) Comments(ctx context.Context, number int) ([]tracker.Comment, error) {
	return s.CommentsBy[number], nil
}

func (s *Source) Relationships(ctx context.Context, number int) ([]tracker.Edge, error) {
	return s.EdgesBy[number], s.EdgeErrBy[number]
}

func (s *Source) FetchAttachment(ctx context.Context, locator string) ([]byte, error) {
	s.Downloads.Add(1)
	if s.FailLocator[locator] {
		return nil, fmt.Errorf("download %s: 404 Not Found", locator)
	}
	data, ok := s.Files[locator]
	if !ok {
		return []byte("bytes of " + locator), nil
	}
	return data, nil
}

// Item is a stored target item.
type Item struct {
	tracker.TargetItem
	Kind     tracker.Kind
	Payload  tracker.Payload
	Comments []string
}

// Target is an in-memory tracker.Target. Numbers are assigned sequentially per
// kind, like the real service. SkipNumberAt makes the counter jump once so
// tests can simulate drift.
type Target struct {
	mu sync.Mutex

	Exists    bool
	AccessErr error
	Created   bool

	items   map[tracker.Kind][]*Item
	nextID  int64
	Labels  []tracker.Label
	Uploads []string

	SubIssues map[int][]int64
	BlockedBy map[int][]int64

	SubIssueCalls  int
	BlockedByCalls int
	Deleted        []int

	// SkipNumberAt maps kind to the creation index (1-based) at which the
	// assigned number is bumped by one.
	SkipNumberAt map[tracker.Kind]int
	UploadErr    error

	// CommentErr fails comment creation on the given issue numbers.
	CommentErr map[int]error
	// LinkErr is returned by every link creation; ListLinksErr by every link listing.
	LinkErr      error
	ListLinksErr error
}

// NewTarget returns an empty target.
func NewTarget() *Target {
	return &Target{
		items:        map[tracker.Kind][]*Item{},
		SubIssues:    map[int][]int64{},
		BlockedBy:    map[int][]int64{},
		SkipNumberAt: map[tracker.Kind]int{},
		CommentErr:   map[int]error{},
		nextID:       1000,
	}
}

func (t *Target) CheckAccess(ctx context.Context) error { return t.AccessErr }

func (t *Target) RepositoryExists(ctx context.Context) (bool, error) { return t.Exists, nil }

func (t *Target) CreateRepository(ctx context.Context, description string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Exists {
		return fmt.Errorf("repository already exists")
	}
	t.Exists = true
	t.Created = true
	return nil
}

func (t *Target) CreateItem(ctx context.Context, kind tracker.Kind, p tracker.Payload) (*tracker.Created, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	list := t.items[kind]
	number := len(list) + 1
	if len(list) > 0 {
		number = list[len(list)-1].Number + 1
	}
	if at, ok := t.SkipNumberAt[kind]; ok && at == len(list)+1 {
		number++
	}
	t.nextID++
	state := p.State
	if state == "" {
		state = tracker.StateOpen
	}
	if kind == tracker.KindIssue {
		// Issues are always created open; closing is a separate edit.
		state = tracker.StateOpen
	}
	it := &Item{
		TargetItem: tracker.TargetItem{Number: number, ID: t.nextID, Title: p.Title, State: state},
		Kind:       kind,
		Payload:    p,
	}
	t.items[kind] = append(list, it)
	return &tracker.Created{Number: number, ID: t.nextID}, nil
}

func (t *Target) find(kind tracker.Kind, number int) *Item {
	for _, it := range t.items[kind] {
		if it.Number == number {
			return it
		}
	}
	return nil
}

// Get returns the stored item or nil.
func (t *Target) Get(kind tracker.Kind, number int) *Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.find(kind, number)
}

// Count returns how many items of kind exist.
func (t *Target) Count(kind tracker.Kind) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items[kind])
}

func (t *Target) EditState(ctx context.Context, kind tracker.Kind, number int, state tracker.State) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	it := t.find(kind, number)
	if it == nil {
		return fmt.Errorf("%s #%d not found", kind, number)
	}
	it.State = state
	return nil
}

func (t *Target) CreateComment(ctx context.Context, number int, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	it := t.find(tracker.KindIssue, number)
	if it == nil {
		return fmt.Errorf("issue #%d not found", number)
	}
	if err := t.CommentErr[number]; err != nil {
		return err
	}
	it.Comments = append(it.Comments, body)
	return nil
}

func (t *Target) ListItems(ctx context.Context, kind tracker.Kind) ([]tracker.TargetItem, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]tracker.TargetItem, 0, len(t.items[kind]))
	for _, it := range t.items[kind] {
		out = append(out, it.TargetItem)
	}
	return out, nil
}

func (t *Target) DeleteItem(ctx context.Context, kind tracker.Kind, number int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.items[kind]
	for i, it := range list {
		if it.Number == number {
			t.items[kind] = append(list[:i:i], list[i+1:]...)
			t.Deleted = append(t.Deleted, number)
			return nil
		}
	}
	return fmt.Errorf("%s #%d not found", kind, number)
}

func (t *Target) ListLabels(ctx context.Context) ([]tracker.Label, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]tracker.Label(nil), t.Labels...), nil
}

func (t *Target) CreateLabel(ctx context.Context, l tracker.Label) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, existing := range t.Labels {
		if strings.EqualFold(existing.Name, l.Name) {
			return fmt.Errorf("label %q already exists", l.Name)
		}
	}
	t.Labels = append(t.Labels, l)
	return nil
}

func (t *Target) UploadAttachment(ctx context.Context, data []byte, name string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.UploadErr != nil {
		return "", t.UploadErr
	}
	t.Uploads = append(t.Uploads, name)
	return "https://github.example.com/releases/download/attachments/" + name, nil
}

// UploadCount returns the number of successful uploads.
func (t *Target) UploadCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Uploads)
}

func (t *Target) CreateSubIssue(ctx context.Context, parentNumber int, childID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.SubIssueCalls++
	if t.LinkErr != nil {
		return t.LinkErr
	}
	for _, id := range t.SubIssues[parentNumber] {
		if id == childID {
			return fmt.Errorf("sub-issue #%d: %w", parentNumber, tracker.ErrAlreadyLinked)
		}
	}
	t.SubIssues[parentNumber] = append(t.SubIssues[parentNumber], childID)
	return nil
}

func (t *Target) ListSubIssues(ctx context.Context, parentNumber int) ([]int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ListLinksErr != nil {
		return nil, t.ListLinksErr
	}
	return append([]int64(nil), t.SubIssues[parentNumber]...), nil
}

func (t *Target) CreateBlockedBy(ctx context.Context, blockedNumber int, blockingID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.BlockedByCalls++
	if t.LinkErr != nil {
		return t.LinkErr
	}
	for _, id := range t.BlockedBy[blockedNumber] {
		if id == blockingID {
			return fmt.Errorf("dependency on #%d: %w", blockedNumber, tracker.ErrAlreadyLinked)
		}
	}
	t.BlockedBy[blockedNumber] = append(t.BlockedBy[blockedNumber], blockingID)
	return nil
}

func (t *Target) ListBlockedBy(ctx context.Context, blockedNumber int) ([]int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ListLinksErr != nil {
		return nil, t.ListLinksErr
	}
	return append([]int64(nil), t.BlockedBy[blockedNumber]...), nil
}

// Numbers returns the sorted numbers of all items of kind.
func (t *Target) Numbers(kind tracker.Kind) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []int
	for _, it := range t.items[kind] {
		out = append(out, it.Number)
	}
	sort.Ints(out)
	return out
}
