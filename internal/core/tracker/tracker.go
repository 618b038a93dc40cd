// Package tracker defines the item model shared by the migration engine and
// the Source/Target adapters that move items between the two systems.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAlreadyLinked is returned by a Target when it rejects a native link as
// invalid. That usually means the link exists; the wrapped error says why.
var ErrAlreadyLinked = errors.New("link rejected by target")

// IncompleteError means a Source returned usable data with some parts
// missing. Callers keep the data and report the error.
type IncompleteError struct {
	Missing string
	Err     error
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Missing, e.Err)
}

func (e *IncompleteError) Unwrap() error { return e.Err }

// Kind identifies a numbered collection.
type Kind string

const (
	KindIssue     Kind = "issue"
	KindMilestone Kind = "milestone"
)

// State is the open/closed status of a numbered item.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
)

// PlaceholderTitlePrefix marks slot-filling items so cleanup can find them.
const PlaceholderTitlePrefix = "[gl2gh placeholder] reserved slot #"

// PlaceholderBody is the fixed body given to every placeholder item.
const PlaceholderBody = "This item only reserves a number so that migrated items keep their original numbers. It is safe to delete."

// PlaceholderTitle returns the reserved title for slot n.
func PlaceholderTitle(n int) string {
	return fmt.Sprintf("%s%d", PlaceholderTitlePrefix, n)
}

// IsPlaceholderTitle reports whether title is the reserved placeholder title for slot n.
func IsPlaceholderTitle(title string, n int) bool {
	return title == PlaceholderTitle(n)
}

// Item is an issue or milestone read from the source. It is never mutated after read.
type Item struct {
	Kind         Kind
	Number       int
	Title        string
	Body         string
	State        State
	CreatedAt    time.Time
	AuthorName   string
	AuthorHandle string
	WebURL       string

	// Issues only.
	MilestoneNumber int
	Labels          []string

	// Milestones only.
	DueDate *time.Time
}

// Comment is a single note on a source issue.
type Comment struct {
	AuthorName   string
	AuthorHandle string
	CreatedAt    time.Time
	Body         string
	System       bool
}

// Label is a label definition on either side.
type Label struct {
	Name        string
	Color       string // hex without leading '#'
	Description string
}

// Project describes the source project.
type Project struct {
	Path        string // group/project
	Name        string
	Description string
	WebURL      string
	HTTPURL     string // clone URL
}

// EdgeKind classifies a relationship between two items.
type EdgeKind string

const (
	EdgeParentOf     EdgeKind = "parent_of"
	EdgeBlocks       EdgeKind = "blocks"
	EdgeBlockedBy    EdgeKind = "blocked_by"
	EdgeRelatesTo    EdgeKind = "relates_to"
	EdgeCrossProject EdgeKind = "cross_project"
)

// Structural reports whether edges of this kind may become native links.
func (k EdgeKind) Structural() bool {
	switch k {
	case EdgeParentOf, EdgeBlocks, EdgeBlockedBy:
		return true
	}
	return false
}

// ExternalRef points at an item outside the migrated collection.
type ExternalRef struct {
	Path   string // group/project
	Number int
	WebURL string
	Title  string
}

// Edge is a relationship discovered on the source. When External is set the
// far end lives outside the migrated project and To is zero.
type Edge struct {
	Kind     EdgeKind
	From     int
	To       int
	ToTitle  string
	External *ExternalRef

	// LinkType is the raw source link type ("blocks", "relates_to", ...),
	// used when the edge is rendered as text.
	LinkType string
}

// Payload is what the target receives for a single creation call.
type Payload struct {
	Title     string
	Body      string
	Labels    []string
	Milestone int // target milestone number, 0 for none
	State     State
	DueDate   *time.Time
}

// Created is the result of a creation call on the target.
type Created struct {
	Number int
	ID     int64
	URL    string
}

// TargetItem is a minimal view of an item already on the target.
type TargetItem struct {
	Number int
	ID     int64
	Title  string
	State  State
}

// Source reads everything the migration needs from the originating tracker.
type Source interface {
	CheckAccess(ctx context.Context) error
	Project(ctx context.Context) (*Project, error)
	ListItems(ctx context.Context, kind Kind) ([]Item, error)
	ListLabels(ctx context.Context) ([]Label, error)
	Comments(ctx context.Context, number int) ([]Comment, error)
	Relationships(ctx context.Context, number int) ([]Edge, error)
	FetchAttachment(ctx context.Context, locator string) ([]byte, error)
}

// Target writes migrated content. CreateItem must return the number the
// target assigned; callers verify it.
type Target interface {
	CheckAccess(ctx context.Context) error
	RepositoryExists(ctx context.Context) (bool, error)
	CreateRepository(ctx context.Context, description string) error

	CreateItem(ctx context.Context, kind Kind, p Payload) (*Created, error)
	EditState(ctx context.Context, kind Kind, number int, state State) error
	CreateComment(ctx context.Context, number int, body string) error
	ListItems(ctx context.Context, kind Kind) ([]TargetItem, error)
	DeleteItem(ctx context.Context, kind Kind, number int) error

	ListLabels(ctx context.Context) ([]Label, error)
	CreateLabel(ctx context.Context, l Label) error

	UploadAttachment(ctx context.Context, data []byte, name string) (string, error)

	CreateSubIssue(ctx context.Context, parentNumber int, childID int64) error
	ListSubIssues(ctx context.Context, parentNumber int) ([]int64, error)
	CreateBlockedBy(ctx context.Context, blockedNumber int, blockingID int64) error
	ListBlockedBy(ctx context.Context, blockedNumber int) ([]int64, error)
}
