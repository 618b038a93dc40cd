// Package numbering allocates target numbers so they line up one-to-one with
// source numbers. Gaps in the source sequence are filled with placeholder
// items and every creation is verified before the next one starts.
package numbering

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/similigh/gl2gh/internal/core/tracker"
)

// VerificationError reports that the target assigned a different number than
// the slot being filled. Allocation cannot continue after this.
type VerificationError struct {
	Kind        tracker.Kind
	Expected    int
	Actual      int
	Placeholder bool
}

func (e *VerificationError) Error() string {
	what := "item"
	if e.Placeholder {
		what = "placeholder"
	}
	return fmt.Sprintf("%s number mismatch: expected %s #%d, target assigned #%d", e.Kind, what, e.Expected, e.Actual)
}

// SlotError is a failed create or completion for one number.
type SlotError struct {
	Kind        tracker.Kind
	Number      int
	Op          string // "create" or "finish"
	Placeholder bool
	Err         error
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("failed to %s %s #%d: %v", e.Op, e.Kind, e.Number, e.Err)
}

func (e *SlotError) Unwrap() error { return e.Err }

// Entry is one resolved source number.
type Entry struct {
	Source int
	Target int
	ID     int64
}

// Map is the source-to-target correspondence for one collection.
// Entries are only added after their creation has been verified.
type Map struct {
	kind    tracker.Kind
	entries map[int]Entry
	order   []int
}

// NewMap returns an empty map for kind.
func NewMap(kind tracker.Kind) *Map {
	return &Map{kind: kind, entries: make(map[int]Entry)}
}

// Kind returns the collection this map belongs to.
func (m *Map) Kind() tracker.Kind { return m.kind }

func (m *Map) record(source int, c *tracker.Created) {
	if _, ok := m.entries[source]; !ok {
		m.order = append(m.order, source)
	}
	m.entries[source] = Entry{Source: source, Target: c.Number, ID: c.ID}
}

// Lookup returns the entry for a source number.
func (m *Map) Lookup(source int) (Entry, bool) {
	if m == nil {
		return Entry{}, false
	}
	e, ok := m.entries[source]
	return e, ok
}

// Target returns the target number for a source number.
func (m *Map) Target(source int) (int, bool) {
	e, ok := m.Lookup(source)
	return e.Target, ok
}

// Len returns the number of resolved entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Entries returns all entries in creation order.
func (m *Map) Entries() []Entry {
	out := make([]Entry, 0, len(m.order))
	for _, s := range m.order {
		out = append(out, m.entries[s])
	}
	return out
}

// Slot creates the target counterpart for one number.
// Complete runs after the assigned number has been verified, e.g. to add
// comments or close the item.
type Slot interface {
	Create(ctx context.Context) (*tracker.Created, error)
	Complete(ctx context.Context, created *tracker.Created) error
}

// SlotFunc builds the Slot for a real source number.
type SlotFunc func(n int) Slot

// Result is the outcome of one allocation.
type Result struct {
	Map          *Map
	Placeholders []int
}

// Allocator fills [1, max] on the target for one collection.
type Allocator struct {
	Kind   tracker.Kind
	Target tracker.Target
	Logger *zap.Logger

	// Map receives verified entries. A fresh map is used when nil. Setting it
	// lets readers see earlier numbers while later slots are still being built.
	Map *Map

	// OnSlot is called after each slot is verified and completed.
	OnSlot func(n int, placeholder bool)
}

// NewAllocator returns an allocator for kind.
func NewAllocator(kind tracker.Kind, target tracker.Target, logger *zap.Logger) *Allocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Allocator{Kind: kind, Target: target, Logger: logger}
}

// Allocate walks every number from 1 to max(numbers). Real numbers are built
// with slotFor, gaps get a placeholder. On the first verification failure it
// returns the partially built result together with a *VerificationError.
func (a *Allocator) Allocate(ctx context.Context, numbers []int, slotFor SlotFunc) (*Result, error) {
	m := a.Map
	if m == nil {
		m = NewMap(a.Kind)
	}
	res := &Result{Map: m}

	wanted, err := normalize(numbers)
	if err != nil {
		return res, err
	}
	if len(wanted) == 0 {
		a.Logger.Debug("nothing to allocate", zap.String("kind", string(a.Kind)))
		return res, nil
	}

	present := make(map[int]bool, len(wanted))
	for _, n := range wanted {
		present[n] = true
	}
	last := wanted[len(wanted)-1]

	for n := 1; n <= last; n++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var slot Slot
		if present[n] {
			slot = slotFor(n)
		} else {
			slot = &placeholderSlot{kind: a.Kind, target: a.Target, number: n}
		}

		created, err := slot.Create(ctx)
		if err != nil {
			return res, &SlotError{Kind: a.Kind, Number: n, Op: "create", Placeholder: !present[n], Err: err}
		}
		if created.Number != n {
			return res, &VerificationError{Kind: a.Kind, Expected: n, Actual: created.Number, Placeholder: !present[n]}
		}

		if present[n] {
			res.Map.record(n, created)
		} else {
			res.Placeholders = append(res.Placeholders, n)
		}

		if err := slot.Complete(ctx, created); err != nil {
			return res, &SlotError{Kind: a.Kind, Number: n, Op: "finish", Placeholder: !present[n], Err: err}
		}

		a.Logger.Debug("slot allocated",
			zap.String("kind", string(a.Kind)),
			zap.Int("number", n),
			zap.Bool("placeholder", !present[n]))
		if a.OnSlot != nil {
			a.OnSlot(n, !present[n])
		}
	}

	return res, nil
}

func normalize(numbers []int) ([]int, error) {
	out := append([]int(nil), numbers...)
	sort.Ints(out)
	j := 0
	for i, n := range out {
		if n < 1 {
			return nil, fmt.Errorf("invalid source number %d", n)
		}
		if i > 0 && n == out[j-1] {
			continue
		}
		out[j] = n
		j++
	}
	return out[:j], nil
}

// placeholderSlot occupies an empty number. Milestones are created closed;
// issues are closed right after verification.
type placeholderSlot struct {
	kind   tracker.Kind
	target tracker.Target
	number int
}

func (p *placeholderSlot) Create(ctx context.Context) (*tracker.Created, error) {
	return p.target.CreateItem(ctx, p.kind, tracker.Payload{
		Title: tracker.PlaceholderTitle(p.number),
		Body:  tracker.PlaceholderBody,
		State: tracker.StateClosed,
	})
}

func (p *placeholderSlot) Complete(ctx context.Context, created *tracker.Created) error {
	if p.kind == tracker.KindMilestone {
		return nil
	}
	return p.target.EditState(ctx, p.kind, created.Number, tracker.StateClosed)
}
