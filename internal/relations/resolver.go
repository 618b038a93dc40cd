// Package relations replays GitLab hierarchy and blocking links as native
// GitHub sub-issues and dependencies once every issue exists on the target.
package relations

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/similigh/gl2gh/internal/core/tracker"
	"github.com/similigh/gl2gh/internal/numbering"
)

// Warning is an edge that was not turned into a native link.
type Warning struct {
	Edge   tracker.Edge
	Reason string
}

func (w *Warning) Error() string {
	return fmt.Sprintf("%s #%d -> #%d skipped: %s", w.Edge.Kind, w.Edge.From, w.Edge.To, w.Reason)
}

// Result summarises one resolver run.
type Result struct {
	Created  int
	Existing int
	Skipped  []*Warning
}

// Linker is the part of the target that holds native links.
type Linker interface {
	CreateSubIssue(ctx context.Context, parentNumber int, childID int64) error
	ListSubIssues(ctx context.Context, parentNumber int) ([]int64, error)
	CreateBlockedBy(ctx context.Context, blockedNumber int, blockingID int64) error
	ListBlockedBy(ctx context.Context, blockedNumber int) ([]int64, error)
}

// Resolver creates structural links between migrated issues.
type Resolver struct {
	Target Linker
	Issues *numbering.Map
	Logger *zap.Logger
}

// NewResolver returns a resolver over a complete issue map.
func NewResolver(target Linker, issues *numbering.Map, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{Target: target, Issues: issues, Logger: logger}
}

// link is a normalised native link: for hierarchy, holder is the parent and
// member the child; for blocking, holder is the blocked issue and member the
// blocking one.
type link struct {
	holder numbering.Entry
	member numbering.Entry
}

type pass struct {
	name   string
	kinds  map[tracker.EdgeKind]bool
	list   func(ctx context.Context, number int) ([]int64, error)
	create func(ctx context.Context, number int, id int64) error
	orient func(e tracker.Edge, from, to numbering.Entry) link
}

// Resolve runs the hierarchy pass and then the blocking pass. Only
// cancellation is returned as an error; everything else ends up in Result.
func (r *Resolver) Resolve(ctx context.Context, edges []tracker.Edge) (*Result, error) {
	res := &Result{}

	passes := []pass{
		{
			name:   "hierarchy",
			kinds:  map[tracker.EdgeKind]bool{tracker.EdgeParentOf: true},
			list:   r.Target.ListSubIssues,
			create: r.Target.CreateSubIssue,
			orient: func(e tracker.Edge, from, to numbering.Entry) link {
				return link{holder: from, member: to}
			},
		},
		{
			name:   "blocking",
			kinds:  map[tracker.EdgeKind]bool{tracker.EdgeBlocks: true, tracker.EdgeBlockedBy: true},
			list:   r.Target.ListBlockedBy,
			create: r.Target.CreateBlockedBy,
			orient: func(e tracker.Edge, from, to numbering.Entry) link {
				if e.Kind == tracker.EdgeBlocks {
					return link{holder: to, member: from}
				}
				return link{holder: from, member: to}
			},
		},
	}

	for _, p := range passes {
		if err := r.run(ctx, p, edges, res); err != nil {
			return res, err
		}
	}

	r.Logger.Info("relationships resolved",
		zap.Int("created", res.Created),
		zap.Int("existing", res.Existing),
		zap.Int("skipped", len(res.Skipped)))
	return res, nil
}

func (r *Resolver) run(ctx context.Context, p pass, edges []tracker.Edge, res *Result) error {
	done := make(map[link]bool)
	existing := make(map[int]map[int64]bool)
	listed := make(map[int]bool)

	for _, e := range edges {
		if !p.kinds[e.Kind] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.External != nil {
			res.Skipped = append(res.Skipped, &Warning{Edge: e, Reason: "target is outside the migrated project"})
			continue
		}

		from, ok := r.Issues.Lookup(e.From)
		if !ok {
			res.Skipped = append(res.Skipped, &Warning{Edge: e, Reason: fmt.Sprintf("issue #%d was not migrated", e.From)})
			continue
		}
		to, ok := r.Issues.Lookup(e.To)
		if !ok {
			res.Skipped = append(res.Skipped, &Warning{Edge: e, Reason: fmt.Sprintf("issue #%d was not migrated", e.To)})
			continue
		}
		if from.Target == to.Target {
			res.Skipped = append(res.Skipped, &Warning{Edge: e, Reason: "self reference"})
			continue
		}

		l := p.orient(e, from, to)
		if done[l] {
			continue
		}
		done[l] = true

		known, ok := existing[l.holder.Target]
		if !ok {
			ids, err := p.list(ctx, l.holder.Target)
			if err != nil {
				r.Logger.Warn("could not list existing links", zap.String("pass", p.name), zap.Int("issue", l.holder.Target), zap.Error(err))
			}
			listed[l.holder.Target] = err == nil
			known = make(map[int64]bool, len(ids))
			for _, id := range ids {
				known[id] = true
			}
			existing[l.holder.Target] = known
		}
		if known[l.member.ID] {
			res.Existing++
			continue
		}

		err := p.create(ctx, l.holder.Target, l.member.ID)
		switch {
		case err == nil:
			known[l.member.ID] = true
			res.Created++
			r.Logger.Debug("link created", zap.String("pass", p.name), zap.Int("holder", l.holder.Target), zap.Int("member", l.member.Target))
		case errors.Is(err, tracker.ErrAlreadyLinked) && !listed[l.holder.Target]:
			known[l.member.ID] = true
			res.Existing++
		case errors.Is(err, tracker.ErrAlreadyLinked):
			// The listing did not show this link, so the target refused it.
			r.Logger.Warn("link rejected", zap.String("pass", p.name), zap.Int("holder", l.holder.Target), zap.Int("member", l.member.Target), zap.Error(err))
			res.Skipped = append(res.Skipped, &Warning{Edge: e, Reason: err.Error()})
		default:
			r.Logger.Warn("link failed", zap.String("pass", p.name), zap.Int("holder", l.holder.Target), zap.Int("member", l.member.Target), zap.Error(err))
			res.Skipped = append(res.Skipped, &Warning{Edge: e, Reason: err.Error()})
		}
	}
	return nil
}
