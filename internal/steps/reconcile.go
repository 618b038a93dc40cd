package steps

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/similigh/gl2gh/internal/core/pipeline"
	"github.com/similigh/gl2gh/internal/core/tracker"
	"github.com/similigh/gl2gh/internal/report"
)

// Reconcile compares source and target collections and records any
// difference in the report. Differences do not fail the step; they make the
// run unsuccessful when the report is finished.
type Reconcile struct {
	target tracker.Target
}

// NewReconcile creates a new reconciliation step.
func NewReconcile(deps *pipeline.Dependencies) *Reconcile {
	return &Reconcile{target: deps.Target}
}

// Name returns the step name.
func (s *Reconcile) Name() string {
	return "reconcile"
}

// Reaches returns the state after this step.
func (s *Reconcile) Reaches() pipeline.State {
	return pipeline.StateValidated
}

// Run counts both sides and checks every source number individually.
func (s *Reconcile) Run(ctx *pipeline.Context) error {
	log := ctx.Logger.Named(s.Name())

	for _, c := range []struct {
		kind   tracker.Kind
		source []tracker.Item
		set    func(r *report.Report, c report.Count)
	}{
		{tracker.KindMilestone, ctx.SourceMilestones, func(r *report.Report, c report.Count) { r.Milestones.Target = c }},
		{tracker.KindIssue, ctx.SourceIssues, func(r *report.Report, c report.Count) { r.Issues.Target = c }},
	} {
		items, err := s.target.ListItems(ctx.Ctx, c.kind)
		if err != nil {
			return fmt.Errorf("failed to list target %ss: %w", c.kind, err)
		}

		placeholders := make(map[int]bool)
		for _, n := range ctx.Placeholders[c.kind] {
			placeholders[n] = true
		}
		byNumber := make(map[int]tracker.TargetItem, len(items))
		var count report.Count
		for _, it := range items {
			if placeholders[it.Number] {
				continue
			}
			byNumber[it.Number] = it
			count.Total++
			if it.State == tracker.StateClosed {
				count.Closed++
			} else {
				count.Open++
			}
		}
		ctx.Report.Update(func(r *report.Report) { c.set(r, count) })

		if src := countItems(c.source); src != count {
			ctx.Report.Mismatch(fmt.Sprintf("%s count mismatch: GitLab %d (%d open, %d closed), GitHub %d (%d open, %d closed)",
				c.kind, src.Total, src.Open, src.Closed, count.Total, count.Open, count.Closed))
		}
		for _, it := range c.source {
			got, ok := byNumber[it.Number]
			switch {
			case !ok:
				ctx.Report.Mismatch(fmt.Sprintf("%s #%d missing on GitHub", c.kind, it.Number))
			case got.State != it.State:
				ctx.Report.Mismatch(fmt.Sprintf("%s #%d is %s on GitHub but %s on GitLab", c.kind, it.Number, got.State, it.State))
			}
		}
	}

	snap := ctx.Report.Snapshot()
	log.Info("reconciliation finished",
		zap.Bool("issues_match", snap.Issues.Matches()),
		zap.Bool("milestones_match", snap.Milestones.Matches()),
		zap.Int("mismatches", len(snap.Mismatches)))
	return nil
}
