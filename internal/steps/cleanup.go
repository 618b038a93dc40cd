package steps

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/similigh/gl2gh/internal/core/pipeline"
	"github.com/similigh/gl2gh/internal/core/tracker"
	"github.com/similigh/gl2gh/internal/report"
)

// CleanupPlaceholders removes placeholder milestones and, when configured,
// placeholder issues. Placeholder issues are otherwise left closed.
type CleanupPlaceholders struct {
	target tracker.Target
}

// NewCleanupPlaceholders creates a new placeholder cleanup step.
func NewCleanupPlaceholders(deps *pipeline.Dependencies) *CleanupPlaceholders {
	return &CleanupPlaceholders{target: deps.Target}
}

// Name returns the step name.
func (s *CleanupPlaceholders) Name() string {
	return "cleanup_placeholders"
}

// Reaches returns the state after this step.
func (s *CleanupPlaceholders) Reaches() pipeline.State {
	return pipeline.StatePlaceholdersCleaned
}

// Run deletes placeholders whose reserved title is intact. Failures are
// recorded as warnings; the migrated content is already complete.
func (s *CleanupPlaceholders) Run(ctx *pipeline.Context) error {
	cfg := ctx.Config.Cleanup
	if !cfg.KeepPlaceholderMilestones {
		if err := s.remove(ctx, tracker.KindMilestone); err != nil {
			return err
		}
	}
	if cfg.DeletePlaceholderIssues {
		if err := s.remove(ctx, tracker.KindIssue); err != nil {
			return err
		}
	}
	return nil
}

func (s *CleanupPlaceholders) remove(ctx *pipeline.Context, kind tracker.Kind) error {
	log := ctx.Logger.Named(s.Name())
	numbers := ctx.Placeholders[kind]
	if len(numbers) == 0 {
		return nil
	}

	items, err := s.target.ListItems(ctx.Ctx, kind)
	if err != nil {
		ctx.Report.Warn(report.CategoryCleanup, string(kind), fmt.Sprintf("could not list placeholders: %v", err))
		return nil
	}
	byNumber := make(map[int]tracker.TargetItem, len(items))
	for _, it := range items {
		byNumber[it.Number] = it
	}

	deleted := 0
	for _, n := range numbers {
		if err := ctx.Ctx.Err(); err != nil {
			return err
		}
		where := fmt.Sprintf("%s #%d", kind, n)
		it, ok := byNumber[n]
		if !ok {
			continue
		}
		if !tracker.IsPlaceholderTitle(it.Title, n) {
			log.Warn("refusing to delete item without reserved title", zap.String("item", where), zap.String("title", it.Title))
			ctx.Report.Warn(report.CategoryCleanup, where, fmt.Sprintf("title %q is not the reserved placeholder title", it.Title))
			continue
		}
		if err := s.target.DeleteItem(ctx.Ctx, kind, n); err != nil {
			log.Warn("placeholder delete failed", zap.String("item", where), zap.Error(err))
			ctx.Report.Warn(report.CategoryCleanup, where, err.Error())
			continue
		}
		deleted++
	}
	log.Info("placeholders removed", zap.String("kind", string(kind)), zap.Int("deleted", deleted), zap.Int("total", len(numbers)))
	return nil
}
