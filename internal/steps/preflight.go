// Package steps contains the migration phases.
// Each step implements the pipeline.Step interface and advances the run by at
// most one state.
package steps

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/similigh/gl2gh/internal/attachments"
	"github.com/similigh/gl2gh/internal/content"
	"github.com/similigh/gl2gh/internal/core/pipeline"
	"github.com/similigh/gl2gh/internal/core/tracker"
	"github.com/similigh/gl2gh/internal/numbering"
	"github.com/similigh/gl2gh/internal/report"
)

// Preflight checks access on both sides, refuses an existing target
// repository and reads the source listings. Nothing is written.
type Preflight struct {
	source tracker.Source
	target tracker.Target
}

// NewPreflight creates a new preflight step.
func NewPreflight(deps *pipeline.Dependencies) *Preflight {
	return &Preflight{
		source: deps.Source,
		target: deps.Target,
	}
}

// Name returns the step name.
func (s *Preflight) Name() string {
	return "preflight"
}

// Reaches returns the state after this step.
func (s *Preflight) Reaches() pipeline.State {
	return pipeline.StateValidating
}

// Run validates the run and prepares the shared run state.
func (s *Preflight) Run(ctx *pipeline.Context) error {
	log := ctx.Logger.Named(s.Name())

	if err := ctx.Config.Validate(); err != nil {
		return &pipeline.PreconditionError{Reason: "invalid configuration", Err: err}
	}
	if err := s.source.CheckAccess(ctx.Ctx); err != nil {
		return &pipeline.PreconditionError{Reason: "gitlab access check failed", Err: err}
	}
	if err := s.target.CheckAccess(ctx.Ctx); err != nil {
		return &pipeline.PreconditionError{Reason: "github access check failed", Err: err}
	}

	exists, err := s.target.RepositoryExists(ctx.Ctx)
	if err != nil {
		return &pipeline.PreconditionError{Reason: "could not check target repository", Err: err}
	}
	if exists {
		return &pipeline.PreconditionError{Reason: fmt.Sprintf("repository %s already exists", ctx.Config.GitHub.Repo)}
	}

	project, err := s.source.Project(ctx.Ctx)
	if err != nil {
		return fmt.Errorf("failed to read gitlab project: %w", err)
	}
	ctx.Project = project

	if ctx.SourceMilestones, err = s.source.ListItems(ctx.Ctx, tracker.KindMilestone); err != nil {
		return fmt.Errorf("failed to list gitlab milestones: %w", err)
	}
	if ctx.SourceIssues, err = s.source.ListItems(ctx.Ctx, tracker.KindIssue); err != nil {
		return fmt.Errorf("failed to list gitlab issues: %w", err)
	}
	if ctx.SourceLabels, err = s.source.ListLabels(ctx.Ctx); err != nil {
		return fmt.Errorf("failed to list gitlab labels: %w", err)
	}

	ctx.Report.Update(func(r *report.Report) {
		r.Issues.Source = countItems(ctx.SourceIssues)
		r.Milestones.Source = countItems(ctx.SourceMilestones)
		r.Labels.Source = len(ctx.SourceLabels)
	})

	ctx.Milestones = numbering.NewMap(tracker.KindMilestone)
	ctx.Issues = numbering.NewMap(tracker.KindIssue)
	ctx.Attachments = attachments.NewCache(s.source, s.target, log.Named("attachments"))
	ctx.Transformer = &content.Transformer{
		Project:   project,
		Issues:    ctx.Issues,
		Relocator: attachments.NewRelocator(ctx.Attachments, ctx.Config.Attachments.Concurrency),
		OnAttachmentError: func(where string, aerr *attachments.Error) {
			log.Warn("attachment left in place", zap.String("where", where), zap.Error(aerr))
			ctx.Report.Warn(report.CategoryAttachment, where, aerr.Error())
		},
	}

	log.Info("preflight passed",
		zap.String("source", project.Path),
		zap.String("target", ctx.Config.GitHub.Repo),
		zap.Int("issues", len(ctx.SourceIssues)),
		zap.Int("milestones", len(ctx.SourceMilestones)),
		zap.Int("labels", len(ctx.SourceLabels)))
	return nil
}

func countItems(items []tracker.Item) report.Count {
	var c report.Count
	for _, it := range items {
		c.Total++
		if it.State == tracker.StateClosed {
			c.Closed++
		} else {
			c.Open++
		}
	}
	return c
}

func uniqueNumbers(items []tracker.Item) []int {
	seen := make(map[int]bool, len(items))
	out := make([]int, 0, len(items))
	for _, it := range items {
		if !seen[it.Number] {
			seen[it.Number] = true
			out = append(out, it.Number)
		}
	}
	return out
}
