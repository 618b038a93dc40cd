package steps

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/similigh/gl2gh/internal/core/pipeline"
	"github.com/similigh/gl2gh/internal/core/tracker"
	"github.com/similigh/gl2gh/internal/numbering"
	"github.com/similigh/gl2gh/internal/report"
)

// Issues recreates issues under their source numbers, with comments,
// labels, milestones and the text form of non-native links.
type Issues struct {
	source tracker.Source
	target tracker.Target
}

// NewIssues creates a new issue allocation step.
func NewIssues(deps *pipeline.Dependencies) *Issues {
	return &Issues{source: deps.Source, target: deps.Target}
}

// Name returns the step name.
func (s *Issues) Name() string {
	return "issues"
}

// Reaches returns the state after this step.
func (s *Issues) Reaches() pipeline.State {
	return pipeline.StateIssuesAllocated
}

// Run allocates every issue number, filling gaps with placeholders.
func (s *Issues) Run(ctx *pipeline.Context) error {
	log := ctx.Logger.Named(s.Name())

	byNumber := make(map[int]*tracker.Item, len(ctx.SourceIssues))
	for i := range ctx.SourceIssues {
		byNumber[ctx.SourceIssues[i].Number] = &ctx.SourceIssues[i]
	}

	alloc := numbering.NewAllocator(tracker.KindIssue, s.target, log)
	alloc.Map = ctx.Issues
	alloc.OnSlot = func(n int, placeholder bool) {
		if placeholder {
			log.Debug("placeholder issue reserved", zap.Int("number", n))
			return
		}
		log.Info("issue migrated", zap.Int("number", n))
	}

	res, err := alloc.Allocate(ctx.Ctx, uniqueNumbers(ctx.SourceIssues), func(n int) numbering.Slot {
		return &issueSlot{step: s, ctx: ctx, item: byNumber[n]}
	})
	ctx.Issues = res.Map
	ctx.Placeholders[tracker.KindIssue] = res.Placeholders
	ctx.Report.Update(func(r *report.Report) {
		r.Issues.Placeholders = len(res.Placeholders)
	})
	if err != nil {
		return err
	}

	log.Info("issues allocated",
		zap.Int("migrated", res.Map.Len()),
		zap.Int("placeholders", len(res.Placeholders)),
		zap.Int("edges", len(ctx.Edges)))
	return nil
}

// Postcondition checks that the issue map is complete.
func (s *Issues) Postcondition(ctx *pipeline.Context) error {
	return checkComplete(ctx.Issues, ctx.SourceIssues)
}

// issueSlot builds one real issue. Comments and the final state are applied
// only after the number has been verified. A comment that cannot be created
// is reported and skipped.
type issueSlot struct {
	step *Issues
	ctx  *pipeline.Context
	item *tracker.Item
}

func (is *issueSlot) Create(ctx context.Context) (*tracker.Created, error) {
	item := is.item
	edges, err := is.step.source.Relationships(ctx, item.Number)
	var incomplete *tracker.IncompleteError
	switch {
	case errors.As(err, &incomplete):
		is.ctx.Report.Warn(report.CategoryRelationship, fmt.Sprintf("issue #%d", item.Number), incomplete.Error())
	case err != nil:
		return nil, fmt.Errorf("failed to read links of issue #%d: %w", item.Number, err)
	}
	is.ctx.Edges = append(is.ctx.Edges, edges...)

	payload := tracker.Payload{
		Title:  item.Title,
		Body:   is.ctx.Transformer.IssueBody(ctx, item, edges),
		Labels: is.ctx.Labels.Apply(item.Labels),
		State:  tracker.StateOpen,
	}
	if item.MilestoneNumber > 0 {
		if target, ok := is.ctx.Milestones.Target(item.MilestoneNumber); ok {
			payload.Milestone = target
		} else {
			is.ctx.Report.Warn(report.CategoryMilestone, fmt.Sprintf("issue #%d", item.Number),
				fmt.Sprintf("milestone #%d was not migrated", item.MilestoneNumber))
		}
	}
	return is.step.target.CreateItem(ctx, tracker.KindIssue, payload)
}

func (is *issueSlot) Complete(ctx context.Context, created *tracker.Created) error {
	comments, err := is.step.source.Comments(ctx, is.item.Number)
	if err != nil {
		return fmt.Errorf("failed to read comments: %w", err)
	}
	for i := range comments {
		body := is.ctx.Transformer.CommentBody(ctx, is.item.Number, &comments[i])
		if err := is.step.target.CreateComment(ctx, created.Number, body); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			is.ctx.Logger.Warn("comment not migrated", zap.Int("issue", is.item.Number), zap.Int("comment", i+1), zap.Error(err))
			is.ctx.Report.Warn(report.CategoryComment, fmt.Sprintf("issue #%d", is.item.Number),
				fmt.Sprintf("comment %d of %d not migrated: %v", i+1, len(comments), err))
		}
	}
	if is.item.State == tracker.StateClosed {
		if err := is.step.target.EditState(ctx, tracker.KindIssue, created.Number, tracker.StateClosed); err != nil {
			return fmt.Errorf("failed to close issue: %w", err)
		}
	}
	return nil
}
