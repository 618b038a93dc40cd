package steps

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/similigh/gl2gh/internal/core/pipeline"
	"github.com/similigh/gl2gh/internal/core/tracker"
	"github.com/similigh/gl2gh/internal/numbering"
	"github.com/similigh/gl2gh/internal/report"
)

// Milestones recreates milestones under their source numbers.
type Milestones struct {
	target tracker.Target
}

// NewMilestones creates a new milestone allocation step.
func NewMilestones(deps *pipeline.Dependencies) *Milestones {
	return &Milestones{target: deps.Target}
}

// Name returns the step name.
func (s *Milestones) Name() string {
	return "milestones"
}

// Reaches returns the state after this step.
func (s *Milestones) Reaches() pipeline.State {
	return pipeline.StateMilestonesAllocated
}

// Run allocates every milestone number, filling gaps with placeholders.
func (s *Milestones) Run(ctx *pipeline.Context) error {
	log := ctx.Logger.Named(s.Name())

	byNumber := make(map[int]*tracker.Item, len(ctx.SourceMilestones))
	for i := range ctx.SourceMilestones {
		byNumber[ctx.SourceMilestones[i].Number] = &ctx.SourceMilestones[i]
	}

	alloc := numbering.NewAllocator(tracker.KindMilestone, s.target, log)
	alloc.Map = ctx.Milestones
	res, err := alloc.Allocate(ctx.Ctx, uniqueNumbers(ctx.SourceMilestones), func(n int) numbering.Slot {
		return &milestoneSlot{ctx: ctx, target: s.target, item: byNumber[n]}
	})
	ctx.Milestones = res.Map
	ctx.Placeholders[tracker.KindMilestone] = res.Placeholders
	ctx.Report.Update(func(r *report.Report) {
		r.Milestones.Placeholders = len(res.Placeholders)
	})
	if err != nil {
		return err
	}

	log.Info("milestones allocated",
		zap.Int("migrated", res.Map.Len()),
		zap.Int("placeholders", len(res.Placeholders)))
	return nil
}

// Postcondition checks that the milestone map is complete.
func (s *Milestones) Postcondition(ctx *pipeline.Context) error {
	return checkComplete(ctx.Milestones, ctx.SourceMilestones)
}

type milestoneSlot struct {
	ctx    *pipeline.Context
	target tracker.Target
	item   *tracker.Item
}

func (m *milestoneSlot) Create(ctx context.Context) (*tracker.Created, error) {
	return m.target.CreateItem(ctx, tracker.KindMilestone, tracker.Payload{
		Title:   m.item.Title,
		Body:    m.ctx.Transformer.MilestoneDescription(ctx, m.item),
		State:   m.item.State,
		DueDate: m.item.DueDate,
	})
}

func (m *milestoneSlot) Complete(ctx context.Context, created *tracker.Created) error {
	return nil
}

func checkComplete(m *numbering.Map, items []tracker.Item) error {
	for _, it := range items {
		if _, ok := m.Lookup(it.Number); !ok {
			return fmt.Errorf("%s #%d was not allocated", it.Kind, it.Number)
		}
	}
	for _, e := range m.Entries() {
		if e.Source != e.Target {
			return fmt.Errorf("%s #%d is mapped to #%d", m.Kind(), e.Source, e.Target)
		}
	}
	return nil
}
