package steps

import (
	"go.uber.org/zap"

	"github.com/similigh/gl2gh/internal/core/pipeline"
	"github.com/similigh/gl2gh/internal/core/tracker"
	"github.com/similigh/gl2gh/internal/relations"
	"github.com/similigh/gl2gh/internal/report"
)

// Relationships replays hierarchy and blocking links natively.
type Relationships struct {
	target tracker.Target
}

// NewRelationships creates a new relationship resolution step.
func NewRelationships(deps *pipeline.Dependencies) *Relationships {
	return &Relationships{target: deps.Target}
}

// Name returns the step name.
func (s *Relationships) Name() string {
	return "relationships"
}

// Reaches returns the state after this step.
func (s *Relationships) Reaches() pipeline.State {
	return pipeline.StateRelationshipsResolved
}

// Run resolves every collected edge. Unresolvable edges are reported, not raised.
func (s *Relationships) Run(ctx *pipeline.Context) error {
	log := ctx.Logger.Named(s.Name())

	res, err := relations.NewResolver(s.target, ctx.Issues, log).Resolve(ctx.Ctx, ctx.Edges)
	if res != nil {
		for _, w := range res.Skipped {
			log.Warn("relationship skipped", zap.String("edge", w.Error()))
			ctx.Report.SkipEdge(w.Error())
		}
		ctx.Report.Update(func(r *report.Report) {
			r.Relationships.Created = res.Created
			r.Relationships.Existing = res.Existing
		})
	}
	return err
}
