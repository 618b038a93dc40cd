package steps

import (
	"errors"
	"fmt"

	"github.com/similigh/gl2gh/internal/core/pipeline"
	"github.com/similigh/gl2gh/internal/core/tracker"
	"github.com/similigh/gl2gh/internal/labels"
	"github.com/similigh/gl2gh/internal/report"
)

// Labels translates source labels and creates the missing ones on the target.
type Labels struct {
	target tracker.Target
}

// NewLabels creates a new label mapping step.
func NewLabels(deps *pipeline.Dependencies) *Labels {
	return &Labels{target: deps.Target}
}

// Name returns the step name.
func (s *Labels) Name() string {
	return "labels"
}

// Reaches returns the state after this step.
func (s *Labels) Reaches() pipeline.State {
	return pipeline.StateLabelsMapped
}

// Run builds the label mapping.
func (s *Labels) Run(ctx *pipeline.Context) error {
	tr, err := labels.NewTranslator(ctx.Config.Labels.Translations)
	if err != nil {
		return fmt.Errorf("failed to parse label translations: %w", err)
	}

	m, err := labels.Migrate(ctx.Ctx, ctx.SourceLabels, s.target, tr, ctx.Logger.Named(s.Name()))
	if err != nil {
		return err
	}
	ctx.Labels = m

	ctx.Report.Update(func(r *report.Report) {
		r.Labels.Existing = len(m.Existing)
		r.Labels.Reused = len(m.Reused)
		r.Labels.Created = len(m.Created)
	})
	return nil
}

// Postcondition checks that every source label has a target.
func (s *Labels) Postcondition(ctx *pipeline.Context) error {
	if ctx.Labels == nil {
		return errors.New("label mapping missing")
	}
	for _, l := range ctx.SourceLabels {
		if _, ok := ctx.Labels.Target(l.Name); !ok {
			return fmt.Errorf("label %q has no target", l.Name)
		}
	}
	return nil
}
