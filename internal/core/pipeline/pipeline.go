// Package pipeline provides the migration state machine.
// It defines the Step interface and the run-scoped Context shared by all phases.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/similigh/gl2gh/internal/attachments"
	"github.com/similigh/gl2gh/internal/content"
	"github.com/similigh/gl2gh/internal/core/config"
	"github.com/similigh/gl2gh/internal/core/tracker"
	"github.com/similigh/gl2gh/internal/labels"
	"github.com/similigh/gl2gh/internal/numbering"
	"github.com/similigh/gl2gh/internal/report"
)

// State is a point in the migration lifecycle. States only move forward.
type State int

const (
	StateValidating State = iota
	StateRepositoryCreated
	StateContentMirrored
	StateLabelsMapped
	StateMilestonesAllocated
	StateIssuesAllocated
	StateRelationshipsResolved
	StatePlaceholdersCleaned
	StateValidated
)

var stateNames = [...]string{
	"Validating",
	"RepositoryCreated",
	"ContentMirrored",
	"LabelsMapped",
	"MilestonesAllocated",
	"IssuesAllocated",
	"RelationshipsResolved",
	"PlaceholdersCleaned",
	"Validated",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// ErrInvalidTransition is returned when a step list skips or revisits a state.
var ErrInvalidTransition = errors.New("invalid state transition")

// Step defines the interface that all pipeline steps must implement.
type Step interface {
	// Name returns the unique identifier for this step.
	Name() string

	// Reaches returns the state the run is in once the step succeeds.
	// A step either stays in the current state or advances exactly one.
	Reaches() State

	// Run executes the step's logic.
	Run(ctx *Context) error
}

// Postconditioner is implemented by steps whose result must be checked
// before the state transition is committed.
type Postconditioner interface {
	Postcondition(ctx *Context) error
}

// PreconditionError aborts a run before anything was written to the target.
type PreconditionError struct {
	Reason string
	Err    error
}

func (e *PreconditionError) Error() string {
	if e.Err == nil {
		return "precondition failed: " + e.Reason
	}
	return fmt.Sprintf("precondition failed: %s: %v", e.Reason, e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// PhaseError is a fatal error, annotated with where the run stopped.
type PhaseError struct {
	Phase string
	State State // state the phase was trying to reach
	Item  string
	Err   error
}

func (e *PhaseError) Error() string {
	if e.Item != "" {
		return fmt.Sprintf("phase '%s' failed at %s: %v", e.Phase, e.Item, e.Err)
	}
	return fmt.Sprintf("phase '%s' failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// itemOf extracts the item a fatal error happened on, if any.
func itemOf(err error) string {
	var verr *numbering.VerificationError
	if errors.As(err, &verr) {
		return fmt.Sprintf("%s #%d", verr.Kind, verr.Expected)
	}
	var serr *numbering.SlotError
	if errors.As(err, &serr) {
		return fmt.Sprintf("%s #%d", serr.Kind, serr.Number)
	}
	return ""
}

// Context carries run-scoped state through the phases. Nothing in it is
// shared between runs.
type Context struct {
	// Ctx is the Go context for cancellation and timeouts.
	Ctx context.Context

	// RunID identifies this run in logs and the report.
	RunID string

	// Config is the loaded configuration.
	Config *config.Config

	Logger *zap.Logger

	// Project is the source project, set during validation.
	Project *tracker.Project

	// Source listings, read once during validation.
	SourceIssues     []tracker.Item
	SourceMilestones []tracker.Item
	SourceLabels     []tracker.Label

	Labels       *labels.Mapping
	Milestones   *numbering.Map
	Issues       *numbering.Map
	Placeholders map[tracker.Kind][]int

	// Edges collects every structural relationship seen while issues were created.
	Edges []tracker.Edge

	Attachments *attachments.Cache
	Transformer *content.Transformer

	Report *report.Report

	// State is the last state reached.
	State State
}

// NewContext creates a new pipeline context for one run.
func NewContext(ctx context.Context, runID string, cfg *config.Config, logger *zap.Logger) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{
		Ctx:          ctx,
		RunID:        runID,
		Config:       cfg,
		Logger:       logger.With(zap.String("run_id", runID)),
		Placeholders: make(map[tracker.Kind][]int),
		Report:       report.New(runID, cfg.GitLab.Project, cfg.GitHub.Repo),
		State:        StateValidating,
	}
}

// Finish stamps the report with the reached state and the run outcome.
func (c *Context) Finish(err error) {
	if c.Attachments != nil {
		stats := c.Attachments.Stats()
		c.Report.Update(func(r *report.Report) {
			r.Attachments = report.Attachments{Uploaded: stats.Uploaded, Failed: stats.Failed, Bytes: stats.Bytes}
		})
	}
	c.Report.Finish(c.State.String(), err)
}

// Pipeline executes a sequence of steps.
type Pipeline struct {
	steps []Step
}

// New creates a new pipeline with the given steps.
func New(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Validate checks that the steps walk the states in order, starting with a
// step that stays in StateValidating, without skipping or going back.
func (p *Pipeline) Validate() error {
	if len(p.steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidTransition)
	}
	if first := p.steps[0]; first.Reaches() != StateValidating {
		return fmt.Errorf("%w: first step '%s' must validate, not reach %s", ErrInvalidTransition, first.Name(), first.Reaches())
	}
	current := StateValidating
	for _, step := range p.steps {
		next := step.Reaches()
		if next != current && next != current+1 {
			return fmt.Errorf("%w: step '%s' goes from %s to %s", ErrInvalidTransition, step.Name(), current, next)
		}
		current = next
	}
	return nil
}

// Run executes all steps in order and stops on the first error.
// The state only advances after a step and its postcondition succeed.
func (p *Pipeline) Run(ctx *Context) error {
	if err := p.Validate(); err != nil {
		return err
	}

	for _, step := range p.steps {
		if err := ctx.Ctx.Err(); err != nil {
			return &PhaseError{Phase: step.Name(), State: step.Reaches(), Err: err}
		}

		if err := step.Run(ctx); err != nil {
			var pre *PreconditionError
			if errors.As(err, &pre) {
				return err
			}
			return &PhaseError{Phase: step.Name(), State: step.Reaches(), Item: itemOf(err), Err: err}
		}

		if pc, ok := step.(Postconditioner); ok {
			if err := pc.Postcondition(ctx); err != nil {
				return &PhaseError{Phase: step.Name(), State: step.Reaches(), Err: fmt.Errorf("postcondition not met: %w", err)}
			}
		}

		if step.Reaches() != ctx.State {
			ctx.Logger.Info("state transition",
				zap.String("from", ctx.State.String()),
				zap.String("to", step.Reaches().String()))
			ctx.State = step.Reaches()
		}
	}
	return nil
}

// Steps returns the list of steps (for introspection).
func (p *Pipeline) Steps() []Step {
	return p.steps
}
