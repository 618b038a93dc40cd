package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/similigh/gl2gh/internal/core/tracker"
)

// Registry holds registered step factories.
// Step factories create Step instances, allowing for dependency injection.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]StepFactory
}

// StepFactory is a function that creates a Step.
// It receives dependencies (like clients, config) as parameters.
type StepFactory func(deps *Dependencies) (Step, error)

// Mirror copies repository history from sourceURL to the target.
type Mirror interface {
	Mirror(ctx context.Context, sourceURL string) error
}

// Dependencies holds the dependencies that can be injected into steps.
type Dependencies struct {
	Source tracker.Source
	Target tracker.Target

	// Mirror is nil when history mirroring is not available.
	Mirror Mirror
}

// NewRegistry creates a new step registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]StepFactory),
	}
}

// Register adds a step factory to the registry.
func (r *Registry) Register(name string, factory StepFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get retrieves a step factory by name.
func (r *Registry) Get(name string) (StepFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[name]
	return factory, ok
}

// BuildFromNames creates a pipeline from a list of step names.
// The resulting step order is validated against the state machine.
func (r *Registry) BuildFromNames(names []string, deps *Dependencies) (*Pipeline, error) {
	var steps []Step
	for _, name := range names {
		factory, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("unknown step: %s", name)
		}
		step, err := factory(deps)
		if err != nil {
			return nil, fmt.Errorf("failed to create step '%s': %w", name, err)
		}
		steps = append(steps, step)
	}
	p := New(steps...)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Presets defines the built-in workflow presets.
var Presets = map[string][]string{
	// migrate: full number-preserving migration
	"migrate": {
		"preflight",
		"create_repository",
		"mirror_git",
		"labels",
		"milestones",
		"issues",
		"relationships",
		"cleanup_placeholders",
		"reconcile",
	},

	// check: access and precondition checks only, nothing is written
	"check": {
		"preflight",
	},
}

// GetPreset returns the step names for a preset workflow.
func GetPreset(name string) ([]string, bool) {
	steps, ok := Presets[name]
	return steps, ok
}

// ResolveSteps determines the steps to use based on config.
// Priority: explicit steps > workflow preset > default
func ResolveSteps(explicitSteps []string, workflow string) []string {
	if len(explicitSteps) > 0 {
		return explicitSteps
	}
	if workflow != "" {
		if preset, ok := GetPreset(workflow); ok {
			return preset
		}
	}
	return Presets["migrate"]
}
