package steps

import (
	"github.com/similigh/gl2gh/internal/core/pipeline"
)

// RegisterAll registers all built-in steps with the registry.
func RegisterAll(r *pipeline.Registry) {
	r.Register("preflight", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewPreflight(deps), nil
	})

	r.Register("create_repository", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewCreateRepository(deps), nil
	})

	r.Register("mirror_git", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewMirrorGit(deps), nil
	})

	r.Register("labels", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewLabels(deps), nil
	})

	r.Register("milestones", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewMilestones(deps), nil
	})

	r.Register("issues", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewIssues(deps), nil
	})

	r.Register("relationships", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewRelationships(deps), nil
	})

	r.Register("cleanup_placeholders", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewCleanupPlaceholders(deps), nil
	})

	r.Register("reconcile", func(deps *pipeline.Dependencies) (pipeline.Step, error) {
		return NewReconcile(deps), nil
	})
}
