package steps

import (
	"fmt"

	"github.com/similigh/gl2gh/internal/core/pipeline"
	"github.com/similigh/gl2gh/internal/core/tracker"
)

// CreateRepository creates the empty target repository.
type CreateRepository struct {
	target tracker.Target
}

// NewCreateRepository creates a new repository creation step.
func NewCreateRepository(deps *pipeline.Dependencies) *CreateRepository {
	return &CreateRepository{target: deps.Target}
}

// Name returns the step name.
func (s *CreateRepository) Name() string {
	return "create_repository"
}

// Reaches returns the state after this step.
func (s *CreateRepository) Reaches() pipeline.State {
	return pipeline.StateRepositoryCreated
}

// Run creates the repository using the source project description.
func (s *CreateRepository) Run(ctx *pipeline.Context) error {
	description := ""
	if ctx.Project != nil {
		description = ctx.Project.Description
	}
	if err := s.target.CreateRepository(ctx.Ctx, description); err != nil {
		return fmt.Errorf("failed to create repository %s: %w", ctx.Config.GitHub.Repo, err)
	}
	ctx.Logger.Named(s.Name()).Info("repository created")
	return nil
}

// Postcondition checks that the repository is visible.
func (s *CreateRepository) Postcondition(ctx *pipeline.Context) error {
	exists, err := s.target.RepositoryExists(ctx.Ctx)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("repository %s not found after creation", ctx.Config.GitHub.Repo)
	}
	return nil
}
