package steps

import (
	"fmt"

	"github.com/similigh/gl2gh/internal/core/pipeline"
)

// MirrorGit copies branches and tags to the new repository.
type MirrorGit struct {
	mirror pipeline.Mirror
}

// NewMirrorGit creates a new history mirroring step.
func NewMirrorGit(deps *pipeline.Dependencies) *MirrorGit {
	return &MirrorGit{mirror: deps.Mirror}
}

// Name returns the step name.
func (s *MirrorGit) Name() string {
	return "mirror_git"
}

// Reaches returns the state after this step.
func (s *MirrorGit) Reaches() pipeline.State {
	return pipeline.StateContentMirrored
}

// Run mirrors the repository unless mirroring is disabled.
func (s *MirrorGit) Run(ctx *pipeline.Context) error {
	log := ctx.Logger.Named(s.Name())
	if ctx.Config.Git.Skip || s.mirror == nil {
		log.Info("git mirroring skipped")
		return nil
	}
	if ctx.Project == nil {
		return fmt.Errorf("source project not loaded")
	}
	if err := s.mirror.Mirror(ctx.Ctx, ctx.Project.HTTPURL); err != nil {
		return fmt.Errorf("failed to mirror repository content: %w", err)
	}
	log.Info("repository content mirrored")
	return nil
}
