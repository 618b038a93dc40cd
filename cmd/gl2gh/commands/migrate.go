package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/similigh/gl2gh/internal/core/config"
	"github.com/similigh/gl2gh/internal/core/pipeline"
	"github.com/similigh/gl2gh/internal/gitmirror"
	"github.com/similigh/gl2gh/internal/integrations/github"
	"github.com/similigh/gl2gh/internal/integrations/gitlab"
	"github.com/similigh/gl2gh/internal/log"
	"github.com/similigh/gl2gh/internal/steps"
	"github.com/similigh/gl2gh/internal/tui"
)

// migrateFlags holds the command line overrides of the config file.
type migrateFlags struct {
	gitlabURL                 string
	relabel                   []string
	localClone                string
	noGit                     bool
	output                    string
	ci                        bool
	dryRun                    bool
	deletePlaceholderIssues   bool
	keepPlaceholderMilestones bool
	gitlabTokenPassPath       string
	githubTokenPassPath       string
}

var mf migrateFlags

var migrateCmd = &cobra.Command{
	Use:   "migrate <gitlab-project> <github-owner/repo>",
	Short: "Migrate a GitLab project into a new GitHub repository",
	Long: `Migrate a GitLab project into a new GitHub repository.

The GitLab project is given as group/project or numeric ID. The GitHub
repository must not exist yet; it is created private with issues enabled.
Issue and milestone numbers are preserved.

Tokens are read from pass (--*-token-pass-path), then GITLAB_TOKEN and
TARGET_GITHUB_TOKEN/GITHUB_TOKEN, then the config file, and for GitHub
finally from the gh CLI login.`,
	Example: `  gl2gh migrate mygroup/myproject myorg/myproject
  gl2gh migrate 1234 myorg/myproject -l "p_*:priority: *" --no-git
  gl2gh migrate mygroup/myproject myorg/myproject --dry-run`,
	Args: cobra.ExactArgs(2),
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	f := migrateCmd.Flags()
	f.StringVar(&mf.gitlabURL, "gitlab-url", "", "GitLab instance URL (default https://gitlab.com)")
	f.StringArrayVarP(&mf.relabel, "relabel", "l", nil, "Label translation pattern source:target, repeatable ('*' matches any text)")
	f.StringVar(&mf.localClone, "local-clone", "", "Mirror git history from this local clone instead of cloning GitLab")
	f.BoolVar(&mf.noGit, "no-git", false, "Do not mirror git history")
	f.StringVar(&mf.output, "output", "", "Write the report to this file (.json for JSON, otherwise Markdown)")
	f.BoolVar(&mf.ci, "ci", false, "Disable the interactive progress view")
	f.BoolVar(&mf.dryRun, "dry-run", false, "Only check access and preconditions; nothing is written")
	f.BoolVar(&mf.deletePlaceholderIssues, "delete-placeholder-issues", false, "Delete placeholder issues instead of closing them")
	f.BoolVar(&mf.keepPlaceholderMilestones, "keep-placeholder-milestones", false, "Close placeholder milestones instead of deleting them")
	f.StringVar(&mf.gitlabTokenPassPath, "gitlab-token-pass-path", "", "Read the GitLab token from this pass entry")
	f.StringVar(&mf.githubTokenPassPath, "github-token-pass-path", "", "Read the GitHub token from this pass entry")
}

// apply copies the positional arguments and flags onto cfg.
func (f *migrateFlags) apply(cfg *config.Config, args []string) error {
	project, err := gitlab.ParseProjectID(args[0])
	if err != nil {
		return err
	}
	cfg.GitLab.Project = project
	cfg.GitHub.Repo = args[1]

	if f.gitlabURL != "" {
		cfg.GitLab.URL = f.gitlabURL
	}
	if len(f.relabel) > 0 {
		cfg.Labels.Translations = append(cfg.Labels.Translations, f.relabel...)
	}
	if f.localClone != "" {
		cfg.Git.LocalClone = f.localClone
	}
	if f.noGit {
		cfg.Git.Skip = true
	}
	if f.output != "" {
		cfg.Report.Output = f.output
	}
	if f.deletePlaceholderIssues {
		cfg.Cleanup.DeletePlaceholderIssues = true
	}
	if f.keepPlaceholderMilestones {
		cfg.Cleanup.KeepPlaceholderMilestones = true
	}
	if f.dryRun {
		cfg.Steps = nil
		cfg.Workflow = "check"
	}
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, cfgPath, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if err := mf.apply(cfg, args); err != nil {
		return err
	}
	if err := resolveTokens(cfg, tokenSources{gitlabPassPath: mf.gitlabTokenPassPath, githubPassPath: mf.githubTokenPassPath}, passValue); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	interactive := !mf.ci && isTerminal(os.Stdout) && os.Getenv("CI") != "true"
	logger, err := log.NewLogger(log.Options{Debug: verbose, File: logFile, Quiet: interactive})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	undo := zap.ReplaceGlobals(logger)
	defer undo()

	runID := uuid.NewString()
	if cfgPath != "" {
		logger.Debug("loaded config", zap.String("path", cfgPath))
	}

	deps, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}

	registry := pipeline.NewRegistry()
	steps.RegisterAll(registry)
	p, err := registry.BuildFromNames(pipeline.ResolveSteps(cfg.Steps, cfg.Workflow), deps)
	if err != nil {
		return err
	}

	pctx := pipeline.NewContext(ctx, runID, cfg, logger)
	logger.Info("starting migration",
		zap.String("run_id", runID),
		zap.String("source", cfg.GitLab.Project),
		zap.String("target", cfg.GitHub.Repo))

	if interactive {
		err = runInteractive(ctx, p, pctx)
	} else {
		err = p.Run(pctx)
	}
	pctx.Finish(err)

	fmt.Fprintln(cmd.OutOrStdout(), pctx.Report.Render())
	if cfg.Report.Output != "" {
		if werr := pctx.Report.Write(cfg.Report.Output); werr != nil {
			logger.Error("failed to write report", zap.Error(werr))
		}
	}

	if err != nil {
		var phaseErr *pipeline.PhaseError
		if errors.As(err, &phaseErr) {
			fmt.Fprintf(cmd.ErrOrStderr(), "Migration stopped in phase %s (state %s): %v\n", phaseErr.Phase, pctx.State, phaseErr.Err)
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "Migration aborted: %v\n", err)
		}
		return errRunFailed
	}
	if !pctx.Report.Snapshot().Success {
		fmt.Fprintln(cmd.ErrOrStderr(), "Migration finished with mismatches, see the report")
		return errRunFailed
	}
	return nil
}

// buildDependencies connects to both trackers and prepares the git mirror.
func buildDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pipeline.Dependencies, error) {
	source := gitlab.NewSource(gitlab.NewClient(cfg.GitLab.Token, cfg.GitLab.URL, cfg.GitLab.Project), logger.Named("gitlab"))

	target, err := github.NewClient(ctx, github.Options{
		Repo:        cfg.GitHub.Repo,
		Token:       cfg.GitHub.Token,
		APIURL:      cfg.GitHub.APIURL,
		ReleaseTag:  cfg.Attachments.ReleaseTag,
		ReleaseName: cfg.Attachments.ReleaseName,
		Logger:      logger.Named("github"),
	})
	if err != nil {
		return nil, err
	}

	deps := &pipeline.Dependencies{Source: source, Target: target}
	if !cfg.Git.Skip {
		deps.Mirror = gitmirror.New(gitmirror.Options{
			SourceToken: cfg.GitLab.Token,
			TargetURL:   gitmirror.CloneURL(githubWebURL(cfg.GitHub.APIURL), cfg.GitHub.Repo),
			TargetToken: cfg.GitHub.Token,
			LocalClone:  cfg.Git.LocalClone,
			Logger:      logger.Named("git"),
		})
	}
	return deps, nil
}

// runInteractive runs the pipeline behind the progress view. Quitting the
// view cancels the run; the pipeline stops at the next phase boundary.
func runInteractive(ctx context.Context, p *pipeline.Pipeline, pctx *pipeline.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	pctx.Ctx = runCtx

	statusChan := make(chan tui.PipelineStatusMsg)
	wrapped := withStatus(runCtx, p, statusChan)

	errCh := make(chan error, 1)
	go func() {
		err := wrapped.Run(pctx)
		close(statusChan)
		errCh <- err
	}()

	model := tui.NewModel("gl2gh: "+pctx.Config.GitLab.Project+" → "+pctx.Config.GitHub.Repo, stepNames(p), statusChan, cancel)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		cancel()
		<-errCh
		return fmt.Errorf("progress view failed: %w", err)
	}
	return <-errCh
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
