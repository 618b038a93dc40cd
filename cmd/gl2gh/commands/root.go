// Package commands implements the gl2gh command line.
package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

var (
	cfgFile string
	verbose bool
	logFile string
)

// errRunFailed means the failure was already reported to the user.
var errRunFailed = errors.New("migration failed")

var rootCmd = &cobra.Command{
	Use:   "gl2gh",
	Short: "Migrate a GitLab project to GitHub, keeping issue and milestone numbers",
	Long: `gl2gh copies a GitLab project to a new GitHub repository.

Git history, labels, milestones, issues, comments, attachments and issue
relationships are migrated. Issue and milestone numbers on GitHub match
the GitLab ones; gaps are filled with placeholders that are closed or
deleted at the end of the run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to config file (default: .gl2gh.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file")
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, errRunFailed) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}
