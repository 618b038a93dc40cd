package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/similigh/gl2gh/internal/labels"
)

var translatePatterns []string

var translateLabelCmd = &cobra.Command{
	Use:   "translate-label <label>...",
	Short: "Show how labels would be renamed by --relabel patterns",
	Example: `  gl2gh translate-label -l "p_*:priority: *" p_high bug`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tr, err := labels.NewTranslator(translatePatterns)
		if err != nil {
			return err
		}
		for _, name := range args {
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", name, tr.Translate(name))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(translateLabelCmd)

	translateLabelCmd.Flags().StringArrayVarP(&translatePatterns, "relabel", "l", nil, "Label translation pattern source:target ('*' matches any text)")
}
