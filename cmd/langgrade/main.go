// Command langgrade runs the document pipeline stages of the grader from the
// shell: normalizing uploads, packing photos into a PDF, checking CEFR level
// ranges and validating the HTTP contract.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"langgrade/internal/util"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "langgrade",
		Short:         "Offline tools for the LangGrade document pipeline",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level, _ := cmd.Flags().GetString("log-level")
			handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: util.ParseLevel(level)})
			slog.SetDefault(slog.New(handler))
		},
	}
	root.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(
		newNormalizeCmd(),
		newPackImagesCmd(),
		newLevelRangeCmd(),
		newCheckOpenAPICmd(),
	)
	return root
}
