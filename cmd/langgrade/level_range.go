package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"langgrade/pkg/cefr"
)

func newLevelRangeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "level-range <book-level> [filter-level]...",
		Short: "Show how a book level such as \"A2 - B1\" matches library filters",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookLevel := args[0]
			r, ok := cefr.ParseRange(bookLevel)
			if !ok {
				return fmt.Errorf("%w: %q", cefr.ErrInvalidLevel, bookLevel)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s: %s..%s\n", bookLevel, r.Start, r.End)

			filters := args[1:]
			if len(filters) == 0 {
				for _, l := range cefr.Levels {
					filters = append(filters, string(l))
				}
			}
			for _, f := range filters {
				fmt.Fprintf(w, "  %-3s %t\n", f, cefr.InRange(bookLevel, f))
			}
			return nil
		},
	}
}
