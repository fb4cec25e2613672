package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"langgrade/pkg/convert"
)

func newNormalizeCmd() *cobra.Command {
	var (
		out      string
		maxPages int
		maxWords int
	)
	cmd := &cobra.Command{
		Use:   "normalize <file.pdf|file.epub>",
		Short: "Convert an EPUB or trim a PDF the way uploads are normalized",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			if out == "" {
				base := filepath.Base(input)
				out = strings.TrimSuffix(base, filepath.Ext(base)) + ".normalized.pdf"
			}
			cacheDir, err := os.MkdirTemp("", "langgrade-normalize-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(cacheDir)

			normalizer, err := convert.NewNormalizer(convert.Options{
				CacheDir: cacheDir,
				MaxPages: maxPages,
				MaxWords: maxWords,
			})
			if err != nil {
				return err
			}
			res, err := normalizer.Normalize(cmd.Context(), input)
			if err != nil {
				return fmt.Errorf("normalize %s: %w", input, err)
			}
			if err := os.WriteFile(out, res.Data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d pages)\n", out, res.Pages)
			if res.Metadata.Title != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "title: %s\n", res.Metadata.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output PDF (default <name>.normalized.pdf)")
	cmd.Flags().IntVar(&maxPages, "max-pages", convert.DefaultMaxPages, "page limit")
	cmd.Flags().IntVar(&maxWords, "max-words", 0, "word limit for EPUB layout (0 keeps the default)")
	return cmd
}
