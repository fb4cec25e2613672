package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"langgrade/pkg/convert"
)

func newPackImagesCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "pack-images <image>...",
		Short: "Pack images into one PDF, one page per image",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			images := make([]convert.Image, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				images = append(images, convert.Image{Name: filepath.Base(path), Data: data})
			}
			pdf, pages, err := convert.PackImages(cmd.Context(), images)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, pdf, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d of %d images)\n", out, pages, len(images))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "converted-images.pdf", "output PDF")
	return cmd
}
