package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/etnz/debpack/manifest"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a debpack.toml manifest",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			abs, err := filepath.Abs(dir)
			if err != nil {
				return err
			}
			if name == "" {
				name = manifest.InferName(abs)
			}
			if err := os.MkdirAll(abs, 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", abs, err)
			}
			path, err := manifest.Init(abs, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "package name (defaults to the directory name)")
	return cmd
}
