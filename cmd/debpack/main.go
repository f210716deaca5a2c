// Command debpack builds Debian packages from a directory and a manifest.
//
// Usage:
//
//	debpack init [dir]              create a debpack.toml manifest
//	debpack build [manifest]        build the package described by the manifest
//	debpack inspect <file.deb>      print the members and metadata of a package
//
// Build settings are resolved with the precedence flags > DEBPACK_*
// environment variables > manifest.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var flagVerbose bool

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "debpack",
		Short:         "Build Debian packages",
		Long:          "debpack turns a directory of application files and a manifest into a .deb package.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log every step")

	root.AddCommand(newInitCmd())
	root.AddCommand(newBuildCmd())
	root.AddCommand(newInspectCmd())
	return root
}

// newLogger returns the logger of the CLI, writing text records to stderr.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		newLogger().Error("debpack failed", "error", err)
		stop()
		os.Exit(1)
	}
}
