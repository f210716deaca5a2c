package main

import (
	"fmt"
	"strings"

	"github.com/etnz/debpack/deb"
	"github.com/etnz/debpack/manifest"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// buildSettings are the manifest values that flags and environment can override.
var buildSettings = []string{"source", "target", "compression", "file-name", "installation-root", "source-date-epoch"}

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [manifest]",
		Short: "Build the package described by a manifest",
		Long: "Build the package described by a manifest (default " + manifest.DefaultFile + ").\n\n" +
			"Flags override DEBPACK_* environment variables, which override the manifest.\n" +
			"SOURCE_DATE_EPOCH is honored for reproducible builds.",
		Args: cobra.MaximumNArgs(1),
		RunE: runBuild,
	}
	f := cmd.Flags()
	f.StringToStringP("define", "D", nil, "template variable KEY=VALUE, overriding the manifest defines")
	f.String("source", "", "directory holding the files to install")
	f.String("target", "", "directory receiving the package")
	f.String("compression", "", "tarball compression: plain, gzip, xz or zstd")
	f.String("file-name", "", "package file name")
	f.String("installation-root", "", "installation directory on the target system")
	f.Int64("source-date-epoch", 0, "Unix time stamped on every entry")
	f.Bool("events", false, "print build events as JSON lines on stdout")
	return cmd
}

func runBuild(cmd *cobra.Command, args []string) error {
	path := manifest.DefaultFile
	if len(args) == 1 {
		path = args[0]
	}
	defines, err := cmd.Flags().GetStringToString("define")
	if err != nil {
		return err
	}
	pkg, err := manifest.Load(path, defines)
	if err != nil {
		return err
	}

	v, err := newBuildViper(cmd.Flags())
	if err != nil {
		return err
	}
	if err := applyOverrides(v, pkg); err != nil {
		return err
	}

	opts, err := pkg.Options()
	if err != nil {
		return err
	}

	logger := newLogger()
	options := []deb.Option{deb.WithLogger(logger)}
	if events, _ := cmd.Flags().GetBool("events"); events {
		out := cmd.OutOrStdout()
		options = append(options, deb.WithListener(func(e fmt.Stringer) {
			fmt.Fprintln(out, e.String())
		}))
	}

	p, err := deb.New(opts, options...)
	if err != nil {
		return err
	}
	output, err := p.Package(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "Created", output)
	return nil
}

// newBuildViper binds the build flags and their DEBPACK_* environment variables.
func newBuildViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("debpack")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("source-date-epoch", "DEBPACK_SOURCE_DATE_EPOCH", "SOURCE_DATE_EPOCH"); err != nil {
		return nil, err
	}
	for _, key := range buildSettings {
		if err := v.BindPFlag(key, flags.Lookup(key)); err != nil {
			return nil, fmt.Errorf("binding --%s: %w", key, err)
		}
	}
	return v, nil
}

// applyOverrides replaces the manifest values set by a flag or an
// environment variable.
func applyOverrides(v *viper.Viper, pkg *manifest.Package) error {
	str := map[string]*string{
		"source":            &pkg.Source,
		"target":            &pkg.Target,
		"compression":       &pkg.Compression,
		"file-name":         &pkg.FileName,
		"installation-root": &pkg.InstallationRoot,
	}
	for key, field := range str {
		if v.IsSet(key) {
			*field = v.GetString(key)
		}
	}
	if v.IsSet("source-date-epoch") {
		epoch := v.GetInt64("source-date-epoch")
		if epoch < 0 {
			return fmt.Errorf("source date epoch must not be negative, got %d", epoch)
		}
		pkg.SourceDateEpoch = epoch
	}
	return nil
}
