package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/etnz/debpack/deb"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect <file.deb>",
		Short: "Print the members and metadata of a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			info, err := deb.Inspect(f)
			if err != nil {
				return fmt.Errorf("inspecting %s: %w", args[0], err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			return printInfo(cmd.OutOrStdout(), info)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func printInfo(w io.Writer, info *deb.Info) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OFFSET\tMEMBER\tSIZE\tMODE")
	for _, m := range info.Members {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%o\n", m.Offset, m.Name, m.Size, m.Mode)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%s\n", info.Control)

	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, h := range info.DataEntries {
		name := h.Name
		if h.Linkname != "" {
			name += " -> " + h.Linkname
		}
		fmt.Fprintf(tw, "%s\t%s/%s\t%d\t%s\n", os.FileMode(h.Mode).Perm(), h.Uname, h.Gname, h.Size, name)
	}
	return tw.Flush()
}
