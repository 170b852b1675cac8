package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/marmos91/fsbridge/pkg/config"
)

var mountsJSON bool

// mountStatus is one row of the mounts report.
type mountStatus struct {
	Label    string `json:"label"`
	Path     string `json:"path"`
	Resolved string `json:"resolved,omitempty"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
}

var mountsCmd = &cobra.Command{
	Use:   "mounts",
	Short: "Print the configured mounts and whether they resolve",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}

		statuses := make([]mountStatus, 0, len(cfg.Mounts))
		for _, m := range cfg.Mounts {
			statuses = append(statuses, checkMount(m))
		}

		out := cmd.OutOrStdout()
		if mountsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(statuses)
		}

		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"Label", "Path", "Status"})
		for _, s := range statuses {
			status := "ok"
			if !s.OK {
				status = s.Error
			} else if s.Resolved != s.Path {
				status = "ok -> " + s.Resolved
			}
			table.Append([]string{s.Label, s.Path, status})
		}
		table.Render()
		return nil
	},
}

func checkMount(m config.MountConfig) mountStatus {
	s := mountStatus{Label: m.Label, Path: m.Path}

	resolved, err := filepath.EvalSymlinks(m.Path)
	if err != nil {
		s.Error = err.Error()
		return s
	}
	info, err := os.Stat(resolved)
	if err != nil {
		s.Error = err.Error()
		return s
	}
	if !info.IsDir() {
		s.Error = "not a directory"
		return s
	}

	s.Resolved = resolved
	s.OK = true
	return s
}

func init() {
	mountsCmd.Flags().BoolVar(&mountsJSON, "json", false, "print JSON instead of a table")
}
