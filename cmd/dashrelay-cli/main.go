// Package main provides the dashrelay-cli command-line tool for
// validating configs and inspecting the table catalog.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	dashrelay "github.com/rld-labs/dashrelay"
	"github.com/rld-labs/dashrelay/internal/version"
	"github.com/rld-labs/dashrelay/tables"
)

func main() {
	root := &cobra.Command{
		Use:           "dashrelay-cli",
		Short:         "Management tool for the dashboard relay",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(validateCmd(), tablesCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a relay configuration file (JSON/YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := dashrelay.LoadConfig(args[0])
			if err != nil {
				return err
			}
			if err := dashrelay.ValidateConfig(*cfg); err != nil {
				return err
			}
			cmd.Printf("✓ %s is valid (profile=%s, max_records=%d, max_pages=%d)\n",
				args[0], cfg.Profile, cfg.Limits.MaxTotalRecords, cfg.Limits.MaxPages)
			return nil
		},
	}
}

func tablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "Print the table catalog (sort mappings)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := tables.Load()
			if err != nil {
				return err
			}
			ids := catalog.IDs()
			sort.Strings(ids)
			for _, id := range ids {
				t, _ := catalog.Lookup(id)
				legacy := ""
				if t.Legacy {
					legacy = " (legacy)"
				}
				cmd.Printf("%s  %-22s sort: %q %s%s\n", t.ID, t.Name, t.DateField, t.SortDirection, legacy)
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("dashrelay-cli", version.Full())
		},
	}
}
