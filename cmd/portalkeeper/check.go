package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckConfigCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and print the download catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := s.loadConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config: %s\n", cfg.FilePath)
			fmt.Fprintf(out, "entry url: %s\n", cfg.Portal.EntryURL)
			if cfg.KeepAlive.Enabled {
				fmt.Fprintf(out, "keep-alive: every %s (fallback %s)\n", cfg.KeepAlive.Interval, cfg.KeepAlive.FallbackInterval)
			} else {
				fmt.Fprintln(out, "keep-alive: disabled")
			}
			fmt.Fprintf(out, "download dir: %s\n", cfg.Download.Dir)
			fmt.Fprintf(out, "catalog (%d entries):\n", len(cfg.Download.Catalog))
			for i, e := range cfg.Download.Catalog {
				fmt.Fprintf(out, "  %2d. %s -> %s\n", i+1, e.Label, e.FileName)
			}
			return nil
		},
	}
}
