package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCmd(a *app) *cobra.Command {
	var asJSON bool
	return withJSONFlag(&cobra.Command{
		Use:   "health",
		Short: "Check the backend and its model server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := a.newClient().Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("backend %s: %w", a.cfg.Backend.BaseURL, err)
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(h); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "backend: %s (%s)\n", h.Status, a.cfg.Backend.BaseURL)
				fmt.Fprintf(out, "ollama:  %s\n", h.Ollama.Status)
				if h.Ollama.Error != "" {
					fmt.Fprintf(out, "error:   %s\n", h.Ollama.Error)
				}
			}
			if !h.Healthy() {
				return errReported
			}
			return nil
		},
	}, &asJSON)
}

func newModelsCmd(a *app) *cobra.Command {
	var asJSON bool
	return withJSONFlag(&cobra.Command{
		Use:   "models",
		Short: "List the models available on the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.newClient().Models(cmd.Context())
			if err != nil {
				return fmt.Errorf("backend %s: %w", a.cfg.Backend.BaseURL, err)
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(m)
			}
			for _, name := range m.Models {
				marker := " "
				if name == m.Default {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\n", marker, name)
			}
			return nil
		},
	}, &asJSON)
}

func withJSONFlag(cmd *cobra.Command, target *bool) *cobra.Command {
	cmd.Flags().BoolVar(target, "json", false, "print the raw backend response as JSON")
	return cmd
}
