package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/altiplano/parasearch/internal/cli"
	"github.com/altiplano/parasearch/internal/session"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		output      string
		outFile     string
		numResults  int
		temperature float64
		expand      []int
	)
	cmd := &cobra.Command{
		Use:   "search [flags] <query>",
		Short: "Run one search and print the results",
		Long: `Run one search and print the results.

Query is all remaining arguments joined by spaces. Multi-word queries work with or
without quotes. Use --expand to show the full content of results that have it.`,
		Example: `  parasearch search what is quantum mechanics
  parasearch search -o json "Explain photosynthesis"
  parasearch search --expand 1,3 history of ancient rome
  parasearch search -o xlsx --out-file results.xlsx who was leonardo da vinci`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := buildSearchQuery(args)
			if query == "" {
				return fmt.Errorf("query must not be empty")
			}
			if output == "" {
				output = a.cfg.Output.Format
			}
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if outFile != "" {
				f, err := os.Create(outFile)
				if err != nil {
					return fmt.Errorf("create %s: %w", outFile, err)
				}
				defer f.Close()
				w = f
			} else if format == cli.OutputXLSX {
				return fmt.Errorf("xlsx output requires --out-file")
			}

			n, temp := a.cfg.Search.NumResults, a.cfg.Search.TemperatureOrDefault()
			if cmd.Flags().Changed("num-results") {
				n = numResults
			}
			if cmd.Flags().Changed("temperature") {
				temp = temperature
			}
			if n < 1 || temp < 0 || temp > 1 {
				return fmt.Errorf("num-results must be at least 1 and temperature within [0, 1]")
			}

			ctx := cmd.Context()
			ctrl := a.newController(session.WithRequestDefaults(n, temp))
			ctrl.Start(ctx)
			defer ctrl.Stop()

			seq, ok := ctrl.Submit(query)
			if !ok {
				return fmt.Errorf("query must not be empty")
			}
			state, err := ctrl.Await(ctx, seq)
			if err != nil {
				return err
			}
			for _, i := range expand {
				if !ctrl.Toggle(i - 1) {
					a.logger.Sugar().Debugf("result %d has no expanded content", i)
				}
			}
			state = ctrl.Snapshot()

			if err := cli.WriteSession(w, state, format, renderOptions(a.cfg, w)); err != nil {
				return fmt.Errorf("output failed: %w", err)
			}
			if state.Err != nil {
				return errReported
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output format: text, compact, json, or xlsx (default from config)")
	cmd.Flags().StringVar(&outFile, "out-file", "", "write output to this file instead of stdout")
	cmd.Flags().IntVarP(&numResults, "num-results", "n", 5, "number of results to request")
	cmd.Flags().Float64VarP(&temperature, "temperature", "t", 0.3, "backend generation temperature")
	cmd.Flags().IntSliceVar(&expand, "expand", nil, "result numbers (from 1) to show expanded")
	return cmd
}
