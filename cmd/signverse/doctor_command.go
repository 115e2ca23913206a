package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"signverse/internal/preflight"
	"signverse/internal/services"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var (
		network bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, binaries, and the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			if network {
				results = append(results,
					preflight.CheckEndpoint(cmd.Context(), "Publication media", cfg.Sources.PubMediaURL),
					preflight.CheckEndpoint(cmd.Context(), "Marker pages", cfg.Sources.MarkerPageURL),
				)
			}
			if asJSON {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					rows = append(rows, []string{r.Name, checkMark(r), r.Detail})
				}
				fmt.Fprintln(cmd.OutOrStdout(), tableSpec{
					Headers: []string{"Check", "Status", "Detail"},
					Rows:    rows,
				}.render())
			}

			failed := preflight.Failed(results)
			if len(failed) > 0 {
				return services.Wrap(services.ErrConfiguration, "cli", "doctor", "",
					fmt.Errorf("%d required checks failed", len(failed)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&network, "network", false, "Also check that upstream endpoints answer")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

func checkMark(r preflight.Result) string {
	switch {
	case r.Passed:
		return "ok"
	case r.Optional:
		return "warn"
	default:
		return "FAIL"
	}
}
