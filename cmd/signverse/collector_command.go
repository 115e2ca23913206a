package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"signverse/internal/collector"
)

func newCollectorCommand(ctx *commandContext) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "collector",
		Short: "Run the stale clip collector on its schedule",
		Long: "Sweep clips whose chapter recording has changed, remove their files, and trim\n" +
			"downloaded media. Runs until interrupted unless --once is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				c := collector.New(a.cfg, a.cache, a.library, a.fetcher, a.logger)
				if once {
					summary, err := c.RunOnce(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Swept %d clips, removed %d, %d failures\n",
						summary.Swept, summary.Removed, summary.Failed)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Collector running on schedule %q (lock %s)\n", a.cfg.Collector.Schedule, c.LockPath())
				if err := c.Run(cmd.Context()); err != nil {
					if errors.Is(err, collector.ErrAlreadyRunning) {
						return fmt.Errorf("%w (lock %s)", err, c.LockPath())
					}
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Run a single collection pass and exit")
	return cmd
}
