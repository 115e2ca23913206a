package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"signverse/internal/logging"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the clip cache",
	}

	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheSweepCommand(ctx))

	return cacheCmd
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	var (
		language string
		limit    int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached clips, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				artifacts, err := a.cache.List(cmd.Context(), language, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, artifacts)
				}
				out := cmd.OutOrStdout()
				if len(artifacts) == 0 {
					fmt.Fprintln(out, "Cached clips: none")
					return nil
				}

				var total int64
				rows := make([][]string, 0, len(artifacts))
				for _, art := range artifacts {
					total += art.Handle.Size
					label := art.Label
					if label == "" {
						label = fmt.Sprintf("book %d chapter %d verses %s", art.Key.BookNumber, art.Chapter, art.Key.Verses)
					}
					rows = append(rows, []string{
						label,
						art.Key.Language,
						art.Key.Quality,
						art.Key.Overlay,
						humanize.Bytes(uint64(art.Handle.Size)),
						humanize.Time(art.CreatedAt),
						art.Handle.ID,
					})
				}
				fmt.Fprintln(out, tableSpec{
					Headers: []string{"Clip", "Lang", "Quality", "Overlay", "Size", "Created", "Handle"},
					Aligns:  []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft, alignLeft},
					Rows:    rows,
					Caption: fmt.Sprintf("%d clips, %s", len(artifacts), humanize.Bytes(uint64(total))),
				}.render())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&language, "lang", "l", "", "Only list clips of this language")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of clips (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print clips as JSON")
	return cmd
}

func newCacheSweepCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove clips of recordings that have since changed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				grace := olderThan
				if !cmd.Flags().Changed("older-than") {
					grace = a.cfg.CollectorGrace()
				}
				swept, err := a.cache.Sweep(cmd.Context(), grace)
				if err != nil {
					return err
				}
				var freed int64
				failed := 0
				for _, art := range swept {
					if err := a.library.Remove(cmd.Context(), art.Handle); err != nil {
						failed++
						logging.WarnWithContext(a.logger, "failed to remove swept clip", "clip_remove_failed",
							logging.String("handle", art.Handle.ID), logging.Error(err))
						continue
					}
					freed += art.Handle.Size
				}
				out := cmd.OutOrStdout()
				if len(swept) == 0 {
					fmt.Fprintln(out, "No stale clips found")
					return nil
				}
				fmt.Fprintf(out, "Swept %d clips (%s freed)\n", len(swept), humanize.Bytes(uint64(freed)))
				if failed > 0 {
					fmt.Fprintf(out, "%d clip files could not be removed; see the log\n", failed)
				}
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Minimum age of a stale clip (defaults to collector.grace_hours)")
	return cmd
}
