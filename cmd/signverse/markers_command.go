package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"signverse/internal/citation"
	"signverse/internal/scripture"
)

func newMarkersCommand(ctx *commandContext) *cobra.Command {
	var (
		language string
		force    bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "markers <citation>",
		Short: "Resolve and list the verse markers of a chapter",
		Long: "Resolve the verse markers of a chapter such as \"Mt 5\".\n" +
			"A bare book refreshes the markers of every chapter in it.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				psg, parser, err := a.parseCitation(cmd.Context(), language, strings.Join(args, " "))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()

				if psg.Chapter == 0 {
					summary, err := a.resolver.RefreshBook(cmd.Context(), psg.Language, psg.BookNumber, force)
					if err != nil {
						return err
					}
					if asJSON {
						return writeJSON(cmd, summary)
					}
					name := parser.Citation(psg)
					if summary.Skipped {
						fmt.Fprintf(out, "%s is fresh; use --force to refresh anyway\n", name)
						return nil
					}
					fmt.Fprintf(out, "%s: %d chapters, %d replaced, %d with markers\n",
						name, summary.Chapters, summary.Replaced, summary.WithMarkers)
					if len(summary.WithoutMarkers) > 0 {
						fmt.Fprintf(out, "Chapters without embedded markers: %s\n", citation.FormatVerses(summary.WithoutMarkers))
					}
					return nil
				}

				key := scripture.ChapterKey{Language: psg.Language, Book: psg.BookNumber, Chapter: psg.Chapter}
				res, err := a.resolver.Resolve(cmd.Context(), key)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, res.Markers)
				}

				rows := make([][]string, 0, len(res.Markers))
				for _, m := range res.Markers {
					if len(psg.Verses) > 0 && !containsVerse(psg.Verses, m.VerseNumber) {
						continue
					}
					rows = append(rows, []string{
						strconv.Itoa(m.VerseNumber),
						scripture.FormatSeconds(m.StartTime),
						scripture.FormatSeconds(m.Duration),
						scripture.FormatSeconds(m.EndTransitionDuration),
						m.Label,
					})
				}
				fmt.Fprintln(out, tableSpec{
					Headers: []string{"Verse", "Start", "Duration", "Transition", "Label"},
					Aligns:  []columnAlignment{alignRight, alignRight, alignRight, alignRight, alignLeft},
					Rows:    rows,
					Caption: fmt.Sprintf("%s from %s tier (checksum %s)", citation.Format(parser.Table().Name(psg.BookNumber), psg.Chapter, nil), res.Tier, res.Chapter.Checksum),
				}.render())
				return nil
			})
		},
	}

	addLanguageFlag(cmd, &language)
	cmd.Flags().BoolVar(&force, "force", false, "Refresh a book even when its chapter index is fresh")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print markers as JSON")
	return cmd
}

func containsVerse(verses []int, v int) bool {
	for _, x := range verses {
		if x == v {
			return true
		}
	}
	return false
}
