package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"signverse/internal/citation"
	"signverse/internal/passage"
	"signverse/internal/publish"
	"signverse/internal/segment"
)

func newPassageCommand(ctx *commandContext) *cobra.Command {
	var (
		language  string
		quality   string
		overlay   string
		thumbnail string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "passage <citation>",
		Short: "Render or reuse the clip for a citation",
		Long: "Parse a citation such as \"Mt 5:3-7\" and deliver its clip.\n" +
			"A citation without verses lists the verses of the chapter; a bare book lists its chapters.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return ctx.withApp(func(a *app) error {
				psg, parser, err := a.parseCitation(cmd.Context(), language, text)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()

				switch {
				case psg.Chapter == 0:
					listing, err := a.service.BookListing(cmd.Context(), psg.Language, psg.BookNumber)
					if err != nil {
						return err
					}
					return printListing(cmd, out, listing, asJSON)
				case len(psg.Verses) == 0:
					listing, err := a.service.AvailableVerses(cmd.Context(), psg.Language, psg.BookNumber, psg.Chapter)
					if err != nil {
						return err
					}
					return printListing(cmd, out, listing, asJSON)
				}

				deliveries, err := a.service.Satisfy(cmd.Context(), passage.Request{
					Passage: psg,
					Quality: quality,
					Overlay: overlay,
				})
				if err != nil {
					return err
				}
				if thumbnail != "" && len(deliveries) > 0 {
					if err := writeThumbnail(cmd, a, deliveries[0], thumbnail); err != nil {
						return err
					}
				}
				if asJSON {
					return writeJSON(cmd, deliveries)
				}
				fmt.Fprintln(out, deliveryTable(a, parser.Citation(psg), deliveries))
				return nil
			})
		},
	}

	addLanguageFlag(cmd, &language)
	cmd.Flags().StringVarP(&quality, "quality", "q", "", "Video quality such as 720p (defaults to render.default_quality)")
	cmd.Flags().StringVar(&overlay, "overlay", "", "Burn the citation into the picture using this language's book name")
	cmd.Flags().StringVar(&thumbnail, "thumbnail", "", "Also write a JPEG thumbnail of the clip to this path")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print deliveries as JSON")
	return cmd
}

func deliveryTable(a *app, title string, deliveries []passage.Delivery) string {
	rows := make([][]string, 0, len(deliveries))
	for _, d := range deliveries {
		source := "rendered"
		if d.CacheHit {
			source = "cache"
		}
		path, err := a.library.Path(d.Artifact.Handle)
		if err != nil {
			path = d.Artifact.Handle.ID
		}
		h := d.Artifact.Handle
		rows = append(rows, []string{
			d.Citation,
			source,
			humanize.Bytes(uint64(h.Size)),
			h.Duration.Round(time.Millisecond).String(),
			fmt.Sprintf("%dx%d", h.Width, h.Height),
			path,
		})
	}
	return tableSpec{
		Headers: []string{"Citation", "Source", "Size", "Duration", "Resolution", "Path"},
		Aligns:  []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
		Rows:    rows,
		Caption: title,
	}.render()
}

func printListing(cmd *cobra.Command, out io.Writer, listing passage.Listing, asJSON bool) error {
	if asJSON {
		return writeJSON(cmd, listing)
	}
	switch {
	case len(listing.Chapters) > 0:
		fmt.Fprintf(out, "%s: chapters %s\n", listing.Citation, citation.FormatVerses(listing.Chapters))
	case len(listing.Verses) > 0:
		fmt.Fprintf(out, "%s: verses %s\n", listing.Citation, citation.FormatVerses(listing.Verses))
	default:
		fmt.Fprintf(out, "%s: nothing available\n", listing.Citation)
	}
	return nil
}

func writeThumbnail(cmd *cobra.Command, a *app, d passage.Delivery, dest string) error {
	path, err := a.library.Path(d.Artifact.Handle)
	if err != nil {
		return err
	}
	// The library copy is not a scratch clip; it must never be closed.
	thumb, err := a.segmenter.Thumbnail(cmd.Context(), &segment.Clip{Path: path})
	if err != nil {
		return err
	}
	if err := publish.MoveFile(thumb, dest); err != nil {
		return fmt.Errorf("write thumbnail: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Thumbnail written to %s\n", dest)
	return nil
}
