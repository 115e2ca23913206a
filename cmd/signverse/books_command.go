package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"signverse/internal/scripture"
	"signverse/internal/services"
)

// referenceFile is the layout accepted by `books import`.
type referenceFile struct {
	Language scripture.Language `json:"language"`
	Books    []scripture.Book   `json:"books"`
}

func newBooksCommand(ctx *commandContext) *cobra.Command {
	booksCmd := &cobra.Command{
		Use:   "books",
		Short: "Manage language and book reference data",
	}
	booksCmd.AddCommand(newBooksImportCommand(ctx))
	booksCmd.AddCommand(newBooksListCommand(ctx))
	return booksCmd
}

func newBooksImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import a language and its books from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := readReferenceFile(args[0])
			if err != nil {
				return services.Wrap(services.ErrValidation, "cli", "read reference file", "", err)
			}
			return ctx.withApp(func(a *app) error {
				if err := a.store.UpsertLanguage(cmd.Context(), ref.Language); err != nil {
					return err
				}
				if err := a.store.UpsertBooks(cmd.Context(), ref.Books); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %s (%s) with %d books\n", ref.Language.Name, ref.Language.Code, len(ref.Books))
				return nil
			})
		},
	}
}

func readReferenceFile(path string) (referenceFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return referenceFile{}, err
	}
	var ref referenceFile
	if err := json.Unmarshal(data, &ref); err != nil {
		return referenceFile{}, fmt.Errorf("parse %s: %w", path, err)
	}
	ref.Language.Code = strings.TrimSpace(ref.Language.Code)
	if ref.Language.Code == "" {
		return referenceFile{}, errors.New("language.code is required")
	}
	if len(ref.Books) == 0 {
		return referenceFile{}, errors.New("at least one book is required")
	}
	for i := range ref.Books {
		b := &ref.Books[i]
		if b.Language == "" {
			b.Language = ref.Language.Code
		}
		if b.Language != ref.Language.Code {
			return referenceFile{}, fmt.Errorf("book %d belongs to %s, not %s", b.Number, b.Language, ref.Language.Code)
		}
		if b.Number <= 0 || strings.TrimSpace(b.Name) == "" {
			return referenceFile{}, fmt.Errorf("book entry %d needs a number and a name", i+1)
		}
	}
	return ref, nil
}

func newBooksListCommand(ctx *commandContext) *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the books of a language",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				out := cmd.OutOrStdout()
				if strings.TrimSpace(language) == "" {
					langs, err := a.store.ListLanguages(cmd.Context())
					if err != nil {
						return err
					}
					rows := make([][]string, 0, len(langs))
					for _, l := range langs {
						rows = append(rows, []string{l.Code, l.Name, l.Vernacular, l.Locale})
					}
					fmt.Fprintln(out, tableSpec{
						Headers: []string{"Code", "Name", "Vernacular", "Locale"},
						Rows:    rows,
					}.render())
					return nil
				}
				books, err := a.store.ListBooks(cmd.Context(), language)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(books))
				for _, b := range books {
					refreshed := "never"
					if !b.RefreshedAt.IsZero() {
						refreshed = b.RefreshedAt.Local().Format("2006-01-02 15:04")
					}
					aliases := b.Aliases()
					if len(aliases) > 0 {
						aliases = aliases[1:]
					}
					rows = append(rows, []string{strconv.Itoa(b.Number), b.Name, strings.Join(aliases, ", "), refreshed})
				}
				fmt.Fprintln(out, tableSpec{
					Headers: []string{"#", "Name", "Aliases", "Refreshed"},
					Aligns:  []columnAlignment{alignRight},
					Rows:    rows,
				}.render())
				return nil
			})
		},
	}
	addLanguageFlag(cmd, &language)
	return cmd
}
