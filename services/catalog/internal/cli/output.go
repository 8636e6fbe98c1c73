package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"stocktake/pkg/domain"
)

func writeJSONOut(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printBooks(w io.Writer, format string, books []domain.Book) error {
	if format == "json" {
		if books == nil {
			books = []domain.Book{}
		}
		return writeJSONOut(w, books)
	}
	if len(books) == 0 {
		_, err := fmt.Fprintln(w, "no books")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tSTATUS")
	for _, b := range books {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", b.ID, b.Title, b.Author, orDash(b.Status))
	}
	return tw.Flush()
}

func printEvents(w io.Writer, format string, events []domain.BookEvent) error {
	if format == "json" {
		return writeJSONOut(w, events)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EVENT\tACTION\tAT\tPAYLOAD")
	for _, e := range events {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.ID, e.Action, e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"), orDash(string(e.Payload)))
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
