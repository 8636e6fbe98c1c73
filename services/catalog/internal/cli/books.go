package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewBooksCommand groups the commands that act on a running catalog.
func NewBooksCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "books",
		Short: "List, add and delete books on a running catalog",
	}
	cmd.AddCommand(newBooksListCommand(rootOpts))
	cmd.AddCommand(newBooksAddCommand(rootOpts))
	cmd.AddCommand(newBooksDeleteCommand(rootOpts))
	cmd.AddCommand(newBooksHistoryCommand(rootOpts))
	return cmd
}

func newBooksListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every book ordered by id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			books, err := opts.client().ListBooks(cmd.Context())
			if err != nil {
				return fmt.Errorf("list books: %w", err)
			}
			return printBooks(cmd.OutOrStdout(), opts.Format, books)
		},
	}
}

func newBooksAddCommand(opts *RootOptions) *cobra.Command {
	var title, author, status string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a book",
		Example: `  catalog books add --title Dune --author Herbert --status available`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := opts.client().CreateBook(cmd.Context(), title, author, status)
			if err != nil {
				return fmt.Errorf("add book: %w", err)
			}
			if opts.Format == "json" {
				return writeJSONOut(cmd.OutOrStdout(), book)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "created book %d\n", book.ID)
			return err
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "book title (required)")
	cmd.Flags().StringVar(&author, "author", "", "book author (required)")
	cmd.Flags().StringVar(&status, "status", "", "free-form status, e.g. available")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("author")
	return cmd
}

func newBooksDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a book by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			msg, err := opts.client().DeleteBook(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("delete book %d: %w", id, err)
			}
			if opts.Format == "json" {
				return writeJSONOut(cmd.OutOrStdout(), map[string]any{"message": msg, "id": id})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), msg)
			return err
		},
	}
}

func newBooksHistoryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history ID",
		Short: "Show the create/delete history of a book id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			events, err := opts.client().BookHistory(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("book %d history: %w", id, err)
			}
			return printEvents(cmd.OutOrStdout(), opts.Format, events)
		},
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid book id %q", raw)
	}
	return id, nil
}
