package cli

import (
	"cmp"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type importRow struct {
	line   int
	title  string
	author string
	status string
}

type importFailure struct {
	Line  int    `json:"line"`
	Title string `json:"title"`
	Error string `json:"error"`
}

type importSummary struct {
	Total    int             `json:"total"`
	Imported int             `json:"imported"`
	Failed   []importFailure `json:"failed"`
}

// NewImportCommand bulk-creates books from a CSV file.
func NewImportCommand(opts *RootOptions) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "import FILE.csv",
		Short: "Create books from a CSV file with a title,author,status header",
		Long: `Create one book per CSV row on a running catalog.

The first row must name the columns; title and author are required,
status is optional and column order does not matter. Rows are sent
with up to --concurrency requests in flight. A failing row does not
stop the others; the command exits non-zero if any row failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open csv: %w", err)
			}
			defer f.Close()
			rows, err := readImportRows(f)
			if err != nil {
				return err
			}
			summary := runImport(cmd, opts, rows, concurrency)
			if opts.Format == "json" {
				if err := writeJSONOut(cmd.OutOrStdout(), summary); err != nil {
					return err
				}
			} else {
				for _, fail := range summary.Failed {
					fmt.Fprintf(cmd.ErrOrStderr(), "line %d (%s): %s\n", fail.Line, fail.Title, fail.Error)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d books\n", summary.Imported, summary.Total)
			}
			if len(summary.Failed) > 0 {
				return fmt.Errorf("%d of %d rows failed", len(summary.Failed), summary.Total)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "number of concurrent create requests")
	return cmd
}

func readImportRows(r io.Reader) ([]importRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	titleCol, ok := cols["title"]
	if !ok {
		return nil, errors.New("csv header must include a title column")
	}
	authorCol, ok := cols["author"]
	if !ok {
		return nil, errors.New("csv header must include an author column")
	}
	statusCol, hasStatus := cols["status"]

	var rows []importRow
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		row := importRow{
			line:   line,
			title:  cell(record, titleCol),
			author: cell(record, authorCol),
		}
		if hasStatus {
			row.status = cell(record, statusCol)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func cell(record []string, i int) string {
	if i < len(record) {
		return strings.TrimSpace(record[i])
	}
	return ""
}

func runImport(cmd *cobra.Command, opts *RootOptions, rows []importRow, concurrency int) importSummary {
	if concurrency < 1 {
		concurrency = 1
	}
	client := opts.client()
	summary := importSummary{Total: len(rows), Failed: []importFailure{}}
	var mu sync.Mutex

	// Row failures are collected rather than returned so one bad row does not
	// cancel the rest of the batch.
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(concurrency)
	for _, row := range rows {
		g.Go(func() error {
			_, err := client.CreateBook(ctx, row.title, row.author, row.status)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed = append(summary.Failed, importFailure{Line: row.line, Title: row.title, Error: err.Error()})
				return nil
			}
			summary.Imported++
			return nil
		})
	}
	_ = g.Wait()
	slices.SortFunc(summary.Failed, func(a, b importFailure) int { return cmp.Compare(a.Line, b.Line) })
	return summary
}
