// Package cli holds the cobra commands of the catalog binary.
package cli

import (
	"fmt"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"stocktake/services/catalog/internal/catalogclient"
)

const defaultServerURL = "http://localhost:8080"

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Server     string
	Format     string
	Timeout    time.Duration
}

// NewRootCommand creates the root command for the catalog binary.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Stocktake book catalog",
		Long:  "Serve the stocktake book catalog API, or manage a running catalog from the command line.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default $CATALOG_CONFIG or config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.Server, "server", serverFromEnv(), "catalog API base URL")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "HTTP timeout for API calls")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewBooksCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewSnapshotCommand(opts))

	return cmd
}

func (o *RootOptions) client() *catalogclient.Client {
	return catalogclient.NewClient(o.Server, &http.Client{Timeout: o.Timeout})
}

func serverFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("CATALOG_SERVER")); v != "" {
		return v
	}
	return defaultServerURL
}
