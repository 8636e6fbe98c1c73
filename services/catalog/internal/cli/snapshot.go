package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSnapshotCommand asks a running catalog to export itself to object storage.
func NewSnapshotCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Export the catalog to object storage and print a download URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := opts.client().Snapshot(cmd.Context())
			if err != nil {
				return fmt.Errorf("snapshot: %w", err)
			}
			if opts.Format == "json" {
				return writeJSONOut(cmd.OutOrStdout(), snap)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d books -> %s\n%s\n", snap.Count, snap.Key, snap.URL)
			return err
		},
	}
}
