package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"neosweat/internal/blob"
)

func newUploadCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <id> <export.csv>",
		Short: "Upload a sensor export for a record, replacing any previous export",
		Long: `Upload copies a sweat sensor export to the configured export store under
the record's export key. Exports grow over time; the record keeps its cursor,
so only rows from the last converted row onward are converted on the next read.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			f, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("open export: %w", err)
			}
			defer func() { _ = f.Close() }()

			return withApp(cmd.Context(), root, func(a *app) error {
				if !a.svc.RecordExists(cmd.Context(), id) {
					return fmt.Errorf("record %d does not exist", id)
				}
				key := a.svc.ExportKey(id)
				info, err := blob.Replace(cmd.Context(), a.svc.Blobs(), key, f, blob.PutOptions{ContentType: blob.ContentTypeCSV})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s (%d bytes)\n", info.Key, info.Size)
				return nil
			})
		},
	}
}
