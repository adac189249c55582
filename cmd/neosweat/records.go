package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"neosweat/internal/config"
	"neosweat/internal/httpapi"
	"neosweat/internal/logging"
	"neosweat/pkg/domain"
)

func newRecordsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect and manage records",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List stored records without refreshing sweat readings",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd.Context(), root, func(a *app) error {
					records := a.svc.ListRecords(cmd.Context())
					if len(records) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "No records found")
						return nil
					}
					w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "ID\tNOTES\tPRICKS\tSWEAT\tPREV_POINT\tUPDATED")
					for _, r := range records {
						fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%s\n", r.ID, len(r.Notes), len(r.PrickReadings),
							len(r.SweatReadings), r.Cursor, r.UpdatedAt.Format(domain.TimestampLayout))
					}
					return w.Flush()
				})
			},
		},
		&cobra.Command{
			Use:   "create <id>",
			Short: "Create an empty record",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseRecordID(args[0])
				if err != nil {
					return err
				}
				return withApp(cmd.Context(), root, func(a *app) error {
					rec, err := a.svc.AddRecord(cmd.Context(), domain.NewRecord(id))
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Created record %d\n", rec.ID)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "show <id>",
			Short: "Refresh sweat readings for a record and print it as JSON",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseRecordID(args[0])
				if err != nil {
					return err
				}
				return withApp(cmd.Context(), root, func(a *app) error {
					rec, err := a.svc.GetRecord(cmd.Context(), id)
					if err != nil {
						return err
					}
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(httpapi.NewRecordView(rec))
				})
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a record",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseRecordID(args[0])
				if err != nil {
					return err
				}
				return withApp(cmd.Context(), root, func(a *app) error {
					if err := a.svc.DeleteRecord(cmd.Context(), id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted record %d\n", id)
					return nil
				})
			},
		},
	)
	return cmd
}

func parseRecordID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid record id %q", raw)
	}
	return id, nil
}

// withApp opens the configured stores for a one-shot command. One-shot
// commands log nothing so their stdout stays machine readable.
func withApp(ctx context.Context, root *rootOptions, fn func(*app) error) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	return runWithConfig(ctx, cfg, fn)
}

func runWithConfig(ctx context.Context, cfg *config.Config, fn func(*app) error) (err error) {
	a, err := openApp(ctx, cfg, logging.NewAdapter(nil))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}
