package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"taskstream/internal/domain/record"
)

type inspectRow struct {
	Type      string        `json:"type"`
	ID        string        `json:"id"`
	Status    record.Status `json:"status"`
	Key       string        `json:"idempotency_key"`
	CreatedAt time.Time     `json:"created_at"`
}

func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the most recent transactions and summaries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			_, factory, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer factory.Close()

			stores, err := factory.Stores(ctx)
			if err != nil {
				return err
			}

			txs, err := stores.Transactions.List(ctx, limit)
			if err != nil {
				return err
			}
			sums, err := stores.Summaries.List(ctx, limit)
			if err != nil {
				return err
			}

			rows := make([]inspectRow, 0, len(txs)+len(sums))
			rows = appendRows(rows, "transaction", txs)
			rows = appendRows(rows, "summary", sums)
			return writeRows(cmd.OutOrStdout(), rootOpts.Format, rows)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 5, "records per type")

	return cmd
}

func appendRows[T record.Entity](rows []inspectRow, typ string, items []T) []inspectRow {
	for _, it := range items {
		rows = append(rows, inspectRow{
			Type:      typ,
			ID:        it.RecordID(),
			Status:    it.State(),
			Key:       it.Key(),
			CreatedAt: it.Created(),
		})
	}
	return rows
}

func writeRows(w io.Writer, format string, rows []inspectRow) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "no records")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tID\tSTATUS\tCREATED")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Type, r.ID, r.Status, r.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
