package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"taskstream/internal/domain/job"
	"taskstream/internal/worker"
)

func NewRequeueCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		olderThan time.Duration
		batch     int
	)

	cmd := &cobra.Command{
		Use:   "requeue",
		Short: "Enqueue jobs for records still pending",
		Long: `Enqueue a processing job for every record that was created with a job
and has been pending for longer than --older-than. The failure flag stored
with the record is carried into the job.`,
		Args: cobra.NoArgs,
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

			sweeper := worker.NewSweeper(factory.Enqueuer(), []worker.PendingSource{
				{Kind: job.ProcessTransaction, Stale: worker.StaleFrom(stores.Transactions)},
				{Kind: job.SummarizeText, Stale: worker.StaleFrom(stores.Summaries)},
			}, 0, olderThan, batch, nil)

			n, err := sweeper.Sweep(ctx)
			if err != nil {
				return fmt.Errorf("requeue: %w", err)
			}

			if rootOpts.Format == "json" {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]int{"requeued": n})
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "requeued %d jobs\n", n)
			return err
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 2*time.Minute, "minimum age of a pending record")
	cmd.Flags().IntVar(&batch, "batch", 100, "maximum records per type")

	return cmd
}
