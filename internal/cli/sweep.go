package cli

import (
	"fmt"

	"github.com/monocle-dev/crons/db"
	"github.com/monocle-dev/crons/internal/checkins"
	"github.com/monocle-dev/crons/internal/scheduler"
	"github.com/monocle-dev/crons/internal/store"
	"github.com/spf13/cobra"
)

func SweepCmd() *cobra.Command {
	var batch int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Record missed check-ins once and exit",
		Long: `Runs a single pass of the missed check-in sweeper. Useful from an
external scheduler when serve runs with --no-sweep.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()

			if batch <= 0 {
				batch = a.cfg.Sweeper.BatchSize
			}

			checkInStore := store.New(db.DB)
			engine := checkins.NewEngine(checkInStore, checkins.WithLogger(a.log.Named("checkins")))
			s := scheduler.NewScheduler(engine, checkInStore,
				scheduler.WithBatchSize(batch),
				scheduler.WithLogger(a.log.Named("sweeper")),
			)

			recorded, err := s.Sweep(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d missed check-in(s)\n", recorded)
			return nil
		},
	}

	cmd.Flags().IntVar(&batch, "batch", 0, "Maximum monitors to process (defaults to the configured batch size)")

	return cmd
}
