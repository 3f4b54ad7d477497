package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lisanmuaddib/gas-escalator/internal/appconfig"
	"github.com/lisanmuaddib/gas-escalator/pkg/simulation"
)

var (
	simBlocksFile string
	simTxsFile    string
	simFromDB     bool
	simFrom       uint64
	simCount      uint64

	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Replay historical blocks with a fixed-fee and an escalating strategy",
		Long: `Replay historical blocks and submit one transaction per strategy at every
block. The dataset comes from --blocks/--txs JSON files or, with --db, from
Postgres. The escalator is configured through ESCALATOR_*.`,
		Args: cobra.NoArgs,
		RunE: simulatecmd,
	}
)

func init() {
	simulateCmd.Flags().StringVar(&simBlocksFile, "blocks", "", "Block base fee JSON file")
	simulateCmd.Flags().StringVar(&simTxsFile, "txs", "", "Transaction JSON file")
	simulateCmd.Flags().BoolVar(&simFromDB, "db", false, "Read the dataset from the database")
	simulateCmd.Flags().Uint64Var(&simFrom, "from", 0, "First block to submit at")
	simulateCmd.Flags().Uint64Var(&simCount, "count", 100, "Number of blocks to submit at")
}

// simulatecmd is the handler for the command `gasbump simulate`.
func simulatecmd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var (
		dataset *simulation.Dataset
		err     error
	)
	switch {
	case simFromDB:
		store, closeStore, err := openDatasetStore()
		if err != nil {
			return err
		}
		// The block before from prices the first submission.
		start := simFrom
		if start > 0 {
			start--
		}
		dataset, err = store.Load(ctx, start, simCount+simFrom-start)
		closeStore()
		if err != nil {
			return err
		}
	case simBlocksFile != "" && simTxsFile != "":
		dataset, err = simulation.LoadFiles(simBlocksFile, simTxsFile)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("either --db or both --blocks and --txs are required")
	}

	filler, err := appconfig.ConfigureEscalator(log)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"blocks": dataset.Len(),
		"from":   simFrom,
		"count":  simCount,
	}).Info("Starting replay")

	report, err := simulation.NewReplayer(dataset, filler, log).Replay(ctx, simFrom, simCount)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "blocks %d-%d\n", report.FromBlock, report.ToBlock)
	fmt.Fprintln(w, "strategy\tincluded\tpending\tmean delay\tmax delay\tmean tip (gwei)")
	for _, strategy := range []simulation.Strategy{simulation.Naive, simulation.Escalator} {
		s := report.Summary(strategy)
		fmt.Fprintf(w, "%s\t%d\t%d\t%.2f\t%d\t%.3f\n",
			s.Strategy, s.Included, s.Pending, s.MeanDelay, s.MaxDelay, s.MeanTip/1e9)
	}
	return w.Flush()
}
