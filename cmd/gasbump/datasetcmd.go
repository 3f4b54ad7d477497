package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lisanmuaddib/gas-escalator/pkg/db"
	"github.com/lisanmuaddib/gas-escalator/pkg/simulation"
)

var (
	importBlocksFile string
	importTxsFile    string

	cleanCmd = &cobra.Command{
		Use:   "clean [input] [output]",
		Short: "Strip a raw transaction export down to the fields a replay reads",
		Args:  cobra.ExactArgs(2),
		RunE:  cleancmd,
	}

	importCmd = &cobra.Command{
		Use:   "import",
		Short: "Load a JSON dataset into the database",
		Args:  cobra.NoArgs,
		RunE:  importcmd,
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the dataset schema version of the database",
		Args:  cobra.NoArgs,
		RunE:  statuscmd,
	}
)

func init() {
	importCmd.Flags().StringVar(&importBlocksFile, "blocks", "", "Block base fee JSON file")
	importCmd.Flags().StringVar(&importTxsFile, "txs", "", "Transaction JSON file")
	_ = importCmd.MarkFlagRequired("blocks")
	_ = importCmd.MarkFlagRequired("txs")
}

// cleancmd is the handler for the command `gasbump clean [input] [output]`.
func cleancmd(cmd *cobra.Command, args []string) error {
	in, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(args[1])
	if err != nil {
		return err
	}

	n, err := simulation.CleanTransactions(in, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"input":        args[0],
		"output":       args[1],
		"transactions": n,
	}).Info("Cleaned transactions")
	return nil
}

// importcmd is the handler for the command `gasbump import`.
func importcmd(cmd *cobra.Command, args []string) error {
	fees, txs, err := simulation.LoadRecords(importBlocksFile, importTxsFile)
	if err != nil {
		return err
	}

	store, closeStore, err := openDatasetStore()
	if err != nil {
		return err
	}
	defer closeStore()

	blocks, added, err := store.Import(cmd.Context(), fees, txs)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d blocks and %d transactions\n", blocks, added)
	return nil
}

// statuscmd is the handler for the command `gasbump status`.
func statuscmd(cmd *cobra.Command, args []string) error {
	config, err := db.NewConfigFromEnv()
	if err != nil {
		return err
	}
	version, dirty, err := db.MigrationStatus(log, config)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"database": config.Name,
		"version":  version,
		"dirty":    dirty,
	}).Info("Migration status")
	fmt.Printf("schema version %d dirty=%t\n", version, dirty)
	return nil
}

// openDatasetStore connects to the database configured through DB_* and
// migrates it. The returned func closes the connection.
func openDatasetStore() (*db.DatasetStore, func(), error) {
	config, err := db.NewConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}
	conn, err := db.SetupDatabase(log, config)
	if err != nil {
		return nil, nil, err
	}

	store := db.NewDatasetStore(conn, log)
	return store, func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("Failed to close database connection")
		}
	}, nil
}
