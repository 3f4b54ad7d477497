package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lisanmuaddib/gas-escalator/pkg/logging"
)

var (
	// Global flags.
	envFile  string
	logLevel string
	pretty   bool

	log     = logrus.New()
	rootCmd *cobra.Command
)

func main() {
	rootCmd = initCmds()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info("Received shutdown signal")
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("Shutdown complete")
			return
		}
		log.WithError(err).Error("Command failed")
		os.Exit(1)
	}
}

// initCmds builds the command tree.
func initCmds() *cobra.Command {
	root := &cobra.Command{
		Use:           "gasbump",
		Short:         "Escalating priority fees for stuck EVM transactions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := godotenv.Load(envFile); err != nil {
					return err
				}
			}
			if !cmd.Flags().Changed("log-level") {
				if v := os.Getenv("LOG_LEVEL"); v != "" {
					logLevel = v
				}
			}
			log = logging.NewLogger(logLevel, pretty)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env", "", "Load environment variables from this file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&pretty, "pretty", false, "Colored human-readable logs instead of JSON")

	root.AddCommand(sendCmd, simulateCmd, cleanCmd, importCmd, statusCmd)

	return root
}
