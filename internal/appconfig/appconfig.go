// Package appconfig wires the escalation engine and its node access from
// the environment.
package appconfig

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/gas-escalator/pkg/escalator"
	"github.com/lisanmuaddib/gas-escalator/pkg/gas"
	"github.com/lisanmuaddib/gas-escalator/pkg/sender"
	"github.com/lisanmuaddib/gas-escalator/pkg/wallet"
)

type SenderOptions struct {
	Network wallet.NetworkType
	Logger  *logrus.Logger
}

// App is the wired sending stack. Close releases the node connection.
type App struct {
	Client       *wallet.Client
	Network      *wallet.NetworkClient
	Escalator    *escalator.LinearEscalator
	Filler       *gas.Filler
	Sender       *sender.Sender
	SenderConfig sender.Config
}

func (a *App) Close() {
	if a.Client != nil {
		a.Client.Close()
	}
}

// ConfigureEscalator builds a filler over an escalator read from ESCALATOR_*.
func ConfigureEscalator(log *logrus.Logger) (*gas.Filler, error) {
	if log == nil {
		log = logrus.New()
	}
	config, err := escalator.NewConfigFromEnv()
	if err != nil {
		return nil, err
	}
	esc, err := escalator.New(config, escalator.NewStore(), log)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"start_bid":    config.StartBid.Dec(),
		"increment":    config.Increment.Dec(),
		"max_bid":      config.MaxBid.Dec(),
		"start_block":  config.StartBlock,
		"expiry_block": config.ExpiryBlock(),
		"rebid_policy": config.Rebid.String(),
	}).Debug("Configured escalator")

	return gas.NewFiller(esc, log), nil
}

// ConfigureSender connects to the selected network and builds a sender that
// signs with PRIVATE_KEY. Without SENDER_MAX_FEE_PER_GAS the network's
// MaxGasPrice is the fee cap.
func ConfigureSender(ctx context.Context, opts SenderOptions) (*App, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.New()
	}

	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	keys, err := wallet.NewKeyManager(os.Getenv("PRIVATE_KEY"))
	if err != nil {
		return nil, wallet.NewWalletError(wallet.ErrCodeInvalidPrivateKey, "PRIVATE_KEY is not usable", err, opts.Network)
	}

	networkConfig, err := wallet.NewNetworkConfigFromEnv(opts.Network)
	if err != nil {
		return nil, err
	}

	senderConfig, err := sender.NewConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if senderConfig.MaxFeePerGas == nil && networkConfig.MaxGasPrice != nil {
		senderConfig.MaxFeePerGas = networkConfig.MaxGasPrice
	}

	filler, err := ConfigureEscalator(log)
	if err != nil {
		return nil, err
	}

	client, err := wallet.NewClient(ctx, log, []wallet.NetworkConfig{*networkConfig})
	if err != nil {
		return nil, err
	}
	network, err := client.Network(opts.Network)
	if err != nil {
		client.Close()
		return nil, err
	}

	s, err := sender.New(network, filler, keys, wallet.NewNonceManager(), senderConfig, log)
	if err != nil {
		client.Close()
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"network":      opts.Network,
		"sender":       keys.GetAddress().Hex(),
		"max_attempts": senderConfig.MaxAttempts,
	}).Info("Sender configured")

	return &App{
		Client:       client,
		Network:      network,
		Escalator:    filler.Escalator(),
		Filler:       filler,
		Sender:       s,
		SenderConfig: senderConfig,
	}, nil
}
