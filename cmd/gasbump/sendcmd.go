package main

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lisanmuaddib/gas-escalator/internal/appconfig"
	"github.com/lisanmuaddib/gas-escalator/pkg/sender"
	"github.com/lisanmuaddib/gas-escalator/pkg/wallet"
)

var (
	sendNetwork string
	sendTo      string
	sendValue   string
	sendData    string
	sendToken   string
	sendGas     uint64
	sendTimeout time.Duration
	sendConfirm uint64

	sendCmd = &cobra.Command{
		Use:   "send",
		Short: "Send a transaction and escalate its tip until it is mined",
		Long: `Send a transaction signed with PRIVATE_KEY. While it stays pending the
transaction is resubmitted once per block with a tip raised by the escalator
configured through ESCALATOR_*.`,
		Args: cobra.NoArgs,
		RunE: sendcmd,
	}
)

func init() {
	sendCmd.Flags().StringVar(&sendNetwork, "network", string(wallet.DEV), "Network to send on (ETH, BASE, BSC, DEV)")
	sendCmd.Flags().StringVar(&sendTo, "to", "", "Recipient address")
	sendCmd.Flags().StringVar(&sendValue, "value", "0", "Amount in wei, or token units with --token")
	sendCmd.Flags().StringVar(&sendData, "data", "", "Hex encoded call data")
	sendCmd.Flags().StringVar(&sendToken, "token", "", "ERC-20 contract; sends --value tokens to --to")
	sendCmd.Flags().Uint64Var(&sendGas, "gas", 0, "Gas limit, estimated when zero")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 10*time.Minute, "Give up after this long")
	sendCmd.Flags().Uint64Var(&sendConfirm, "confirmations", 1, "Blocks to wait for on top of the mining block, counting it")
	_ = sendCmd.MarkFlagRequired("to")
}

// sendcmd is the handler for the command `gasbump send`.
func sendcmd(cmd *cobra.Command, args []string) error {
	network, err := wallet.ParseNetworkType(sendNetwork)
	if err != nil {
		return err
	}
	req, err := buildRequest(network)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), sendTimeout)
	defer cancel()

	app, err := appconfig.ConfigureSender(ctx, appconfig.SenderOptions{Network: network, Logger: log})
	if err != nil {
		return err
	}
	defer app.Close()

	app.Sender.OnAttempt(func(ctx context.Context, attempt *sender.Attempt) {
		fmt.Printf("attempt %s  hash %s\n", attempt.ID, attempt.Hash.Hex())
	})

	receipt, attempts, err := app.Sender.SendUntilMined(ctx, req)
	if err != nil {
		return err
	}

	status, err := awaitConfirmations(ctx, app.Network, receipt.TxHash, app.SenderConfig.PollInterval)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"tx_hash":       receipt.TxHash.Hex(),
		"block":         status.BlockNumber,
		"state":         status.State.String(),
		"confirmations": status.Confirmations,
		"gas_used":      status.GasUsed,
		"attempts":      len(attempts),
	}).Info("Transaction confirmed")

	fmt.Printf("%s %s in block %s after %d attempts (%d confirmations)\n",
		status.State, receipt.TxHash.Hex(), status.BlockNumber, len(attempts), status.Confirmations)
	if status.State == wallet.TxStateFailed {
		return wallet.NewWalletError(wallet.ErrCodeTransactionFailed, "transaction reverted", nil, network)
	}
	return nil
}

// awaitConfirmations polls the mined transaction until it has --confirmations
// blocks and returns its final status.
func awaitConfirmations(ctx context.Context, client *wallet.NetworkClient, hash common.Hash, poll time.Duration) (*wallet.TransactionStatus, error) {
	return client.WaitForReceipt(ctx, hash, wallet.ReceiptOptions{
		PollInterval:     poll,
		Timeout:          sendTimeout,
		MinConfirmations: sendConfirm,
	})
}

func buildRequest(network wallet.NetworkType) (*wallet.TransactionRequest, error) {
	to, err := wallet.ValidateAddress(network, sendTo)
	if err != nil {
		return nil, err
	}
	value, ok := new(big.Int).SetString(sendValue, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid value %q", sendValue)
	}

	var req *wallet.TransactionRequest
	if sendToken != "" {
		if sendData != "" {
			return nil, fmt.Errorf("--data cannot be combined with --token")
		}
		token, err := wallet.ValidateAddress(network, sendToken)
		if err != nil {
			return nil, err
		}
		req, err = wallet.NewERC20TransferRequest(token, to, value)
		if err != nil {
			return nil, err
		}
	} else {
		req = wallet.NewTransactionRequest().WithTo(to).WithValue(value)
		if sendData != "" {
			data, err := hexutil.Decode(sendData)
			if err != nil {
				return nil, fmt.Errorf("invalid data: %w", err)
			}
			req.WithData(data)
		}
	}

	if sendGas > 0 {
		req.WithGas(sendGas)
	}
	return req, nil
}
