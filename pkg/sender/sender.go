// Package sender prepares, signs and broadcasts transactions, and resubmits a
// stuck transaction once per block until it is mined.
package sender

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/gas-escalator/pkg/gas"
	"github.com/lisanmuaddib/gas-escalator/pkg/wallet"
)

// Client is the node access the sender needs.
type Client interface {
	gas.ChainClient
	wallet.NonceSource
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Attempt is one broadcast of a logical transaction.
type Attempt struct {
	ID       uuid.UUID
	Hash     common.Hash
	Request  *wallet.TransactionRequest
	Decision gas.Decision
	SentAt   time.Time
}

// AttemptHook is called after every successful broadcast.
type AttemptHook func(ctx context.Context, attempt *Attempt)

// Sender owns the signing key and the nonce bookkeeping of one account.
type Sender struct {
	client Client
	filler *gas.Filler
	keys   *wallet.KeyManager
	nonces *wallet.NonceManager
	config Config
	hooks  []AttemptHook
	log    *logrus.Logger
}

// New creates a sender. A nil nonce manager gets a fresh one.
func New(client Client, filler *gas.Filler, keys *wallet.KeyManager, nonces *wallet.NonceManager, config Config, log *logrus.Logger) (*Sender, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.New()
	}
	if nonces == nil {
		nonces = wallet.NewNonceManager()
	}
	return &Sender{
		client: client,
		filler: filler,
		keys:   keys,
		nonces: nonces,
		config: config,
		log:    log,
	}, nil
}

// OnAttempt registers a hook run after each broadcast. Hooks run on the
// sending goroutine in registration order.
func (s *Sender) OnAttempt(hook AttemptHook) {
	s.hooks = append(s.hooks, hook)
}

// Address returns the account the sender signs for.
func (s *Sender) Address() common.Address {
	return s.keys.GetAddress()
}

// Prepare fills the identity fields of req that every attempt shares: From,
// Nonce and ChainID. A nonce is only allocated when req has none.
func (s *Sender) Prepare(ctx context.Context, req *wallet.TransactionRequest) error {
	if req.From == nil {
		req.WithFrom(s.keys.GetAddress())
	}
	if req.ChainID == nil {
		chainID, err := s.client.ChainID(ctx)
		if err != nil {
			return err
		}
		req.WithChainID(chainID)
	}
	if req.Nonce == nil {
		nonce, err := s.nonces.GetNonce(ctx, s.client, *req.From)
		if err != nil {
			return err
		}
		req.WithNonce(nonce)
	}
	return nil
}

// Send broadcasts one attempt of req. req itself is not modified; the filled
// copy is returned in the attempt. A nonce allocated here stays reserved until
// Release is called with the attempt's request.
func (s *Sender) Send(ctx context.Context, req *wallet.TransactionRequest) (*Attempt, error) {
	work := req.Clone()
	if err := s.Prepare(ctx, work); err != nil {
		return nil, err
	}

	var decision gas.Decision
	if s.filler.Status(work) == gas.Ready {
		d, err := s.filler.Decide(ctx, s.client, work)
		if err != nil {
			return nil, err
		}
		decision = d
		s.filler.Fill(decision, work)
	}

	if err := s.checkFeeCap(work); err != nil {
		return nil, err
	}

	tx, err := s.keys.SignRequest(work, work.ChainID)
	if err != nil {
		return nil, err
	}
	if err := s.client.SendTransaction(ctx, tx); err != nil {
		return nil, err
	}

	attempt := &Attempt{
		ID:       uuid.New(),
		Hash:     tx.Hash(),
		Request:  work,
		Decision: decision,
		SentAt:   time.Now(),
	}

	s.log.WithFields(logrus.Fields{
		"attempt_id":               attempt.ID.String(),
		"tx_hash":                  attempt.Hash.Hex(),
		"sender":                   work.From.Hex(),
		"nonce":                    *work.Nonce,
		"gas":                      *work.Gas,
		"max_fee_per_gas":          bigString(work.MaxFeePerGas),
		"max_priority_fee_per_gas": bigString(work.MaxPriorityFeePerGas),
		"gas_price":                bigString(work.GasPrice),
	}).Info("Transaction broadcast")

	for _, hook := range s.hooks {
		hook(ctx, attempt)
	}
	return attempt, nil
}

// Release returns the nonce of req to the nonce manager.
func (s *Sender) Release(req *wallet.TransactionRequest) {
	if req != nil && req.From != nil && req.Nonce != nil {
		s.nonces.ReleaseNonce(*req.From, *req.Nonce)
	}
}

// SendUntilMined broadcasts req and resubmits it on every new block until one
// of its attempts is mined. Each resubmission goes back through the gas
// filler, so a transaction still pending in the pool is escalated.
func (s *Sender) SendUntilMined(ctx context.Context, req *wallet.TransactionRequest) (*types.Receipt, []*Attempt, error) {
	logical := req.Clone()
	allocated := logical.Nonce == nil
	if err := s.Prepare(ctx, logical); err != nil {
		return nil, nil, err
	}
	if allocated {
		defer s.Release(logical)
	}

	log := s.log.WithFields(logrus.Fields{
		"sender": logical.From.Hex(),
		"nonce":  *logical.Nonce,
	})

	lastBlock, err := s.client.BlockNumber(ctx)
	if err != nil {
		return nil, nil, err
	}

	first, err := s.Send(ctx, logical)
	if err != nil {
		return nil, nil, err
	}
	attempts := []*Attempt{first}
	submissions := 1

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Context cancelled, stopping resubmission")
			return nil, attempts, ctx.Err()
		case <-ticker.C:
			block, err := s.client.BlockNumber(ctx)
			if err != nil {
				log.WithError(err).Warn("Failed to read block number")
				continue
			}
			if block <= lastBlock {
				continue
			}
			lastBlock = block

			receipt, err := s.findReceipt(ctx, attempts)
			if err != nil {
				log.WithError(err).Warn("Failed to read receipts")
				continue
			}
			if receipt != nil {
				log.WithFields(logrus.Fields{
					"tx_hash":      receipt.TxHash.Hex(),
					"block_number": receipt.BlockNumber,
					"attempts":     submissions,
				}).Info("Transaction mined")
				return receipt, attempts, nil
			}

			if submissions >= s.config.MaxAttempts {
				return nil, attempts, wallet.NewWalletError(wallet.ErrCodeTimeout, "transaction not mined within the attempt limit", nil, "")
			}

			submissions++
			attempt, err := s.Send(ctx, logical)
			if err != nil {
				if isNonceTooLow(err) {
					log.WithError(err).Debug("Nonce already used, waiting for receipt")
					continue
				}
				if wallet.IsWalletError(err, wallet.ErrCodeGasPrice) {
					return nil, attempts, err
				}
				log.WithError(err).WithField("block_number", block).Warn("Resubmission failed")
				continue
			}
			attempts = append(attempts, attempt)
		}
	}
}

func (s *Sender) findReceipt(ctx context.Context, attempts []*Attempt) (*types.Receipt, error) {
	seen := make(map[common.Hash]struct{}, len(attempts))
	for _, attempt := range attempts {
		if _, dup := seen[attempt.Hash]; dup {
			continue
		}
		seen[attempt.Hash] = struct{}{}

		receipt, err := s.client.TransactionReceipt(ctx, attempt.Hash)
		if wallet.IsWalletError(err, wallet.ErrCodeReceiptNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return receipt, nil
	}
	return nil, nil
}

func (s *Sender) checkFeeCap(req *wallet.TransactionRequest) error {
	if s.config.MaxFeePerGas == nil {
		return nil
	}
	fee := req.MaxFeePerGas
	if req.IsLegacy() {
		fee = req.GasPrice
	}
	if fee != nil && fee.Cmp(s.config.MaxFeePerGas) > 0 {
		return wallet.NewWalletError(wallet.ErrCodeGasPrice,
			"fee "+fee.String()+" exceeds cap "+s.config.MaxFeePerGas.String(), nil, "")
	}
	return nil
}

func isNonceTooLow(err error) bool {
	return strings.Contains(err.Error(), "nonce too low")
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
