package sender_test

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/gas-escalator/pkg/escalator"
	"github.com/lisanmuaddib/gas-escalator/pkg/gas"
	"github.com/lisanmuaddib/gas-escalator/pkg/sender"
	"github.com/lisanmuaddib/gas-escalator/pkg/wallet"
)

var _ = Describe("Sender", func() {
	var (
		ctx    context.Context
		logger *logrus.Logger
		node   *fakeNode
		keys   *wallet.KeyManager
		config sender.Config
		s      *sender.Sender
		to     common.Address
	)

	build := func() {
		esc, err := escalator.New(escalator.Config{
			StartBid:    uint256.NewInt(1_000_000_000),
			Increment:   uint256.NewInt(200_000_000),
			MaxBid:      uint256.NewInt(10_000_000_000),
			ValidLength: 100,
			Rebid:       escalator.RebidEveryCall,
		}, nil, logger)
		Expect(err).NotTo(HaveOccurred())

		s, err = sender.New(node, gas.NewFiller(esc, logger), keys, nil, config, logger)
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		ctx = context.Background()
		logger = logrus.New()
		logger.SetLevel(logrus.DebugLevel)
		node = newFakeNode()
		to = common.HexToAddress("0xdead")

		key, err := crypto.GenerateKey()
		Expect(err).NotTo(HaveOccurred())
		keys = wallet.NewKeyManagerFromECDSA(key)

		config = sender.DefaultConfig()
		config.PollInterval = 10 * time.Millisecond
		config.MaxAttempts = 5
		build()
	})

	Describe("Send", func() {
		It("fills identity and fee fields before signing", func() {
			req := wallet.NewTransactionRequest().WithTo(to).WithValue(big.NewInt(1))
			attempt, err := s.Send(ctx, req)
			Expect(err).NotTo(HaveOccurred())

			Expect(attempt.ID.String()).NotTo(BeEmpty())
			Expect(*attempt.Request.From).To(Equal(keys.GetAddress()))
			Expect(*attempt.Request.Nonce).To(BeZero())
			Expect(attempt.Request.ChainID.Int64()).To(Equal(int64(1337)))
			Expect(*attempt.Request.Gas).To(Equal(uint64(21000)))
			Expect(attempt.Decision).To(BeAssignableToTypeOf(gas.EIP1559{}))

			tx := node.sentAt(0)
			Expect(tx.Hash()).To(Equal(attempt.Hash))
			Expect(tx.GasFeeCap().Int64()).To(Equal(int64(2_000_000_000)))
			Expect(tx.GasTipCap().Int64()).To(Equal(int64(1_000_000_000)))

			Expect(req.From).To(BeNil())
			Expect(req.Gas).To(BeNil())
		})

		It("skips the gas filler for a fully specified request", func() {
			req := wallet.NewTransactionRequest().
				WithTo(to).
				WithNonce(3).
				WithGas(30000).
				WithMaxFeePerGas(big.NewInt(5_000_000_000)).
				WithMaxPriorityFeePerGas(big.NewInt(2_000_000_000))

			attempt, err := s.Send(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(attempt.Decision).To(BeNil())
			Expect(node.gasCalls).To(BeZero())
			Expect(node.sentAt(0).Nonce()).To(Equal(uint64(3)))
		})

		It("refuses fees above the configured cap", func() {
			config.MaxFeePerGas = big.NewInt(1_500_000_000)
			build()

			_, err := s.Send(ctx, wallet.NewTransactionRequest().WithTo(to))
			Expect(wallet.IsWalletError(err, wallet.ErrCodeGasPrice)).To(BeTrue())
			Expect(node.sentCount()).To(BeZero())
		})

		It("surfaces broadcast errors", func() {
			node.sendErr = errors.New("insufficient funds for gas * price + value")
			_, err := s.Send(ctx, wallet.NewTransactionRequest().WithTo(to))
			Expect(err).To(MatchError(node.sendErr))
		})

		It("allocates distinct nonces to concurrent logical transactions", func() {
			first, err := s.Send(ctx, wallet.NewTransactionRequest().WithTo(to))
			Expect(err).NotTo(HaveOccurred())
			second, err := s.Send(ctx, wallet.NewTransactionRequest().WithTo(to))
			Expect(err).NotTo(HaveOccurred())
			Expect(*second.Request.Nonce).To(Equal(*first.Request.Nonce + 1))

			s.Release(first.Request)
			s.Release(second.Request)
		})
	})

	Describe("SendUntilMined", func() {
		It("escalates on every new block until an attempt is mined", func() {
			var count int
			s.OnAttempt(func(ctx context.Context, attempt *sender.Attempt) {
				count++
				if count < 3 {
					node.restore(node.sentAt(0))
					node.newBlock(common.Hash{})
					return
				}
				node.newBlock(attempt.Hash)
			})

			receipt, attempts, err := s.SendUntilMined(ctx, wallet.NewTransactionRequest().WithTo(to))
			Expect(err).NotTo(HaveOccurred())
			Expect(attempts).To(HaveLen(3))
			Expect(receipt.TxHash).To(Equal(attempts[2].Hash))

			tips := make([]int64, len(attempts))
			for i, a := range attempts {
				tips[i] = a.Request.MaxPriorityFeePerGas.Int64()
				Expect(*a.Request.Nonce).To(BeZero())
			}
			Expect(tips).To(Equal([]int64{1_000_000_000, 1_200_000_000, 1_400_000_000}))
			Expect(attempts[2].Request.MaxFeePerGas.Int64()).To(Equal(int64(2_400_000_000)))
		})

		It("gives up after the attempt limit", func() {
			s.OnAttempt(func(ctx context.Context, attempt *sender.Attempt) {
				node.newBlock(common.Hash{})
			})

			_, attempts, err := s.SendUntilMined(ctx, wallet.NewTransactionRequest().WithTo(to))
			Expect(wallet.IsWalletError(err, wallet.ErrCodeTimeout)).To(BeTrue())
			Expect(attempts).To(HaveLen(config.MaxAttempts))
		})

		It("does not resubmit while no new block arrives", func() {
			cancelCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
			defer cancel()

			_, attempts, err := s.SendUntilMined(cancelCtx, wallet.NewTransactionRequest().WithTo(to))
			Expect(err).To(MatchError(context.DeadlineExceeded))
			Expect(attempts).To(HaveLen(1))
			Expect(node.sentCount()).To(Equal(1))
		})
	})

	Describe("Config", func() {
		It("rejects a zero poll interval", func() {
			Expect(sender.Config{MaxAttempts: 1}.Validate()).To(HaveOccurred())
		})

		It("rejects fewer than one attempt", func() {
			Expect(sender.Config{PollInterval: time.Second}.Validate()).To(HaveOccurred())
		})
	})
})
