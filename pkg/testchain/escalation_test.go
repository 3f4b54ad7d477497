package testchain_test

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/gas-escalator/pkg/escalator"
	"github.com/lisanmuaddib/gas-escalator/pkg/gas"
	"github.com/lisanmuaddib/gas-escalator/pkg/sender"
	"github.com/lisanmuaddib/gas-escalator/pkg/testchain"
	"github.com/lisanmuaddib/gas-escalator/pkg/wallet"
)

const gwei = 1_000_000_000

var _ = Describe("Harness", func() {
	var (
		ctx       context.Context
		cancel    context.CancelFunc
		logger    *logrus.Logger
		keys      *wallet.KeyManager
		harness   *testchain.Harness
		recipient common.Address
	)

	// original is the logical transaction every attempt starts from: its
	// fees are below the mining threshold.
	original := func() *wallet.TransactionRequest {
		return wallet.NewTransactionRequest().
			WithFrom(keys.GetAddress()).
			WithTo(recipient).
			WithValue(big.NewInt(1)).
			WithNonce(0).
			WithChainID(big.NewInt(testchain.ChainID)).
			WithMaxFeePerGas(big.NewInt(2 * gwei)).
			WithMaxPriorityFeePerGas(big.NewInt(1 * gwei))
	}

	newSender := func(policy escalator.RebidPolicy) *sender.Sender {
		esc, err := escalator.New(escalator.Config{
			StartBid:    uint256.NewInt(1 * gwei),
			Increment:   uint256.NewInt(200_000_000),
			MaxBid:      uint256.NewInt(10 * gwei),
			StartBlock:  0,
			ValidLength: 10,
			Rebid:       policy,
		}, nil, logger)
		Expect(err).NotTo(HaveOccurred())

		config := sender.DefaultConfig()
		config.PollInterval = 20 * time.Millisecond
		config.MaxAttempts = 6

		s, err := sender.New(harness.Client(), gas.NewFiller(esc, logger), keys, nil, config, logger)
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		logger = logrus.New()
		logger.SetLevel(logrus.DebugLevel)
		recipient = common.HexToAddress("0x000000000000000000000000000000000000beef")

		key, err := crypto.GenerateKey()
		Expect(err).NotTo(HaveOccurred())
		keys = wallet.NewKeyManagerFromECDSA(key)

		harness, err = testchain.New(keys, logger)
		Expect(err).NotTo(HaveOccurred())
		harness.SetEIP1559Threshold(big.NewInt(2_300_000_000), big.NewInt(1_300_000_000))
	})

	AfterEach(func() {
		cancel()
		Expect(harness.Close()).To(Succeed())
	})

	It("mines a transaction that pays the threshold", func() {
		s := newSender(escalator.RebidReuse)
		req := original().WithMaxFeePerGas(big.NewInt(3 * gwei)).WithMaxPriorityFeePerGas(big.NewInt(2 * gwei))

		attempt, err := s.Send(ctx, req)
		Expect(err).NotTo(HaveOccurred())

		mined, err := harness.Mine(ctx, attempt.Hash, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(mined).To(BeTrue())

		Eventually(func() (*types.Receipt, error) {
			return harness.Client().TransactionReceipt(ctx, attempt.Hash)
		}).WithTimeout(2 * time.Second).Should(HaveField("Status", types.ReceiptStatusSuccessful))
	})

	It("skips mining without a threshold", func() {
		bare, err := testchain.New(keys, logger)
		Expect(err).NotTo(HaveOccurred())
		defer bare.Close()

		mined, err := bare.Mine(ctx, common.HexToHash("0x01"), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(mined).To(BeFalse())
	})

	It("starts without a logger and serves the node and txpool namespaces", func() {
		bare, err := testchain.New(keys, nil)
		Expect(err).NotTo(HaveOccurred())

		number, err := bare.Client().BlockNumber(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(number).To(BeZero())

		content, err := bare.Client().PoolContent(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(content.Pending).To(BeEmpty())

		Expect(bare.Close()).To(Succeed())
		_, err = bare.Client().BlockNumber(ctx)
		Expect(err).To(HaveOccurred())
	})

	It("escalates a dropped transaction once per block until it is mined", func() {
		s := newSender(escalator.RebidPerBlock)
		s.OnAttempt(func(ctx context.Context, attempt *sender.Attempt) {
			_, err := harness.Mine(ctx, attempt.Hash, original())
			Expect(err).NotTo(HaveOccurred())
		})

		receipt, attempts, err := s.SendUntilMined(ctx, original())
		Expect(err).NotTo(HaveOccurred())
		Expect(receipt.Status).To(Equal(types.ReceiptStatusSuccessful))
		Expect(attempts).To(HaveLen(3))
		Expect(receipt.TxHash).To(Equal(attempts[2].Hash))

		fees := func(a *sender.Attempt) []int64 {
			return []int64{a.Request.MaxFeePerGas.Int64(), a.Request.MaxPriorityFeePerGas.Int64()}
		}
		Expect(fees(attempts[0])).To(Equal([]int64{2_000_000_000, 1_000_000_000}))
		Expect(fees(attempts[1])).To(Equal([]int64{2_200_000_000, 1_200_000_000}))
		Expect(fees(attempts[2])).To(Equal([]int64{2_400_000_000, 1_400_000_000}))
	})

	It("repeats the same decision under the reuse policy", func() {
		s := newSender(escalator.RebidReuse)
		first, err := s.Send(ctx, original())
		Expect(err).NotTo(HaveOccurred())
		mined, err := harness.Mine(ctx, first.Hash, original())
		Expect(err).NotTo(HaveOccurred())
		Expect(mined).To(BeFalse())

		esc, err := escalator.New(escalator.Config{
			StartBid:    uint256.NewInt(1 * gwei),
			Increment:   uint256.NewInt(200_000_000),
			MaxBid:      uint256.NewInt(10 * gwei),
			ValidLength: 10,
		}, nil, logger)
		Expect(err).NotTo(HaveOccurred())
		reuse := gas.NewFiller(esc, logger)

		a, err := reuse.Decide(ctx, harness.Client(), original())
		Expect(err).NotTo(HaveOccurred())
		b, err := reuse.Decide(ctx, harness.Client(), original())
		Expect(err).NotTo(HaveOccurred())
		Expect(b).To(Equal(a))
		Expect(a.(gas.EIP1559).Estimate.MaxPriorityFeePerGas.Int64()).To(Equal(int64(1_200_000_000)))
	})
})
