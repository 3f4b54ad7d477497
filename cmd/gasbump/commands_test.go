package main

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/gas-escalator/pkg/simulation"
	"github.com/lisanmuaddib/gas-escalator/pkg/testchain"
	"github.com/lisanmuaddib/gas-escalator/pkg/wallet"
)

var _ = Describe("buildRequest", func() {
	const recipient = "0x742d35cc6634c0532925a3b844bc454e4438f44e"

	BeforeEach(func() {
		sendTo, sendValue, sendData, sendToken, sendGas = recipient, "0", "", "", 0
	})

	It("builds a plain transfer", func() {
		sendValue = "1000"
		sendGas = 30000

		req, err := buildRequest(wallet.DEV)
		Expect(err).NotTo(HaveOccurred())
		Expect(*req.To).To(Equal(common.HexToAddress(recipient)))
		Expect(req.Value).To(Equal(big.NewInt(1000)))
		Expect(*req.Gas).To(Equal(uint64(30000)))
		Expect(req.MaxFeePerGas).To(BeNil())
	})

	It("encodes an ERC-20 transfer to the token contract", func() {
		sendToken = "0x00000000000000000000000000000000000000aa"
		sendValue = "5"

		req, err := buildRequest(wallet.DEV)
		Expect(err).NotTo(HaveOccurred())
		Expect(*req.To).To(Equal(common.HexToAddress(sendToken)))

		data, err := wallet.EncodeERC20Transfer(common.HexToAddress(recipient), big.NewInt(5))
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Data).To(Equal(data))
	})

	It("rejects call data next to a token", func() {
		sendToken = "0x00000000000000000000000000000000000000aa"
		sendData = "0x01"
		_, err := buildRequest(wallet.DEV)
		Expect(err).To(MatchError(ContainSubstring("--data")))
	})

	It("rejects a bad recipient and a bad value", func() {
		sendTo = "0x1234"
		_, err := buildRequest(wallet.DEV)
		Expect(wallet.IsWalletError(err, wallet.ErrCodeInvalidAddress)).To(BeTrue())

		sendTo = recipient
		sendValue = "-1"
		_, err = buildRequest(wallet.DEV)
		Expect(err).To(MatchError(ContainSubstring("invalid value")))
	})
})

var _ = Describe("clean", func() {
	It("writes the whitelisted fields", func() {
		dir := GinkgoT().TempDir()
		in := filepath.Join(dir, "raw.json")
		out := filepath.Join(dir, "clean.json")
		Expect(os.WriteFile(in, []byte(`[{"block_number":7,"transaction_index":0,"from_address":"0x0000000000000000000000000000000000000001","gas_limit":21000,"gas_used":21000,"gas_price":9,"input":"0xdeadbeef"}]`), 0o600)).To(Succeed())

		root := initCmds()
		root.SetArgs([]string{"clean", in, out})
		Expect(root.Execute()).To(Succeed())

		f, err := os.Open(out)
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()
		txs, err := simulation.LoadTransactions(f)
		Expect(err).NotTo(HaveOccurred())
		Expect(txs).To(HaveLen(1))
		Expect(txs[0].GasPrice).To(Equal(uint64(9)))

		raw, err := os.ReadFile(out)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(raw)).NotTo(ContainSubstring("input"))
	})

	It("requires both paths", func() {
		root := initCmds()
		root.SetArgs([]string{"clean", "only-one"})
		Expect(root.Execute()).To(HaveOccurred())
	})
})

var _ = Describe("simulate", func() {
	It("needs a dataset source", func() {
		root := initCmds()
		root.SetArgs([]string{"simulate"})
		Expect(root.Execute()).To(MatchError(ContainSubstring("--db")))
	})
})

var _ = Describe("awaitConfirmations", func() {
	var (
		ctx     context.Context
		harness *testchain.Harness
		keys    *wallet.KeyManager
	)

	BeforeEach(func() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		DeferCleanup(cancel)

		key, err := crypto.GenerateKey()
		Expect(err).NotTo(HaveOccurred())
		keys = wallet.NewKeyManagerFromECDSA(key)

		logger := logrus.New()
		logger.SetOutput(GinkgoWriter)
		harness, err = testchain.New(keys, logger)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(harness.Close)

		sendTimeout = 5 * time.Second
		sendConfirm = 1
	})

	mine := func() common.Hash {
		client := harness.Client()
		fees, err := client.EstimateEIP1559Fees(ctx)
		Expect(err).NotTo(HaveOccurred())
		req := wallet.NewTransactionRequest().
			WithTo(common.Address{0x42}).
			WithValue(big.NewInt(1)).
			WithNonce(0).
			WithGas(21000).
			WithMaxFeePerGas(fees.MaxFeePerGas).
			WithMaxPriorityFeePerGas(fees.MaxPriorityFeePerGas)
		tx, err := keys.SignRequest(req, big.NewInt(testchain.ChainID))
		Expect(err).NotTo(HaveOccurred())
		Expect(client.SendTransaction(ctx, tx)).To(Succeed())
		harness.Backend().Commit()
		return tx.Hash()
	}

	It("reports a mined transfer as confirmed", func() {
		hash := mine()

		status, err := awaitConfirmations(ctx, harness.Client(), hash, 10*time.Millisecond)
		Expect(err).NotTo(HaveOccurred())
		Expect(status.State).To(Equal(wallet.TxStateConfirmed))
		Expect(status.Confirmations).To(Equal(uint64(1)))
		Expect(status.BlockNumber.Uint64()).To(Equal(uint64(1)))
	})

	It("waits for the requested depth", func() {
		hash := mine()
		harness.Backend().Commit()
		harness.Backend().Commit()
		sendConfirm = 3

		status, err := awaitConfirmations(ctx, harness.Client(), hash, 10*time.Millisecond)
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Confirmations).To(Equal(uint64(3)))
	})

	It("times out while the depth is not reached", func() {
		hash := mine()
		sendConfirm = 5
		sendTimeout = 100 * time.Millisecond

		_, err := awaitConfirmations(ctx, harness.Client(), hash, 10*time.Millisecond)
		Expect(wallet.IsWalletError(err, wallet.ErrCodeTimeout)).To(BeTrue())
	})
})

var _ = Describe("status", func() {
	It("needs the database settings", func() {
		if host, ok := os.LookupEnv("DB_HOST"); ok {
			Expect(os.Unsetenv("DB_HOST")).To(Succeed())
			DeferCleanup(os.Setenv, "DB_HOST", host)
		}

		root := initCmds()
		root.SetArgs([]string{"status"})
		err := root.Execute()
		Expect(wallet.IsWalletError(err, wallet.ErrCodeInvalidConfig)).To(BeTrue())
		Expect(err).To(MatchError(ContainSubstring("DB_HOST")))
	})
})
