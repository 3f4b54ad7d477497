package wallet_test

import (
	"github.com/ethereum/go-ethereum/common"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lisanmuaddib/gas-escalator/pkg/wallet"
)

var _ = Describe("ParsePoolContent", func() {
	It("groups transactions by sender in nonce order", func() {
		content, err := wallet.ParsePoolContent([]byte(`{
			"pending": {
				"0x00000000000000000000000000000000000000a1": {
					"11": {"hash": "0x0000000000000000000000000000000000000000000000000000000000000b0b", "from": "0x00000000000000000000000000000000000000a1", "nonce": "0xb", "gas": "0x5208", "maxFeePerGas": "0x77359400", "maxPriorityFeePerGas": "0x3b9aca00"},
					"2": {"hash": "0x0000000000000000000000000000000000000000000000000000000000000a0a", "from": "0x00000000000000000000000000000000000000a1", "nonce": "0x2", "gas": "0x5208", "gasPrice": "0x1"}
				}
			},
			"queued": {}
		}`))
		Expect(err).NotTo(HaveOccurred())

		txs := content.Pending[common.HexToAddress("0xa1")]
		Expect(txs).To(HaveLen(2))
		Expect(txs[0].Nonce).To(Equal(uint64(2)))
		Expect(txs[0].GasPrice.Int64()).To(Equal(int64(1)))
		Expect(txs[1].Nonce).To(Equal(uint64(11)))
		Expect(txs[1].MaxFeePerGas.Int64()).To(Equal(int64(2_000_000_000)))
		Expect(txs[1].Hash).To(Equal(common.HexToHash("0xb0b")))
		Expect(content.Queued).To(BeEmpty())
	})

	It("rejects a sender key that is not an address", func() {
		_, err := wallet.ParsePoolContent([]byte(`{"pending": {"alice": {}}}`))
		Expect(err).To(MatchError(ContainSubstring("alice")))
	})

	It("rejects malformed JSON", func() {
		_, err := wallet.ParsePoolContent([]byte(`[`))
		Expect(err).To(HaveOccurred())
	})
})
