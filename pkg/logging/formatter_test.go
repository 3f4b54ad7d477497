package logging_test

import (
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/gas-escalator/pkg/logging"
)

var _ = Describe("ColoredJSONFormatter", func() {
	var formatter *logging.ColoredJSONFormatter

	format := func(fields logrus.Fields, msg string) string {
		entry := logrus.NewEntry(logrus.New()).WithFields(fields)
		entry.Time = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		entry.Level = logrus.InfoLevel
		entry.Message = msg
		out, err := formatter.Format(entry)
		Expect(err).NotTo(HaveOccurred())
		return string(out)
	}

	BeforeEach(func() {
		formatter = logging.NewColoredJSONFormatter()
		formatter.DisableColors = true
	})

	It("starts with time, level and message", func() {
		line := format(logrus.Fields{}, "Transaction broadcast")
		Expect(line).To(HavePrefix("2024-01-02T03:04:05Z INFO    Transaction broadcast"))
		Expect(line).To(HaveSuffix("\n"))
	})

	It("puts transaction fields ahead of the rest", func() {
		line := format(logrus.Fields{
			"gas":     21000,
			"nonce":   7,
			"tx_hash": "0xabc",
			"error":   errors.New("boom"),
		}, "msg")

		Expect(strings.Index(line, "tx_hash=")).To(BeNumerically("<", strings.Index(line, "nonce=")))
		Expect(strings.Index(line, "nonce=")).To(BeNumerically("<", strings.Index(line, "error=")))
		Expect(strings.Index(line, "error=")).To(BeNumerically("<", strings.Index(line, "gas=")))
		Expect(line).To(ContainSubstring(`tx_hash="0xabc"`))
		Expect(line).To(ContainSubstring(`error="boom"`))
		Expect(line).To(ContainSubstring(`gas=21000`))
	})
})

var _ = Describe("NewLogger", func() {
	It("parses the level", func() {
		Expect(logging.NewLogger("debug", false).GetLevel()).To(Equal(logrus.DebugLevel))
	})

	It("falls back to info on an invalid level", func() {
		Expect(logging.NewLogger("loud", true).GetLevel()).To(Equal(logrus.InfoLevel))
	})

	It("uses the colored formatter when pretty", func() {
		Expect(logging.NewLogger("info", true).Formatter).To(BeAssignableToTypeOf(&logging.ColoredJSONFormatter{}))
	})
})
