package escalator

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
	"github.com/joho/godotenv"

	"github.com/lisanmuaddib/gas-escalator/pkg/wallet"
)

// RebidPolicy decides what happens when a bid is already recorded for a
// pending transaction and the engine asks for it again.
type RebidPolicy int

const (
	// RebidReuse returns a recorded bid unchanged. Escalation only moves when
	// a replacement with a new hash shows up in the pool.
	RebidReuse RebidPolicy = iota
	// RebidEveryCall advances the bid on every decision.
	RebidEveryCall
	// RebidPerBlock advances the bid once per new block.
	RebidPerBlock
)

func (p RebidPolicy) String() string {
	switch p {
	case RebidReuse:
		return "reuse"
	case RebidEveryCall:
		return "every-call"
	case RebidPerBlock:
		return "per-block"
	default:
		return "unknown"
	}
}

// ParseRebidPolicy parses the names produced by RebidPolicy.String.
func ParseRebidPolicy(s string) (RebidPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reuse":
		return RebidReuse, nil
	case "every-call", "every_call":
		return RebidEveryCall, nil
	case "per-block", "per_block":
		return RebidPerBlock, nil
	default:
		return RebidReuse, fmt.Errorf("unknown rebid policy %q", s)
	}
}

// Config holds the linear escalation parameters. Amounts are in wei.
type Config struct {
	// StartBid is the bid an unseen transaction starts from
	StartBid *uint256.Int

	// Increment is added to the bid on every escalation step
	Increment *uint256.Int

	// MaxBid caps the bid
	MaxBid *uint256.Int

	// StartBlock and ValidLength bound the escalation window. From block
	// StartBlock+ValidLength on, bids are pinned to zero.
	StartBlock  uint64
	ValidLength uint64

	// Rebid selects how recorded bids are treated on later decisions
	Rebid RebidPolicy
}

// DefaultConfig returns a 1 gwei start, 0.1 gwei steps up to 10 gwei over 10 blocks.
func DefaultConfig() Config {
	return Config{
		StartBid:    uint256.NewInt(1_000_000_000),
		Increment:   uint256.NewInt(100_000_000),
		MaxBid:      uint256.NewInt(10_000_000_000),
		StartBlock:  0,
		ValidLength: 10,
		Rebid:       RebidReuse,
	}
}

// ExpiryBlock returns the first block at which bids are pinned to zero.
// It saturates instead of wrapping.
func (c Config) ExpiryBlock() uint64 {
	if c.StartBlock > ^uint64(0)-c.ValidLength {
		return ^uint64(0)
	}
	return c.StartBlock + c.ValidLength
}

// Validate checks the amounts are set and consistent.
func (c Config) Validate() error {
	if c.StartBid == nil || c.Increment == nil || c.MaxBid == nil {
		return wallet.NewWalletError(wallet.ErrCodeInvalidConfig, "escalator amounts must be set", nil, "")
	}
	if c.StartBid.Gt(c.MaxBid) {
		return wallet.NewWalletError(wallet.ErrCodeInvalidConfig,
			fmt.Sprintf("start bid %s exceeds max bid %s", c.StartBid.Dec(), c.MaxBid.Dec()), nil, "")
	}
	if c.Rebid < RebidReuse || c.Rebid > RebidPerBlock {
		return wallet.NewWalletError(wallet.ErrCodeInvalidConfig, "unknown rebid policy", nil, "")
	}
	return nil
}

// NewConfigFromEnv starts from DefaultConfig and applies overrides from the
// environment: ESCALATOR_START_BID, ESCALATOR_INCREMENT, ESCALATOR_MAX_BID,
// ESCALATOR_START_BLOCK, ESCALATOR_VALID_LENGTH and ESCALATOR_REBID_POLICY.
func NewConfigFromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := DefaultConfig()

	amounts := []struct {
		key string
		dst **uint256.Int
	}{
		{"ESCALATOR_START_BID", &config.StartBid},
		{"ESCALATOR_INCREMENT", &config.Increment},
		{"ESCALATOR_MAX_BID", &config.MaxBid},
	}
	for _, a := range amounts {
		v := os.Getenv(a.key)
		if v == "" {
			continue
		}
		amount, err := uint256.FromDecimal(v)
		if err != nil {
			return Config{}, wallet.NewWalletError(wallet.ErrCodeInvalidConfig, "invalid "+a.key, err, "")
		}
		*a.dst = amount
	}

	blocks := []struct {
		key string
		dst *uint64
	}{
		{"ESCALATOR_START_BLOCK", &config.StartBlock},
		{"ESCALATOR_VALID_LENGTH", &config.ValidLength},
	}
	for _, b := range blocks {
		v := os.Getenv(b.key)
		if v == "" {
			continue
		}
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return Config{}, wallet.NewWalletError(wallet.ErrCodeInvalidConfig, "invalid "+b.key, err, "")
		}
		*b.dst = n
	}

	policy, err := ParseRebidPolicy(getEnvOrDefault("ESCALATOR_REBID_POLICY", config.Rebid.String()))
	if err != nil {
		return Config{}, wallet.NewWalletError(wallet.ErrCodeInvalidConfig, "invalid ESCALATOR_REBID_POLICY", err, "")
	}
	config.Rebid = policy

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
