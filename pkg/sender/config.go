package sender

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/lisanmuaddib/gas-escalator/pkg/wallet"
)

const (
	// DefaultPollInterval is how often SendUntilMined looks for a new block
	DefaultPollInterval = 2 * time.Second

	// DefaultMaxAttempts bounds the number of submissions per logical transaction
	DefaultMaxAttempts = 20
)

// Config controls the resubmission loop.
type Config struct {
	// PollInterval is the delay between block checks
	PollInterval time.Duration

	// MaxAttempts is the number of submissions after which SendUntilMined gives up
	MaxAttempts int

	// MaxFeePerGas refuses to broadcast any attempt whose fee cap (or legacy
	// gas price) is above it. Nil disables the guard.
	MaxFeePerGas *big.Int
}

// DefaultConfig returns the loop defaults without a fee cap.
func DefaultConfig() Config {
	return Config{
		PollInterval: DefaultPollInterval,
		MaxAttempts:  DefaultMaxAttempts,
	}
}

// NewConfigFromEnv reads SENDER_POLL_INTERVAL (a Go duration),
// SENDER_MAX_ATTEMPTS and SENDER_MAX_FEE_PER_GAS (wei) over the defaults.
func NewConfigFromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := DefaultConfig()
	if v := os.Getenv("SENDER_POLL_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, wallet.NewWalletError(wallet.ErrCodeInvalidConfig, "invalid SENDER_POLL_INTERVAL", err, "")
		}
		config.PollInterval = interval
	}
	if v := os.Getenv("SENDER_MAX_ATTEMPTS"); v != "" {
		attempts, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, wallet.NewWalletError(wallet.ErrCodeInvalidConfig, "invalid SENDER_MAX_ATTEMPTS", err, "")
		}
		config.MaxAttempts = attempts
	}
	if v := os.Getenv("SENDER_MAX_FEE_PER_GAS"); v != "" {
		fee, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return Config{}, wallet.NewWalletError(wallet.ErrCodeInvalidConfig, fmt.Sprintf("invalid SENDER_MAX_FEE_PER_GAS %q", v), nil, "")
		}
		config.MaxFeePerGas = fee
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate checks the loop settings.
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return wallet.NewWalletError(wallet.ErrCodeInvalidConfig, "poll interval must be positive", nil, "")
	}
	if c.MaxAttempts < 1 {
		return wallet.NewWalletError(wallet.ErrCodeInvalidConfig, "max attempts must be at least 1", nil, "")
	}
	if c.MaxFeePerGas != nil && c.MaxFeePerGas.Sign() <= 0 {
		return wallet.NewWalletError(wallet.ErrCodeInvalidConfig, "max fee per gas must be positive", nil, "")
	}
	return nil
}
