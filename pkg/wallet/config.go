package wallet

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// NetworkConfig holds network-specific configuration parameters for blockchain interactions.
// It defines the endpoint, retry behaviour, RPC throttling and fee ceilings that control
// how requests are processed on different networks.
type NetworkConfig struct {
	// Type identifies which blockchain network this config is for (e.g. ETH, BSC)
	Type NetworkType

	// RPCURL is the HTTP(S) or WS endpoint for connecting to the network
	RPCURL string

	// ChainID is the unique identifier for the blockchain network
	ChainID int64

	// MaxRetries specifies how many times to retry the initial connection
	MaxRetries int

	// RetryDelay is the duration to wait between retry attempts
	RetryDelay time.Duration

	// RateLimit caps RPC calls per second issued by one NetworkClient.
	// Zero disables throttling.
	RateLimit float64

	// GasLimitMultiplier is used to add a safety buffer to estimated gas
	// For example, 1.2 adds 20% to the estimated gas limit
	GasLimitMultiplier float64

	// MaxGasPrice sets an upper bound on the fee cap of an outgoing transaction.
	// Transactions will not be sent if the decided fee cap exceeds this value
	MaxGasPrice *big.Int
}

// DefaultNetworkConfigs returns pre-configured settings for supported blockchain networks.
// It provides sensible defaults for Ethereum mainnet, Base, Binance Smart Chain and a
// local development node.
//
// The defaults include:
// - Conservative gas price limits
// - 3 retry attempts with 1 second delay
// - 20% buffer on gas estimates
//
// Example usage:
//
//	configs := DefaultNetworkConfigs()
//	ethConfig := configs[0] // Ethereum mainnet config
func DefaultNetworkConfigs() []NetworkConfig {
	return []NetworkConfig{
		{
			Type:               ETH,
			ChainID:            1,
			MaxRetries:         3,
			RetryDelay:         time.Second,
			RateLimit:          10,
			GasLimitMultiplier: 1.2,
			MaxGasPrice:        big.NewInt(300000000000), // 300 gwei
		},
		{
			Type:               BASE,
			ChainID:            8453,
			MaxRetries:         3,
			RetryDelay:         time.Second,
			RateLimit:          10,
			GasLimitMultiplier: 1.2,
			MaxGasPrice:        big.NewInt(100000000000), // 100 gwei
		},
		{
			Type:               BSC,
			ChainID:            56,
			MaxRetries:         3,
			RetryDelay:         time.Second,
			RateLimit:          10,
			GasLimitMultiplier: 1.2,
			MaxGasPrice:        big.NewInt(5000000000), // 5 gwei
		},
		{
			Type:               DEV,
			RPCURL:             "http://127.0.0.1:8545",
			ChainID:            1337,
			MaxRetries:         0,
			GasLimitMultiplier: 1,
			MaxGasPrice:        big.NewInt(1000000000000), // 1000 gwei
		},
	}
}

// DefaultNetworkConfig returns the default configuration for one network.
func DefaultNetworkConfig(network NetworkType) (NetworkConfig, error) {
	for _, config := range DefaultNetworkConfigs() {
		if config.Type == network {
			return config, nil
		}
	}
	return NetworkConfig{}, NewWalletError(ErrCodeInvalidNetwork, "no default configuration", nil, network)
}

// NewNetworkConfigFromEnv starts from the network defaults and applies
// overrides from the environment:
//
//	<NETWORK>_RPC_URL, <NETWORK>_CHAIN_ID, <NETWORK>_MAX_GAS_PRICE,
//	RPC_RATE_LIMIT, RPC_MAX_RETRIES, GAS_LIMIT_MULTIPLIER
func NewNetworkConfigFromEnv(network NetworkType) (*NetworkConfig, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config, err := DefaultNetworkConfig(network)
	if err != nil {
		return nil, err
	}

	prefix := strings.ToUpper(string(network)) + "_"
	config.RPCURL = getEnvOrDefault(prefix+"RPC_URL", config.RPCURL)

	if v := os.Getenv(prefix + "CHAIN_ID"); v != "" {
		chainID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, NewWalletError(ErrCodeInvalidConfig, "invalid chain id", err, network)
		}
		config.ChainID = chainID
	}
	if v := os.Getenv(prefix + "MAX_GAS_PRICE"); v != "" {
		maxGasPrice, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, NewWalletError(ErrCodeInvalidConfig, fmt.Sprintf("invalid max gas price %q", v), nil, network)
		}
		config.MaxGasPrice = maxGasPrice
	}
	if v := os.Getenv("RPC_RATE_LIMIT"); v != "" {
		rateLimit, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, NewWalletError(ErrCodeInvalidConfig, "invalid rpc rate limit", err, network)
		}
		config.RateLimit = rateLimit
	}
	if v := os.Getenv("RPC_MAX_RETRIES"); v != "" {
		retries, err := strconv.Atoi(v)
		if err != nil {
			return nil, NewWalletError(ErrCodeInvalidConfig, "invalid rpc max retries", err, network)
		}
		config.MaxRetries = retries
	}
	if v := os.Getenv("GAS_LIMIT_MULTIPLIER"); v != "" {
		multiplier, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, NewWalletError(ErrCodeInvalidConfig, "invalid gas limit multiplier", err, network)
		}
		config.GasLimitMultiplier = multiplier
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks that the configuration can be used to dial a node.
func (c *NetworkConfig) Validate() error {
	if c.RPCURL == "" {
		return NewWalletError(ErrCodeInvalidConfig, "rpc url is required", nil, c.Type)
	}
	if c.MaxRetries < 0 {
		return NewWalletError(ErrCodeInvalidConfig, "max retries cannot be negative", nil, c.Type)
	}
	if c.RateLimit < 0 {
		return NewWalletError(ErrCodeInvalidConfig, "rate limit cannot be negative", nil, c.Type)
	}
	if c.GasLimitMultiplier == 0 {
		c.GasLimitMultiplier = 1
	}
	if c.GasLimitMultiplier < 1 {
		return NewWalletError(ErrCodeInvalidConfig, "gas limit multiplier must be at least 1", nil, c.Type)
	}
	return nil
}

// Helper function to get environment variable with default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
