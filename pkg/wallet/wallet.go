// Package wallet holds the node access, signing, nonce and request plumbing
// for EVM networks.
package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
)

// NetworkType represents supported EVM networks
type NetworkType string

const (
	// ETH represents the Ethereum mainnet network
	ETH NetworkType = "ETH"
	// BASE represents the Base network
	BASE NetworkType = "BASE"
	// BSC represents the Binance Smart Chain network
	BSC NetworkType = "BSC"
	// DEV represents a local development chain
	DEV NetworkType = "DEV"
)

// ParseNetworkType converts a user supplied network name into a NetworkType.
func ParseNetworkType(name string) (NetworkType, error) {
	switch NetworkType(name) {
	case ETH, BASE, BSC, DEV:
		return NetworkType(name), nil
	default:
		return "", NewWalletError(ErrCodeInvalidNetwork, fmt.Sprintf("unsupported network: %s", name), nil, "")
	}
}

// Client manages connections to multiple blockchain networks and hands out a
// NetworkClient per network.
type Client struct {
	clients map[NetworkType]*NetworkClient
	mu      sync.RWMutex
	log     *logrus.Logger
}

// NewClient creates a new wallet client with the provided configurations.
// It establishes connections to all configured networks.
//
// Example:
//
//	configs := []NetworkConfig{
//	    {Type: ETH, RPCURL: "https://eth-mainnet.example.com"},
//	    {Type: BSC, RPCURL: "https://bsc-mainnet.example.com"},
//	}
//	client, err := NewClient(ctx, logger, configs)
//	if err != nil {
//	    log.Fatal(err)
//	}
func NewClient(ctx context.Context, log *logrus.Logger, configs []NetworkConfig) (*Client, error) {
	if log == nil {
		log = logrus.New()
	}
	client := &Client{
		clients: make(map[NetworkType]*NetworkClient),
		log:     log,
	}

	for _, config := range configs {
		if err := config.Validate(); err != nil {
			client.Close()
			return nil, err
		}
		rpcClient, err := client.dialWithRetry(ctx, config)
		if err != nil {
			client.Close()
			return nil, NewWalletError(ErrCodeRPCError, "failed to connect to network", err, config.Type)
		}
		client.clients[config.Type] = NewNetworkClient(rpcClient, config, log)
	}

	return client, nil
}

// Network returns the client for a configured network.
func (c *Client) Network(network NetworkType) (*NetworkClient, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	client, ok := c.clients[network]
	if !ok {
		return nil, NewWalletError(ErrCodeInvalidNetwork, "network not configured", nil, network)
	}
	return client, nil
}

// dialWithRetry attempts to connect to the network with retry mechanism.
// It will retry failed connection attempts based on the network configuration.
func (c *Client) dialWithRetry(ctx context.Context, config NetworkConfig) (*rpc.Client, error) {
	var client *rpc.Client
	var err error

	for i := 0; i <= config.MaxRetries; i++ {
		client, err = rpc.DialContext(ctx, config.RPCURL)
		if err == nil {
			return client, nil
		}

		if i < config.MaxRetries {
			c.log.WithFields(logrus.Fields{
				"network": config.Type,
				"attempt": i + 1,
				"error":   err,
			}).Debug("Retrying network connection")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(config.RetryDelay):
			}
		}
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", config.MaxRetries+1, err)
}

// Close closes all network connections and cleans up resources.
// It should be called when the client is no longer needed.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for network, client := range c.clients {
		client.Close()
		delete(c.clients, network)
	}
}
