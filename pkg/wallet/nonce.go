package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NonceSource reports the next nonce the node would accept for an account.
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// NonceManager hands out nonces for new logical transactions. It tracks
// nonces that were handed out but not yet released so that two requests
// prepared concurrently never share one. Resubmissions of the same logical
// transaction keep their nonce and never come back here.
type NonceManager struct {
	pendingNonces map[common.Address]map[uint64]time.Time // Tracks handed out nonces and when they were issued
	mu            sync.Mutex                              // Mutex for thread-safe access
}

// NewNonceManager creates a new nonce manager instance.
func NewNonceManager() *NonceManager {
	return &NonceManager{
		pendingNonces: make(map[common.Address]map[uint64]time.Time),
	}
}

// GetNonce gets the next available nonce for account.
// It queries the node for the pending nonce and skips nonces that are
// already handed out.
func (nm *NonceManager) GetNonce(ctx context.Context, source NonceSource, account common.Address) (uint64, error) {
	// Ask the node before taking the lock, the mutex never spans a network call.
	nonce, err := source.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, err
	}

	nm.mu.Lock()
	defer nm.mu.Unlock()

	if nm.pendingNonces[account] == nil {
		nm.pendingNonces[account] = make(map[uint64]time.Time)
	}

	for {
		if _, isPending := nm.pendingNonces[account][nonce]; !isPending {
			nm.pendingNonces[account][nonce] = time.Now()
			return nonce, nil
		}
		nonce++
	}
}

// ReleaseNonce releases a previously handed out nonce.
// This should be called after a transaction is confirmed or abandoned.
func (nm *NonceManager) ReleaseNonce(account common.Address, nonce uint64) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if nm.pendingNonces[account] != nil {
		delete(nm.pendingNonces[account], nonce)
	}
}

// Pending returns how many nonces are currently handed out for account.
func (nm *NonceManager) Pending(account common.Address) int {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	return len(nm.pendingNonces[account])
}
