// Package escalator keeps the escalating priority-fee bid of every pending
// transaction the gas filler has seen, and applies a linear increment, cap and
// expiry policy to it.
package escalator

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

// entry is the stored state of one pending transaction.
type entry struct {
	bid *uint256.Int
	// block is the block number the bid was last advanced at.
	block uint64
}

// Store maps transaction hashes to their current bid. It lives as long as the
// engine that owns it; entries are created on first use and never removed.
// All methods are safe for concurrent use and hold the lock only for map work.
type Store struct {
	mu   sync.Mutex
	bids map[common.Hash]*entry
}

// NewStore returns an empty bid store.
func NewStore() *Store {
	return &Store{bids: make(map[common.Hash]*entry)}
}

// Get returns a copy of the recorded bid for id.
func (s *Store) Get(id common.Hash) (*uint256.Int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.bids[id]
	if !ok {
		return nil, false
	}
	return new(uint256.Int).Set(e.bid), true
}

// Len returns the number of tracked transactions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bids)
}

// LinearEscalator raises a transaction's bid by a fixed increment each time it
// is asked, up to a ceiling, for a bounded window of blocks.
type LinearEscalator struct {
	config Config
	store  *Store
	log    *logrus.Logger
}

// New creates an escalator over store. A nil store gets a fresh one.
func New(config Config, store *Store, log *logrus.Logger) (*LinearEscalator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		store = NewStore()
	}
	if log == nil {
		log = logrus.New()
	}
	return &LinearEscalator{config: config, store: store, log: log}, nil
}

// Config returns the escalation parameters.
func (e *LinearEscalator) Config() Config {
	return e.config
}

// Store returns the shared bid store.
func (e *LinearEscalator) Store() *Store {
	return e.store
}

// Expired reports whether escalation has ended at currentBlock.
func (e *LinearEscalator) Expired(currentBlock uint64) bool {
	return currentBlock >= e.config.ExpiryBlock()
}

// UpdateBid advances the bid for id and returns the new value.
//
// An unseen id starts at StartBid. Before the expiry block the stored bid
// becomes min(bid+Increment, MaxBid); from the expiry block on it is pinned
// to zero.
func (e *LinearEscalator) UpdateBid(id common.Hash, currentBlock uint64) *uint256.Int {
	e.store.mu.Lock()
	bid := e.advanceLocked(id, currentBlock)
	e.store.mu.Unlock()

	e.log.WithFields(logrus.Fields{
		"tx_hash":       id.Hex(),
		"current_block": currentBlock,
		"bid":           bid.Dec(),
	}).Debug("Updated escalation bid")

	return bid
}

// Bid returns the bid to use for id at currentBlock according to the
// configured rebid policy:
//
//   - RebidReuse: a recorded bid is returned unchanged, an unseen id is advanced once;
//   - RebidEveryCall: the bid is advanced on every call;
//   - RebidPerBlock: the bid is advanced at most once per block.
func (e *LinearEscalator) Bid(id common.Hash, currentBlock uint64) *uint256.Int {
	e.store.mu.Lock()
	existing, seen := e.store.bids[id]
	var bid *uint256.Int
	advanced := true
	switch {
	case !seen, e.config.Rebid == RebidEveryCall:
		bid = e.advanceLocked(id, currentBlock)
	case e.config.Rebid == RebidPerBlock && currentBlock > existing.block:
		bid = e.advanceLocked(id, currentBlock)
	default:
		bid = new(uint256.Int).Set(existing.bid)
		advanced = false
	}
	e.store.mu.Unlock()

	e.log.WithFields(logrus.Fields{
		"tx_hash":       id.Hex(),
		"current_block": currentBlock,
		"bid":           bid.Dec(),
		"advanced":      advanced,
		"policy":        e.config.Rebid.String(),
	}).Debug("Resolved escalation bid")

	return bid
}

// CurrentBid returns the recorded bid for id without changing it.
func (e *LinearEscalator) CurrentBid(id common.Hash) (*uint256.Int, bool) {
	return e.store.Get(id)
}

// advanceLocked applies one escalation step. The store lock must be held.
func (e *LinearEscalator) advanceLocked(id common.Hash, currentBlock uint64) *uint256.Int {
	ent, ok := e.store.bids[id]
	if !ok {
		ent = &entry{bid: new(uint256.Int).Set(e.config.StartBid)}
		e.store.bids[id] = ent
	}

	if e.Expired(currentBlock) {
		ent.bid.Clear()
	} else {
		next, overflow := new(uint256.Int).AddOverflow(ent.bid, e.config.Increment)
		if overflow || next.Gt(e.config.MaxBid) {
			next.Set(e.config.MaxBid)
		}
		ent.bid = next
	}
	ent.block = currentBlock

	return new(uint256.Int).Set(ent.bid)
}
