// Package txpool finds an earlier attempt of a transaction in a node's pending pool.
package txpool

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/gas-escalator/pkg/wallet"
)

// ContentReader fetches the node's pool contents (txpool_content).
type ContentReader interface {
	PoolContent(ctx context.Context) (*wallet.PoolContent, error)
}

// Lookup searches the pending section of the pool for a sender and nonce.
// Every call is one round trip; nothing is cached.
type Lookup struct {
	reader ContentReader
	log    *logrus.Logger
}

// NewLookup creates a lookup reading through reader.
func NewLookup(reader ContentReader, log *logrus.Logger) *Lookup {
	if log == nil {
		log = logrus.New()
	}
	return &Lookup{reader: reader, log: log}
}

// FindPending returns the hash of the pending transaction sent by sender with
// the given nonce, or nil when the pool holds none. A nil sender or nonce is a
// validation error naming the missing field.
func (l *Lookup) FindPending(ctx context.Context, sender *common.Address, nonce *uint64) (*common.Hash, error) {
	if sender == nil {
		return nil, wallet.MissingFieldError("from")
	}
	if nonce == nil {
		return nil, wallet.MissingFieldError("nonce")
	}

	content, err := l.reader.PoolContent(ctx)
	if err != nil {
		return nil, err
	}

	hash := Find(content, *sender, *nonce)

	fields := logrus.Fields{
		"sender": sender.Hex(),
		"nonce":  *nonce,
	}
	if hash != nil {
		fields["tx_hash"] = hash.Hex()
		l.log.WithFields(fields).Debug("Found pending transaction")
	} else {
		l.log.WithFields(fields).Debug("No pending transaction")
	}
	return hash, nil
}

// Find scans content for the first pending transaction matching sender and nonce.
func Find(content *wallet.PoolContent, sender common.Address, nonce uint64) *common.Hash {
	if content == nil {
		return nil
	}
	for _, tx := range content.Pending[sender] {
		if tx.Nonce == nonce {
			hash := tx.Hash
			return &hash
		}
	}
	return nil
}
