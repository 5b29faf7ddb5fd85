package work

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// StoredBlock is a block as kept by the chain store.
type StoredBlock struct {
	Height uint64
	Hash   chainhash.Hash
	Data   []byte
}

// ChainStore is the read side of the local chain. Height returns the height
// of the tip; the genesis block is at height 0.
type ChainStore interface {
	Height() (uint64, error)
	BlockAt(height uint64) (*StoredBlock, error)
}

// PoolEntry is a pending transaction awaiting inclusion.
type PoolEntry struct {
	Hash chainhash.Hash
	Data []byte
	Fee  uint64
}

// PendingPool is the pending transaction pool. Snapshot may return a
// partial result together with an error; the entries are still usable.
type PendingPool interface {
	Snapshot() ([]PoolEntry, error)
	Delete(hash chainhash.Hash) bool
}

// RewardSchedule returns the block subsidy at a height, excluding fees.
type RewardSchedule func(height uint64) uint64

type Clock interface {
	Now() time.Time
}
