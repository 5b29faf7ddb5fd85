// Package mempool holds pending transactions in arrival order.
package mempool

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"sort"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/gm2017/hidecoin/wire"
	"github.com/gm2017/hidecoin/work"
)

var ErrDuplicate = errors.New("transaction already in pool")

type Pool struct {
	mtx     sync.RWMutex
	entries map[chainhash.Hash]*entry
	seq     uint64
	maxSize int
}

type entry struct {
	work.PoolEntry
	seq uint64
}

// New returns a pool holding at most maxSize transactions; zero means no limit.
func New(maxSize int) *Pool {
	return &Pool{
		entries: make(map[chainhash.Hash]*entry),
		maxSize: maxSize,
	}
}

// Add decodes data as a transaction and stores it under its hash. Coinbase
// transactions are refused with wire.ErrCoinbaseTx.
func (p *Pool) Add(data []byte, fee uint64) (chainhash.Hash, error) {
	if _, err := wire.CheckPendingTx(data); err != nil {
		return chainhash.Hash{}, err
	}
	hash := wire.TxHash(data)

	p.mtx.Lock()
	defer p.mtx.Unlock()
	if _, ok := p.entries[hash]; ok {
		return hash, ErrDuplicate
	}
	if p.maxSize > 0 && len(p.entries) >= p.maxSize {
		return hash, fmt.Errorf("pool is full with %d transactions", len(p.entries))
	}
	p.seq++
	buf := make([]byte, len(data))
	copy(buf, data)
	p.entries[hash] = &entry{
		PoolEntry: work.PoolEntry{Hash: hash, Data: buf, Fee: fee},
		seq:       p.seq,
	}
	return hash, nil
}

// Snapshot returns the entries ordered by arrival.
func (p *Pool) Snapshot() ([]work.PoolEntry, error) {
	p.mtx.RLock()
	list := make([]*entry, 0, len(p.entries))
	for _, e := range p.entries {
		list = append(list, e)
	}
	p.mtx.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	out := make([]work.PoolEntry, len(list))
	for i, e := range list {
		out[i] = e.PoolEntry
	}
	return out, nil
}

func (p *Pool) Delete(hash chainhash.Hash) bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if _, ok := p.entries[hash]; !ok {
		return false
	}
	delete(p.entries, hash)
	return true
}

func (p *Pool) Has(hash chainhash.Hash) bool {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	_, ok := p.entries[hash]
	return ok
}

func (p *Pool) Len() int {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	return len(p.entries)
}

// TotalFees sums the fees of everything pending, saturating at
// math.MaxUint64.
func (p *Pool) TotalFees() uint64 {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	var sum uint64
	for _, e := range p.entries {
		var carry uint64
		if sum, carry = bits.Add64(sum, e.Fee, 0); carry != 0 {
			return math.MaxUint64
		}
	}
	return sum
}
