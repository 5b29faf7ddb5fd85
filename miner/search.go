package miner

import (
	"context"
	"runtime"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/gm2017/hidecoin/pow"
)

// DefaultBatchSize is the number of hashes between yield points.
const DefaultBatchSize = 1000

type SearchState int

const (
	Idle SearchState = iota
	Searching
	Found
	Aborted
)

func (s SearchState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case Found:
		return "found"
	case Aborted:
		return "aborted"
	}
	return "unknown"
}

type SearchResult struct {
	State    SearchState
	Nonce    uint64
	Hash     chainhash.Hash
	Block    []byte
	Attempts uint64
}

// Search hashes the session's candidate in batches until a nonce meets the
// target, a restart is requested or ctx is done. The restart flag is checked
// before every attempt, ctx between batches. progress runs after each batch.
func Search(ctx context.Context, s *Session, hasher pow.Hasher, batchSize int, progress func()) SearchResult {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var res SearchResult
	for {
		if ctx.Err() != nil {
			res.State = Aborted
			return res
		}

		state := s.searchBatch(hasher, batchSize, &res)
		if progress != nil {
			progress()
		}
		if state != Searching {
			res.State = state
			return res
		}
		runtime.Gosched()
	}
}

func (s *Session) searchBatch(hasher pow.Hasher, batchSize int, res *SearchResult) SearchState {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.encoded == nil {
		return Aborted
	}

	var tried uint64
	defer func() {
		s.hashes.Add(tried)
		res.Attempts += tried
	}()

	for i := 0; i < batchSize; i++ {
		if s.restart.Load() {
			return Aborted
		}
		s.block.Nonce++
		s.encoded.PutNonce(s.block.Nonce)
		hash, found := s.encoded.Hash(hasher)
		tried++
		if found {
			res.Nonce = s.block.Nonce
			res.Hash = hash
			res.Block = s.encoded.Copy()
			return Found
		}
	}
	return Searching
}
