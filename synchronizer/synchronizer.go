// Package synchronizer accepts blocks into the local chain, whether mined
// here or received from a peer, and relays locally mined ones.
package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/gm2017/hidecoin/logging"
	"github.com/gm2017/hidecoin/pow"
	"github.com/gm2017/hidecoin/wire"
)

var log = logging.New("SYN")

// ErrRejected wraps every validation failure.
var ErrRejected = errors.New("block rejected")

// Chain is the write side of the local chain.
type Chain interface {
	TipHash() (chainhash.Hash, error)
	Append(prev, hash chainhash.Hash, data []byte) (uint64, error)
	Has(hash chainhash.Hash) bool
}

// Peer receives relayed blocks.
type Peer interface {
	Endpoint() string
	SubmitBlock(ctx context.Context, block []byte) error
}

// TipListener is called after a block becomes the new tip.
type TipListener func(height uint64, hash chainhash.Hash)

type Synchronizer struct {
	chain   Chain
	hasher  pow.Hasher
	peers   []Peer
	timeout time.Duration

	// mtx serialises validation and append so two blocks never race for
	// the same parent.
	mtx sync.Mutex

	listenersMtx sync.RWMutex
	listeners    []TipListener

	relays sync.WaitGroup
}

func New(chain Chain, hasher pow.Hasher, peers []Peer, relayTimeout time.Duration) *Synchronizer {
	if relayTimeout <= 0 {
		relayTimeout = 10 * time.Second
	}
	return &Synchronizer{
		chain:   chain,
		hasher:  hasher,
		peers:   peers,
		timeout: relayTimeout,
	}
}

// OnTip registers a listener for new tips.
func (s *Synchronizer) OnTip(l TipListener) {
	s.listenersMtx.Lock()
	s.listeners = append(s.listeners, l)
	s.listenersMtx.Unlock()
}

// Submit validates and appends a block claimed to hash to hash. onAccept
// runs exactly once, after the append and before tip listeners, when the
// block is accepted and never otherwise.
func (s *Synchronizer) Submit(hash chainhash.Hash, block []byte, onAccept func()) {
	height, err := s.accept(hash, block)
	if err != nil {
		log.Warnf("Block %s not accepted: %v", hash, err)
		return
	}
	if onAccept != nil {
		onAccept()
	}
	s.notify(height, hash)
}

// Receive takes a block from a peer. It returns the block hash.
func (s *Synchronizer) Receive(block []byte) (chainhash.Hash, error) {
	enc, err := wire.NewEncodedBlock(block)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	hash, _ := enc.Hash(s.hasher)
	height, err := s.accept(hash, block)
	if err != nil {
		return hash, err
	}
	s.notify(height, hash)
	return hash, nil
}

func (s *Synchronizer) accept(hash chainhash.Hash, block []byte) (uint64, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.chain.Has(hash) {
		return 0, fmt.Errorf("%w: already have %s", ErrRejected, hash)
	}
	blk, err := s.validate(hash, block)
	if err != nil {
		return 0, err
	}
	height, err := s.chain.Append(blk.PrevBlock, hash, block)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	log.Infof("Accepted block %s at height %d", hash, height)
	return height, nil
}

func (s *Synchronizer) validate(hash chainhash.Hash, block []byte) (*wire.MsgBlock, error) {
	blk, err := wire.DecodeBlock(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	tip, err := s.chain.TipHash()
	if err != nil {
		return nil, fmt.Errorf("failed to read tip: %w", err)
	}
	if blk.PrevBlock != tip {
		return nil, fmt.Errorf("%w: parent %s is not the tip %s", ErrRejected, blk.PrevBlock, tip)
	}

	for i, data := range blk.Transactions {
		if wire.TxHash(data) != blk.TxHashes[i] {
			return nil, fmt.Errorf("%w: tx %d does not match its hash", ErrRejected, i)
		}
		if i > 0 {
			if _, err := wire.CheckPendingTx(data); err != nil {
				return nil, fmt.Errorf("%w: tx %d: %v", ErrRejected, i, err)
			}
			continue
		}
		tx, err := wire.DecodeTx(data)
		if err != nil {
			return nil, fmt.Errorf("%w: coinbase: %v", ErrRejected, err)
		}
		if !tx.IsCoinbase() {
			return nil, fmt.Errorf("%w: first tx is not a coinbase", ErrRejected)
		}
	}

	enc, err := wire.NewEncodedBlock(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	digest, found := enc.Hash(s.hasher)
	if digest != hash {
		return nil, fmt.Errorf("%w: hash mismatch, computed %s", ErrRejected, digest)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s does not meet target %s", ErrRejected, hash, blk.Target)
	}
	return blk, nil
}

func (s *Synchronizer) notify(height uint64, hash chainhash.Hash) {
	s.listenersMtx.RLock()
	listeners := append([]TipListener(nil), s.listeners...)
	s.listenersMtx.RUnlock()
	for _, l := range listeners {
		l(height, hash)
	}
}

// Broadcast relays a block to every peer in the background.
func (s *Synchronizer) Broadcast(hash chainhash.Hash, block []byte) {
	if len(s.peers) == 0 {
		return
	}
	data := append([]byte(nil), block...)
	for _, p := range s.peers {
		s.relays.Add(1)
		go func(p Peer) {
			defer s.relays.Done()
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			if err := p.SubmitBlock(ctx, data); err != nil {
				log.Warnf("Relaying block %s to %s failed: %v", hash, p.Endpoint(), err)
				return
			}
			log.Debugf("Relayed block %s to %s", hash, p.Endpoint())
		}(p)
	}
}

// Wait blocks until in-flight relays finish.
func (s *Synchronizer) Wait() {
	s.relays.Wait()
}
