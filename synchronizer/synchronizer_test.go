package synchronizer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gm2017/hidecoin/chainstore"
	"github.com/gm2017/hidecoin/pow"
	"github.com/gm2017/hidecoin/wire"
)

func block(t *testing.T, prev chainhash.Hash, ts uint64, target wire.Target) (*wire.MsgBlock, chainhash.Hash, []byte) {
	t.Helper()
	cb, cbHash, err := wire.EncodeTx(&wire.MsgTx{Time: ts, Outs: []wire.TxOut{{Value: 50}}})
	require.NoError(t, err)
	blk := &wire.MsgBlock{
		BlockHeader:  wire.BlockHeader{Version: wire.BlockVersion, PrevBlock: prev, Timestamp: ts, Target: target},
		Transactions: [][]byte{cb},
		TxHashes:     []chainhash.Hash{cbHash},
	}
	enc, err := wire.EncodeBlock(blk)
	require.NoError(t, err)
	hash, _ := enc.Hash(pow.Sha256d{})
	return blk, hash, enc.Copy()
}

func encode(t *testing.T, blk *wire.MsgBlock) (chainhash.Hash, []byte) {
	t.Helper()
	enc, err := wire.EncodeBlock(blk)
	require.NoError(t, err)
	hash, _ := enc.Hash(pow.Sha256d{})
	return hash, enc.Copy()
}

func newStore(t *testing.T) (*chainstore.Store, chainhash.Hash) {
	t.Helper()
	store, err := chainstore.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, hash, data := block(t, chainhash.Hash{}, 1000, wire.MaxTarget)
	require.NoError(t, store.Init(hash, data))
	return store, hash
}

func TestSubmitAccepts(t *testing.T) {
	store, genesis := newStore(t)
	s := New(store, pow.Sha256d{}, nil, 0)

	var order []string
	s.OnTip(func(height uint64, hash chainhash.Hash) {
		order = append(order, "tip")
		assert.Equal(t, uint64(1), height)
	})

	_, hash, data := block(t, genesis, 1060, wire.MaxTarget)
	s.Submit(hash, data, func() { order = append(order, "accept") })

	assert.Equal(t, []string{"accept", "tip"}, order)
	tip, err := store.TipHash()
	require.NoError(t, err)
	assert.Equal(t, hash, tip)

	// The same block again is not accepted twice.
	s.Submit(hash, data, func() { order = append(order, "accept") })
	assert.Len(t, order, 2)
}

func TestSubmitRejects(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T, genesis chainhash.Hash) (chainhash.Hash, []byte)
	}{
		{"wrong parent", func(t *testing.T, _ chainhash.Hash) (chainhash.Hash, []byte) {
			_, hash, data := block(t, chainhash.Hash{7}, 1060, wire.MaxTarget)
			return hash, data
		}},
		{"hash mismatch", func(t *testing.T, genesis chainhash.Hash) (chainhash.Hash, []byte) {
			_, _, data := block(t, genesis, 1060, wire.MaxTarget)
			return chainhash.Hash{1}, data
		}},
		{"target not met", func(t *testing.T, genesis chainhash.Hash) (chainhash.Hash, []byte) {
			_, hash, data := block(t, genesis, 1060, wire.Target{})
			return hash, data
		}},
		{"tx hash mismatch", func(t *testing.T, genesis chainhash.Hash) (chainhash.Hash, []byte) {
			blk, _, _ := block(t, genesis, 1060, wire.MaxTarget)
			blk.TxHashes[0] = chainhash.Hash{9}
			return encode(t, blk)
		}},
		{"coinbase not first", func(t *testing.T, genesis chainhash.Hash) (chainhash.Hash, []byte) {
			blk, _, _ := block(t, genesis, 1060, wire.MaxTarget)
			spend, spendHash, err := wire.EncodeTx(&wire.MsgTx{
				Ins:  []wire.TxIn{{PrevTx: chainhash.Hash{3}}},
				Outs: []wire.TxOut{{Value: 1}},
			})
			require.NoError(t, err)
			blk.Transactions = [][]byte{spend, blk.Transactions[0]}
			blk.TxHashes = []chainhash.Hash{spendHash, blk.TxHashes[0]}
			return encode(t, blk)
		}},
		{"garbage", func(t *testing.T, _ chainhash.Hash) (chainhash.Hash, []byte) {
			return chainhash.Hash{}, []byte{1, 2, 3}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, genesis := newStore(t)
			s := New(store, pow.Sha256d{}, nil, 0)
			s.OnTip(func(uint64, chainhash.Hash) { t.Error("tip listener called for a rejected block") })

			hash, data := tc.build(t, genesis)
			s.Submit(hash, data, func() { t.Error("onAccept called for a rejected block") })

			height, err := store.Height()
			require.NoError(t, err)
			assert.Zero(t, height)
		})
	}
}

func TestReceive(t *testing.T) {
	store, genesis := newStore(t)
	s := New(store, pow.Sha256d{}, nil, 0)

	var tips []uint64
	s.OnTip(func(height uint64, _ chainhash.Hash) { tips = append(tips, height) })

	_, want, data := block(t, genesis, 1060, wire.MaxTarget)
	hash, err := s.Receive(data)
	require.NoError(t, err)
	assert.Equal(t, want, hash)
	assert.Equal(t, []uint64{1}, tips)

	_, err = s.Receive(data)
	assert.True(t, errors.Is(err, ErrRejected))

	_, err = s.Receive([]byte{0})
	assert.ErrorIs(t, err, ErrRejected)
}

type fakePeer struct {
	name string
	err  error

	mtx sync.Mutex
	got [][]byte
}

func (p *fakePeer) Endpoint() string { return p.name }

func (p *fakePeer) SubmitBlock(_ context.Context, block []byte) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.got = append(p.got, block)
	return p.err
}

func TestBroadcast(t *testing.T) {
	store, _ := newStore(t)
	ok := &fakePeer{name: "a"}
	failing := &fakePeer{name: "b", err: errors.New("connection refused")}
	s := New(store, pow.Sha256d{}, []Peer{ok, failing}, 0)

	data := []byte{1, 2, 3}
	s.Broadcast(chainhash.Hash{1}, data)
	data[0] = 9
	s.Wait()

	for _, p := range []*fakePeer{ok, failing} {
		require.Len(t, p.got, 1)
		assert.Equal(t, []byte{1, 2, 3}, p.got[0])
	}
}
