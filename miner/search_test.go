package miner

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gm2017/hidecoin/pow"
	"github.com/gm2017/hidecoin/wire"
	"github.com/gm2017/hidecoin/work"
)

func testAddress(t *testing.T, seed byte) btcutil.Address {
	t.Helper()
	hash := make([]byte, 20)
	hash[0] = seed
	a, err := btcutil.NewAddressPubKeyHash(hash, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	return a
}

func testTemplate(t *testing.T, target wire.Target) *work.Template {
	t.Helper()
	addr := testAddress(t, 1)
	cb, hash, err := work.CreateCoinbaseTx(addr, 50, 1700000000)
	require.NoError(t, err)
	return &work.Template{
		Block: &wire.MsgBlock{
			BlockHeader: wire.BlockHeader{
				Version:   wire.BlockVersion,
				PrevBlock: chainhash.DoubleHashH([]byte("tip")),
				Timestamp: 1700000000,
				Target:    target,
			},
			Transactions: [][]byte{cb},
			TxHashes:     []chainhash.Hash{hash},
		},
		Height: 1,
		Reward: 50,
		PayTo:  addr,
	}
}

func loadedSession(t *testing.T, target wire.Target) *Session {
	t.Helper()
	tmpl := testTemplate(t, target)
	enc, err := wire.EncodeBlock(tmpl.Block)
	require.NoError(t, err)
	s := NewSession()
	s.begin()
	s.load(tmpl, enc)
	return s
}

func TestSearchFindsOnFirstAttempt(t *testing.T) {
	s := loadedSession(t, wire.MaxTarget)

	res := Search(context.Background(), s, pow.Sha256d{}, 10, nil)
	require.Equal(t, Found, res.State)
	assert.Equal(t, uint64(1), res.Nonce)
	assert.Equal(t, uint64(1), res.Attempts)

	decoded, err := wire.DecodeBlock(res.Block)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), decoded.Nonce)

	enc, err := wire.EncodeBlock(decoded)
	require.NoError(t, err)
	h, found := enc.Hash(pow.Sha256d{})
	assert.True(t, found)
	assert.Equal(t, res.Hash, h)
}

func TestSearchAbortsOnPendingRestart(t *testing.T) {
	s := loadedSession(t, wire.MaxTarget)
	require.True(t, s.RequestRestart())

	res := Search(context.Background(), s, pow.Sha256d{}, 10, nil)
	assert.Equal(t, Aborted, res.State)
	assert.Zero(t, res.Attempts)
	assert.Zero(t, s.TakeHashes())
}

func TestSearchStopsOnContext(t *testing.T) {
	s := loadedSession(t, wire.Target{})
	ctx, cancel := context.WithCancel(context.Background())

	batches := 0
	res := Search(ctx, s, pow.Sha256d{}, 5, func() {
		batches++
		if batches == 3 {
			cancel()
		}
	})
	assert.Equal(t, Aborted, res.State)
	assert.Equal(t, uint64(15), res.Attempts)
	assert.Equal(t, uint64(15), s.TakeHashes())
}

func TestSearchPicksUpHeaderUpdate(t *testing.T) {
	s := loadedSession(t, wire.Target{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ts := uint64(1700000999)
	var tgt wire.Target
	tgt[31] = 1

	batches := 0
	Search(ctx, s, pow.Sha256d{}, 4, func() {
		batches++
		switch batches {
		case 1:
			require.True(t, s.Apply(wire.HeaderUpdate{Timestamp: &ts, Target: &tgt}))
		case 2:
			cancel()
		}
	})

	// The nonce restarted from zero after the update.
	assert.Equal(t, uint64(4), s.block.Nonce)
	assert.Equal(t, uint64(4), s.encoded.Nonce())
	assert.Equal(t, ts, s.encoded.Timestamp())
	assert.Equal(t, tgt, s.encoded.Target())

	full, err := wire.EncodeBlock(s.block)
	require.NoError(t, err)
	assert.Equal(t, full.Bytes(), s.encoded.Bytes())
}

func TestRestartWithoutActiveSession(t *testing.T) {
	s := NewSession()
	assert.False(t, s.RequestRestart())
	assert.False(t, s.restartRequested())

	s.begin()
	assert.True(t, s.RequestRestart())
	s.end()
	assert.False(t, s.RequestRestart())

	// A stale flag does not leak into the next cycle.
	s.begin()
	assert.False(t, s.restartRequested())
}

func TestApplyWithoutCandidate(t *testing.T) {
	s := NewSession()
	ts := uint64(1)
	assert.False(t, s.Apply(wire.HeaderUpdate{Timestamp: &ts}))

	_, ok := s.Candidate()
	assert.False(t, ok)
}

func TestSearchStateString(t *testing.T) {
	assert.Equal(t, "found", Found.String())
	assert.Equal(t, "aborted", Aborted.String())
	assert.Equal(t, "unknown", SearchState(42).String())
}
