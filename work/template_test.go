package work

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gm2017/hidecoin/difficulty"
	"github.com/gm2017/hidecoin/wire"
)

type memChain struct {
	blocks []*StoredBlock
}

func (c *memChain) Height() (uint64, error) {
	if len(c.blocks) == 0 {
		return 0, errors.New("empty chain")
	}
	return uint64(len(c.blocks) - 1), nil
}

func (c *memChain) BlockAt(h uint64) (*StoredBlock, error) {
	if h >= uint64(len(c.blocks)) {
		return nil, fmt.Errorf("no block at %d", h)
	}
	return c.blocks[h], nil
}

func (c *memChain) add(t *testing.T, ts uint64, target wire.Target) {
	t.Helper()
	var prev chainhash.Hash
	if len(c.blocks) > 0 {
		prev = c.blocks[len(c.blocks)-1].Hash
	}
	cb, hash, err := wire.EncodeTx(&wire.MsgTx{Time: ts, Outs: []wire.TxOut{{Value: 1}}})
	require.NoError(t, err)
	enc, err := wire.EncodeBlock(&wire.MsgBlock{
		BlockHeader:  wire.BlockHeader{Version: wire.BlockVersion, PrevBlock: prev, Timestamp: ts, Target: target},
		Transactions: [][]byte{cb},
		TxHashes:     []chainhash.Hash{hash},
	})
	require.NoError(t, err)
	c.blocks = append(c.blocks, &StoredBlock{
		Height: uint64(len(c.blocks)),
		Hash:   chainhash.DoubleHashH(enc.Bytes()),
		Data:   enc.Bytes(),
	})
}

type memPool struct {
	entries []PoolEntry
	err     error
}

func (p *memPool) Snapshot() ([]PoolEntry, error) {
	return p.entries, p.err
}

func (p *memPool) Delete(hash chainhash.Hash) bool {
	for i, e := range p.entries {
		if e.Hash == hash {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			return true
		}
	}
	return false
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

const testNow = 1700000000

func testAddress(t *testing.T, seed byte) btcutil.Address {
	t.Helper()
	hash := make([]byte, 20)
	hash[0] = seed
	a, err := btcutil.NewAddressPubKeyHash(hash, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	return a
}

func testEngine() *difficulty.Engine {
	return difficulty.New(difficulty.Params{
		PowLimit:        wire.MaxTarget,
		TargetSpacing:   time.Minute,
		WindowSpan:      time.Hour,
		MaxAdjustFactor: 2,
		MinHeight:       2,
	})
}

func pendingTx(t *testing.T, seed byte, fee uint64) PoolEntry {
	t.Helper()
	data, hash, err := wire.EncodeTx(&wire.MsgTx{
		Time: uint64(seed),
		Ins:  []wire.TxIn{{PrevTx: chainhash.Hash{seed}}},
		Outs: []wire.TxOut{{Value: 1000}},
	})
	require.NoError(t, err)
	return PoolEntry{Hash: hash, Data: data, Fee: fee}
}

func newBuilder(chain *memChain, pool *memPool) *TemplateBuilder {
	return NewTemplateBuilder(chain, pool, func(uint64) uint64 { return 50 }, fixedClock(time.Unix(testNow, 0)), testEngine())
}

func decodeCoinbase(t *testing.T, tmpl *Template) *wire.MsgTx {
	t.Helper()
	cb, err := wire.DecodeTx(tmpl.Block.Transactions[0])
	require.NoError(t, err)
	require.True(t, cb.IsCoinbase())
	require.Len(t, cb.Outs, 1)
	return cb
}

func TestBuildNoMinerAddress(t *testing.T) {
	chain := &memChain{}
	chain.add(t, testNow-100, wire.MaxTarget)

	_, err := newBuilder(chain, &memPool{}).Build(nil)
	assert.True(t, errors.Is(err, ErrNoMinerAddress))
}

func TestBuildRewardIncludesFees(t *testing.T) {
	chain := &memChain{}
	chain.add(t, testNow-100, wire.MaxTarget)
	pool := &memPool{entries: []PoolEntry{pendingTx(t, 1, 5), pendingTx(t, 2, 7)}}
	addr := testAddress(t, 1)

	tmpl, err := newBuilder(chain, pool).Build([]btcutil.Address{addr})
	require.NoError(t, err)

	blk := tmpl.Block
	require.Len(t, blk.Transactions, 3)
	require.Len(t, blk.TxHashes, 3)
	assert.Equal(t, uint64(62), tmpl.Reward)
	assert.Equal(t, uint64(12), tmpl.Fees)
	assert.Equal(t, uint64(1), tmpl.Height)

	cb := decodeCoinbase(t, tmpl)
	assert.Equal(t, uint64(62), cb.Outs[0].Value)
	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	assert.Equal(t, script, cb.Outs[0].Script)

	assert.Equal(t, wire.TxHash(blk.Transactions[0]), blk.TxHashes[0])
	assert.Equal(t, pool.entries[0].Hash, blk.TxHashes[1])
	assert.Equal(t, pool.entries[1].Hash, blk.TxHashes[2])
	assert.Equal(t, []chainhash.Hash{pool.entries[0].Hash, pool.entries[1].Hash}, tmpl.PoolTxs)

	assert.Equal(t, chain.blocks[0].Hash, blk.PrevBlock)
	assert.Equal(t, uint64(testNow), blk.Timestamp)
	assert.Zero(t, blk.Nonce)
	assert.Equal(t, wire.MaxTarget, blk.Target)

	_, err = wire.EncodeBlock(blk)
	assert.NoError(t, err)
}

func TestBuildEmptyPool(t *testing.T) {
	chain := &memChain{}
	chain.add(t, testNow-100, wire.MaxTarget)

	tmpl, err := newBuilder(chain, &memPool{}).Build([]btcutil.Address{testAddress(t, 1)})
	require.NoError(t, err)
	require.Len(t, tmpl.Block.Transactions, 1)
	assert.Equal(t, wire.TxHash(tmpl.Block.Transactions[0]), tmpl.Block.TxHashes[0])
	assert.Equal(t, uint64(50), decodeCoinbase(t, tmpl).Outs[0].Value)
}

func TestBuildPartialSnapshot(t *testing.T) {
	chain := &memChain{}
	chain.add(t, testNow-100, wire.MaxTarget)
	pool := &memPool{
		entries: []PoolEntry{pendingTx(t, 1, 3), {Hash: chainhash.Hash{9}, Fee: 100}},
		err:     errors.New("pool changed during iteration"),
	}

	tmpl, err := newBuilder(chain, pool).Build([]btcutil.Address{testAddress(t, 1)})
	require.NoError(t, err)
	// The empty entry is skipped, the valid one is kept.
	assert.Len(t, tmpl.Block.Transactions, 2)
	assert.Equal(t, uint64(53), tmpl.Reward)
}

func TestBuildPicksAddressUniformly(t *testing.T) {
	chain := &memChain{}
	chain.add(t, testNow-100, wire.MaxTarget)
	addrs := []btcutil.Address{testAddress(t, 1), testAddress(t, 2), testAddress(t, 3)}

	b := newBuilder(chain, &memPool{})
	var asked []int
	b.intn = func(n int) int {
		asked = append(asked, n)
		return 2
	}
	tmpl, err := b.Build(addrs)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, asked)
	assert.Equal(t, addrs[2], tmpl.PayTo)
}

func TestBuildRetargetsFromWindow(t *testing.T) {
	parentTarget, err := difficulty.CompactToTarget(0x1e0fffff)
	require.NoError(t, err)

	// 120 blocks in the last hour is twice the expected rate.
	chain := &memChain{}
	chain.add(t, testNow-10000, parentTarget)
	for i := 0; i < 120; i++ {
		chain.add(t, testNow-3600+uint64(i)*30, parentTarget)
	}

	tmpl, err := newBuilder(chain, &memPool{}).Build([]btcutil.Address{testAddress(t, 1)})
	require.NoError(t, err)
	assert.True(t, tmpl.Block.Target.Big().Cmp(parentTarget.Big()) < 0)

	window, err := newBuilder(chain, &memPool{}).window(120, testNow-3600+119*30)
	require.NoError(t, err)
	assert.Len(t, window, 120)
}

func TestBuildSkipsPooledCoinbase(t *testing.T) {
	chain := &memChain{}
	chain.add(t, testNow-100, wire.MaxTarget)
	data, hash, err := wire.EncodeTx(&wire.MsgTx{Time: 9, Outs: []wire.TxOut{{Value: 1}}})
	require.NoError(t, err)
	pool := &memPool{entries: []PoolEntry{{Hash: hash, Data: data, Fee: 40}, pendingTx(t, 1, 5)}}

	tmpl, err := newBuilder(chain, pool).Build([]btcutil.Address{testAddress(t, 1)})
	require.NoError(t, err)
	assert.Equal(t, []chainhash.Hash{pool.entries[1].Hash}, tmpl.PoolTxs)
	assert.Equal(t, uint64(55), tmpl.Reward)
	for _, tx := range tmpl.Block.Transactions[1:] {
		decoded, err := wire.DecodeTx(tx)
		require.NoError(t, err)
		assert.False(t, decoded.IsCoinbase())
	}
}

func TestBuildSkipsOverflowingFees(t *testing.T) {
	chain := &memChain{}
	chain.add(t, testNow-100, wire.MaxTarget)
	pool := &memPool{entries: []PoolEntry{
		pendingTx(t, 1, math.MaxUint64),
		pendingTx(t, 2, 7),
		pendingTx(t, 3, math.MaxUint64-50),
		pendingTx(t, 4, 3),
	}}

	tmpl, err := newBuilder(chain, pool).Build([]btcutil.Address{testAddress(t, 1)})
	require.NoError(t, err)
	assert.Equal(t, uint64(10), tmpl.Fees)
	assert.Equal(t, uint64(60), tmpl.Reward)
	assert.Equal(t, []chainhash.Hash{pool.entries[1].Hash, pool.entries[3].Hash}, tmpl.PoolTxs)
	assert.Equal(t, tmpl.Reward, decodeCoinbase(t, tmpl).Outs[0].Value)
}
