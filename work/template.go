package work

import (
	"errors"
	"fmt"
	"math/bits"
	"math/rand/v2"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/gm2017/hidecoin/difficulty"
	"github.com/gm2017/hidecoin/logging"
	"github.com/gm2017/hidecoin/wire"
)

var log = logging.New("WRK")

// ErrNoMinerAddress means there is nobody to pay the block reward to.
var ErrNoMinerAddress = errors.New("no miner address configured")

// Template is a candidate block together with what went into it.
type Template struct {
	Block  *wire.MsgBlock
	Height uint64
	Fees   uint64
	Reward uint64
	PayTo  btcutil.Address

	// PoolTxs are the pool hashes included after the coinbase.
	PoolTxs []chainhash.Hash
}

type TemplateBuilder struct {
	chain   ChainStore
	pool    PendingPool
	subsidy RewardSchedule
	clock   Clock
	diff    *difficulty.Engine

	intn func(n int) int
}

func NewTemplateBuilder(chain ChainStore, pool PendingPool, subsidy RewardSchedule, clock Clock, diff *difficulty.Engine) *TemplateBuilder {
	return &TemplateBuilder{
		chain:   chain,
		pool:    pool,
		subsidy: subsidy,
		clock:   clock,
		diff:    diff,
		intn:    rand.IntN,
	}
}

// Build assembles a candidate on top of the current tip containing every
// admissible pending transaction. Entries that fail to decode, are
// coinbases or would overflow the reward are left out. The coinbase pays a
// randomly chosen address.
func (tb *TemplateBuilder) Build(addresses []btcutil.Address) (*Template, error) {
	if len(addresses) == 0 {
		return nil, ErrNoMinerAddress
	}

	height, err := tb.chain.Height()
	if err != nil {
		return nil, fmt.Errorf("failed to read chain height: %w", err)
	}
	parent, err := tb.chain.BlockAt(height)
	if err != nil {
		return nil, fmt.Errorf("failed to read tip at height %d: %w", height, err)
	}
	parentHdr, err := wire.DecodeHeader(parent.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tip %s: %w", parent.Hash, err)
	}

	window, err := tb.window(height, parentHdr.Timestamp)
	if err != nil {
		return nil, err
	}

	entries, err := tb.pool.Snapshot()
	if err != nil {
		log.Warnf("Pending pool snapshot incomplete, using %d entries: %v", len(entries), err)
	}

	tmpl := &Template{Height: height + 1}
	subsidy := tb.subsidy(tmpl.Height)
	txs := make([][]byte, 1, len(entries)+1)
	hashes := make([]chainhash.Hash, 1, len(entries)+1)
	for _, e := range entries {
		if len(e.Data) == 0 || len(e.Data) > wire.MaxTxSize {
			log.Warnf("Skipping pending tx %s with size %d", e.Hash, len(e.Data))
			continue
		}
		if _, err := wire.CheckPendingTx(e.Data); err != nil {
			log.Warnf("Skipping pending tx %s: %v", e.Hash, err)
			continue
		}
		if len(txs) >= wire.MaxBlockTxs {
			break
		}
		// Subsidy plus fees must fit the coinbase output.
		fees, carry := bits.Add64(tmpl.Fees, e.Fee, 0)
		if _, over := bits.Add64(subsidy, fees, 0); carry != 0 || over != 0 {
			log.Warnf("Skipping pending tx %s, fee %d overflows the block reward", e.Hash, e.Fee)
			continue
		}
		tmpl.Fees = fees
		txs = append(txs, e.Data)
		hashes = append(hashes, e.Hash)
		tmpl.PoolTxs = append(tmpl.PoolTxs, e.Hash)
	}

	now := uint64(tb.clock.Now().Unix())
	tmpl.Reward = subsidy + tmpl.Fees
	tmpl.PayTo = addresses[tb.intn(len(addresses))]
	txs[0], hashes[0], err = CreateCoinbaseTx(tmpl.PayTo, tmpl.Reward, now)
	if err != nil {
		return nil, err
	}

	tmpl.Block = &wire.MsgBlock{
		BlockHeader: wire.BlockHeader{
			Version:   wire.BlockVersion,
			PrevBlock: parent.Hash,
			Timestamp: now,
			Target:    tb.diff.Compute(tmpl.Height, parentHdr.Target, window),
			Nonce:     0,
		},
		Transactions: txs,
		TxHashes:     hashes,
	}
	return tmpl, nil
}

// window collects the timestamps of the blocks no older than the window
// span before the tip, walking back from the tip.
func (tb *TemplateBuilder) window(tip uint64, tipTime uint64) ([]uint64, error) {
	span := uint64(tb.diff.Params().WindowSpan.Seconds())
	var from uint64
	if tipTime > span {
		from = tipTime - span
	}

	var stamps []uint64
	for h := tip; ; h-- {
		blk, err := tb.chain.BlockAt(h)
		if err != nil {
			return nil, fmt.Errorf("failed to read block %d for difficulty window: %w", h, err)
		}
		hdr, err := wire.DecodeHeader(blk.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode block %d for difficulty window: %w", h, err)
		}
		if hdr.Timestamp < from {
			break
		}
		stamps = append(stamps, hdr.Timestamp)
		if h == 0 {
			break
		}
	}
	return stamps, nil
}
