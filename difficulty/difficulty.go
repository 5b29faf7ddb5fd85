// Package difficulty retargets the proof of work threshold from the number
// of blocks seen in a trailing time window.
package difficulty

import (
	"math/big"
	"time"

	"github.com/btcsuite/btcd/blockchain"

	"github.com/gm2017/hidecoin/wire"
)

type Params struct {
	// PowLimit is the easiest allowed target, i.e. the difficulty floor.
	PowLimit wire.Target

	TargetSpacing time.Duration
	WindowSpan    time.Duration

	// MaxAdjustFactor bounds how far a single retarget may move the target
	// in either direction.
	MaxAdjustFactor int64

	// Blocks below MinHeight inherit the parent target unchanged.
	MinHeight uint64
}

// Engine computes new targets. It is stateless and safe for concurrent use.
type Engine struct {
	params   Params
	powLimit *big.Int
	expected int64
}

func New(p Params) *Engine {
	if p.MaxAdjustFactor < 1 {
		p.MaxAdjustFactor = 1
	}
	expected := int64(p.WindowSpan / p.TargetSpacing)
	if expected < 1 {
		expected = 1
	}
	return &Engine{
		params:   p,
		powLimit: p.PowLimit.Big(),
		expected: expected,
	}
}

func (e *Engine) Params() Params {
	return e.params
}

// ExpectedBlocks is the number of blocks the window should hold at the
// target rate.
func (e *Engine) ExpectedBlocks() int64 {
	return e.expected
}

// Compute returns the target for the block at height, given its parent's
// target and the timestamps of the blocks in the window ending at the
// parent. More blocks than expected lowers the target, fewer raises it.
func (e *Engine) Compute(height uint64, parent wire.Target, window []uint64) wire.Target {
	if len(window) == 0 || height < e.params.MinHeight {
		return parent
	}

	old := parent.Big()
	if old.Sign() == 0 {
		return parent
	}

	next := new(big.Int).Mul(old, big.NewInt(e.expected))
	next.Quo(next, big.NewInt(int64(len(window))))

	factor := big.NewInt(e.params.MaxAdjustFactor)
	lower := new(big.Int).Quo(old, factor)
	upper := new(big.Int).Mul(old, factor)
	if next.Cmp(lower) < 0 {
		next = lower
	}
	if next.Cmp(upper) > 0 {
		next = upper
	}
	if next.Cmp(e.powLimit) > 0 {
		next = new(big.Int).Set(e.powLimit)
	}
	if next.Sign() == 0 {
		next.SetInt64(1)
	}

	t, err := wire.TargetFromBig(next)
	if err != nil {
		// next never exceeds the pow limit, which is itself a Target.
		return parent
	}
	return t
}

// Difficulty expresses t as a multiple of the easiest target.
func (e *Engine) Difficulty(t wire.Target) float64 {
	tb := t.Big()
	if tb.Sign() == 0 {
		return 0
	}
	d, _ := new(big.Float).Quo(new(big.Float).SetInt(e.powLimit), new(big.Float).SetInt(tb)).Float64()
	return d
}

// CompactToTarget expands compact "bits" into a target.
func CompactToTarget(bits uint32) (wire.Target, error) {
	return wire.TargetFromBig(blockchain.CompactToBig(bits))
}

// TargetToCompact is the inverse of CompactToTarget, losing precision.
func TargetToCompact(t wire.Target) uint32 {
	return blockchain.BigToCompact(t.Big())
}
