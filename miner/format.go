package miner

import (
	"fmt"
	"math"
	"math/big"

	"github.com/gm2017/hidecoin/wire"
)

func formatHashrate(hr float64) string {
	switch {
	case hr > 1e9:
		return fmt.Sprintf("%.2f GH/s", hr/1e9)
	case hr > 1e6:
		return fmt.Sprintf("%.2f MH/s", hr/1e6)
	case hr > 1e3:
		return fmt.Sprintf("%.2f kH/s", hr/1e3)
	default:
		return fmt.Sprintf("%.2f H/s", hr)
	}
}

func formatDuration(sec float64) string {
	switch {
	case math.IsInf(sec, 1):
		return "never"
	case sec > 86400:
		return fmt.Sprintf("%.2f days", sec/86400)
	case sec > 3600:
		return fmt.Sprintf("%.2f hours", sec/3600)
	case sec > 60:
		return fmt.Sprintf("%.2f minutes", sec/60)
	default:
		return fmt.Sprintf("%.2f seconds", sec)
	}
}

var twoTo256 = new(big.Int).Lsh(big.NewInt(1), 256)

// expectedHashes is the mean number of attempts to find a digest below t.
func expectedHashes(t wire.Target) float64 {
	tb := t.Big()
	if tb.Sign() == 0 {
		return math.Inf(1)
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(twoTo256), new(big.Float).SetInt(tb)).Float64()
	return f
}
