package work

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"

	"github.com/gm2017/hidecoin/wire"
)

// CreateCoinbaseTx builds the coinbase paying reward to payTo and returns
// its encoding and hash.
func CreateCoinbaseTx(payTo btcutil.Address, reward uint64, timestamp uint64) ([]byte, chainhash.Hash, error) {
	script, err := txscript.PayToAddrScript(payTo)
	if err != nil {
		return nil, chainhash.Hash{}, fmt.Errorf("could not build payout script for %s: %w", payTo, err)
	}

	tx := &wire.MsgTx{
		Time: timestamp,
		Outs: []wire.TxOut{{Value: reward, Script: script}},
	}
	return wire.EncodeTx(tx)
}
