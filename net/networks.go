package net

import (
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"

	"github.com/gm2017/hidecoin/difficulty"
	"github.com/gm2017/hidecoin/pow"
	"github.com/gm2017/hidecoin/wire"
)

// Network describes the consensus parameters the miner needs.
type Network struct {
	Name string

	// ChainParams is used only to decode payout addresses.
	ChainParams *chaincfg.Params

	PowAlgorithm     string
	PowLimitBits     uint32
	TargetSpacing    time.Duration
	DifficultyWindow time.Duration
	MaxAdjustFactor  int64

	InitialSubsidy  uint64
	HalvingInterval uint64

	GenesisTimestamp uint64
	GenesisMessage   string

	DefaultPort int
}

var ActiveNetwork *Network

// SetNetwork selects the active network by name.
func SetNetwork(name string) error {
	n, err := ByName(name)
	if err != nil {
		return err
	}
	ActiveNetwork = n
	return nil
}

func ByName(name string) (*Network, error) {
	switch strings.ToLower(name) {
	case "", "hidecoin", "mainnet":
		return MainNet(), nil
	case "testnet":
		return TestNet(), nil
	case "regtest":
		return RegTest(), nil
	}
	return nil, fmt.Errorf("%s is currently not supported, see the README for supported networks", name)
}

func (n *Network) PowLimit() wire.Target {
	t, err := difficulty.CompactToTarget(n.PowLimitBits)
	if err != nil {
		panic(fmt.Sprintf("invalid pow limit bits %08x for %s", n.PowLimitBits, n.Name))
	}
	return t
}

func (n *Network) DifficultyParams() difficulty.Params {
	return difficulty.Params{
		PowLimit:        n.PowLimit(),
		TargetSpacing:   n.TargetSpacing,
		WindowSpan:      n.DifficultyWindow,
		MaxAdjustFactor: n.MaxAdjustFactor,
		MinHeight:       2,
	}
}

// Subsidy is the block reward at height before fees. It halves every
// HalvingInterval blocks and reaches zero after 64 halvings.
func (n *Network) Subsidy(height uint64) uint64 {
	if n.HalvingInterval == 0 {
		return n.InitialSubsidy
	}
	halvings := height / n.HalvingInterval
	if halvings >= 64 {
		return 0
	}
	return n.InitialSubsidy >> halvings
}

// DecodeAddress parses a payout address and checks it belongs to this network.
func (n *Network) DecodeAddress(addr string) (btcutil.Address, error) {
	a, err := btcutil.DecodeAddress(addr, n.ChainParams)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if !a.IsForNet(n.ChainParams) {
		return nil, fmt.Errorf("address %q is not for network %s", addr, n.Name)
	}
	return a, nil
}

// Genesis builds the genesis block. Its single coinbase pays nothing and
// carries the genesis message as the output script.
func (n *Network) Genesis() (*wire.MsgBlock, error) {
	script, err := txscript.NullDataScript([]byte(n.GenesisMessage))
	if err != nil {
		return nil, err
	}
	cb := &wire.MsgTx{
		Time: n.GenesisTimestamp,
		Outs: []wire.TxOut{{Value: 0, Script: script}},
	}
	data, hash, err := wire.EncodeTx(cb)
	if err != nil {
		return nil, err
	}
	return &wire.MsgBlock{
		BlockHeader: wire.BlockHeader{
			Version:   wire.BlockVersion,
			Timestamp: n.GenesisTimestamp,
			Target:    n.PowLimit(),
		},
		Transactions: [][]byte{data},
		TxHashes:     []chainhash.Hash{hash},
	}, nil
}

// Hasher builds the proof of work function for this network.
func (n *Network) Hasher(datFile string) (pow.Hasher, error) {
	return pow.New(n.PowAlgorithm, datFile)
}
