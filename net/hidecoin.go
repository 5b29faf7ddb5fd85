package net

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	btcwire "github.com/btcsuite/btcd/wire"
)

const coin = 100000000

var mainNetChainParams = func() chaincfg.Params {
	params := chaincfg.MainNetParams
	params.Name = "hidecoin"
	params.Net = btcwire.BitcoinNet(0x45444948)
	params.PubKeyHashAddrID = 0x28
	params.ScriptHashAddrID = 0x64
	params.PrivateKeyID = 0xa8
	params.Bech32HRPSegwit = "hide"
	params.WitnessPubKeyHashAddrID = 0x06
	params.WitnessScriptHashAddrID = 0x0A
	return params
}()

func init() {
	// Bech32 addresses only decode for registered prefixes.
	if err := chaincfg.Register(&mainNetChainParams); err != nil {
		panic(err)
	}
}

func MainNet() *Network {
	return &Network{
		Name:             "hidecoin",
		ChainParams:      &mainNetChainParams,
		PowAlgorithm:     "sha256d",
		PowLimitBits:     0x1f00ffff,
		TargetSpacing:    time.Minute,
		DifficultyWindow: time.Hour,
		MaxAdjustFactor:  2,
		InitialSubsidy:   50 * coin,
		HalvingInterval:  1051200,
		GenesisTimestamp: 1504000000,
		GenesisMessage:   "hidecoin genesis",
		DefaultPort:      7438,
	}
}

func TestNet() *Network {
	n := MainNet()
	n.Name = "testnet"
	n.ChainParams = &chaincfg.TestNet3Params
	n.GenesisMessage = "hidecoin testnet genesis"
	n.DefaultPort = 17438
	return n
}

// RegTest has the easiest possible target so tests and local setups can
// find blocks instantly.
func RegTest() *Network {
	n := MainNet()
	n.Name = "regtest"
	n.ChainParams = &chaincfg.RegressionNetParams
	n.PowLimitBits = 0x207fffff
	n.HalvingInterval = 150
	n.GenesisMessage = "hidecoin regtest genesis"
	n.DefaultPort = 27438
	return n
}
