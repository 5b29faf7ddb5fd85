package net

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gm2017/hidecoin/wire"
)

func TestByName(t *testing.T) {
	for _, name := range []string{"", "hidecoin", "testnet", "regtest", "RegTest"} {
		n, err := ByName(name)
		require.NoError(t, err, name)
		assert.NotNil(t, n.ChainParams)
	}
	_, err := ByName("vertcoin")
	assert.Error(t, err)

	require.NoError(t, SetNetwork("regtest"))
	assert.Equal(t, "regtest", ActiveNetwork.Name)
}

func TestSubsidy(t *testing.T) {
	n := RegTest()
	assert.Equal(t, uint64(50*coin), n.Subsidy(0))
	assert.Equal(t, uint64(50*coin), n.Subsidy(149))
	assert.Equal(t, uint64(25*coin), n.Subsidy(150))
	assert.Equal(t, uint64(0), n.Subsidy(150*64))

	n.HalvingInterval = 0
	assert.Equal(t, uint64(50*coin), n.Subsidy(1<<40))
}

func TestDecodeAddress(t *testing.T) {
	hash := make([]byte, 20)
	hash[0] = 1

	for _, n := range []*Network{MainNet(), RegTest()} {
		pkh, err := btcutil.NewAddressPubKeyHash(hash, n.ChainParams)
		require.NoError(t, err)
		wpkh, err := btcutil.NewAddressWitnessPubKeyHash(hash, n.ChainParams)
		require.NoError(t, err)

		for _, addr := range []string{pkh.EncodeAddress(), wpkh.EncodeAddress()} {
			a, err := n.DecodeAddress(addr)
			require.NoError(t, err, addr)
			assert.Equal(t, addr, a.EncodeAddress())
		}
	}

	mainAddr, err := btcutil.NewAddressPubKeyHash(hash, MainNet().ChainParams)
	require.NoError(t, err)
	_, err = RegTest().DecodeAddress(mainAddr.EncodeAddress())
	assert.Error(t, err)

	_, err = MainNet().DecodeAddress("not-an-address")
	assert.Error(t, err)
}

func TestGenesis(t *testing.T) {
	n := RegTest()
	g, err := n.Genesis()
	require.NoError(t, err)

	assert.Equal(t, chainhash.Hash{}, g.PrevBlock)
	assert.Equal(t, n.PowLimit(), g.Target)
	require.Len(t, g.Transactions, 1)

	cb, err := wire.DecodeTx(g.Transactions[0])
	require.NoError(t, err)
	assert.True(t, cb.IsCoinbase())

	_, err = wire.EncodeBlock(g)
	require.NoError(t, err)

	again, err := n.Genesis()
	require.NoError(t, err)
	assert.Equal(t, g, again)
}

func TestDifficultyParams(t *testing.T) {
	p := MainNet().DifficultyParams()
	assert.Equal(t, int64(2), p.MaxAdjustFactor)
	assert.Equal(t, MainNet().PowLimit(), p.PowLimit)
}
