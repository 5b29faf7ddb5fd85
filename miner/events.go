package miner

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Event bus topics.
//
// TopicProcessing handlers take a Progress. TopicBlockFound handlers take
// the encoded block and its hash, and run before the block is submitted.
const (
	TopicProcessing = "miner:processing"
	TopicBlockFound = "miner:blockFound"
)

// Progress is published once per batch.
type Progress struct {
	SessionID string
	Height    uint64
	Nonce     uint64
}

func (m *Miner) publishProgress() {
	if !m.bus.HasCallback(TopicProcessing) {
		return
	}
	p := Progress{SessionID: m.session.ID.String()}
	if c, ok := m.session.Candidate(); ok {
		p.Height = c.Height
		p.Nonce = c.Nonce
	}
	m.bus.Publish(TopicProcessing, p)
}

func (m *Miner) publishBlockFound(block []byte, hash chainhash.Hash) {
	m.bus.Publish(TopicBlockFound, block, hash)
}
