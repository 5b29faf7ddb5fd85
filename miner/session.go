package miner

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/gm2017/hidecoin/wire"
	"github.com/gm2017/hidecoin/work"
)

// Session is the state of one miner: the candidate being hashed, the
// restart flag and the hash counter read by the reporter.
//
// mtx guards the candidate and is held for one batch of hashes at a time,
// so header updates land between batches and never half-applied.
type Session struct {
	ID uuid.UUID

	mtx     sync.Mutex
	tmpl    *work.Template
	block   *wire.MsgBlock
	encoded *wire.EncodedBlock

	active  atomic.Bool
	restart atomic.Bool
	hashes  atomic.Uint64
}

func NewSession() *Session {
	return &Session{ID: uuid.New()}
}

// begin marks a cycle as running so that restart requests are honoured.
// A restart left over from the previous cycle is dropped.
func (s *Session) begin() {
	s.restart.Store(false)
	s.active.Store(true)
}

// load installs a freshly built candidate.
func (s *Session) load(tmpl *work.Template, enc *wire.EncodedBlock) {
	s.mtx.Lock()
	s.tmpl = tmpl
	s.block = tmpl.Block
	s.encoded = enc
	s.mtx.Unlock()
}

// end drops the candidate. Updates after this are no-ops.
func (s *Session) end() {
	s.mtx.Lock()
	s.tmpl = nil
	s.block = nil
	s.encoded = nil
	s.mtx.Unlock()
	s.active.Store(false)
}

// Active reports whether a cycle is building or searching.
func (s *Session) Active() bool {
	return s.active.Load()
}

// RequestRestart sets the restart flag if a cycle is running. It returns
// false when there was nothing to restart.
func (s *Session) RequestRestart() bool {
	if !s.active.Load() {
		return false
	}
	s.restart.Store(true)
	return true
}

func (s *Session) restartRequested() bool {
	return s.restart.Load()
}

func (s *Session) clearRestart() {
	s.restart.Store(false)
}

// Apply patches the in-flight candidate, structured and encoded form
// together, and resets the nonce. It returns false without a candidate.
func (s *Session) Apply(u wire.HeaderUpdate) bool {
	if u.Empty() {
		return false
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.encoded == nil {
		return false
	}
	u.Apply(&s.block.BlockHeader)
	s.encoded.Patch(u)
	return true
}

// TakeHashes returns the attempts made since the last call and resets the
// counter.
func (s *Session) TakeHashes() uint64 {
	return s.hashes.Swap(0)
}

// Candidate describes the block being mined.
type Candidate struct {
	Height    uint64
	Nonce     uint64
	Timestamp uint64
	Target    wire.Target
	TxCount   int
	Reward    uint64
	PayTo     string
}

// Candidate returns a copy of the in-flight candidate's header data.
func (s *Session) Candidate() (Candidate, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.block == nil {
		return Candidate{}, false
	}
	return Candidate{
		Height:    s.tmpl.Height,
		Nonce:     s.block.Nonce,
		Timestamp: s.block.Timestamp,
		Target:    s.block.Target,
		TxCount:   len(s.block.Transactions),
		Reward:    s.tmpl.Reward,
		PayTo:     s.tmpl.PayTo.EncodeAddress(),
	}, true
}
