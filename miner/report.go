package miner

import (
	"context"
	"math"
	"time"

	"github.com/gm2017/hidecoin/wire"
)

// Status is a point-in-time view of the miner.
type Status struct {
	SessionID      string     `json:"session_id"`
	State          string     `json:"state"`
	Running        bool       `json:"running"`
	Hashrate       float64    `json:"hashrate"`
	BlocksFound    uint64     `json:"blocks_found"`
	BlocksAccepted uint64     `json:"blocks_accepted"`
	Addresses      []string   `json:"addresses"`
	Candidate      *Candidate `json:"candidate,omitempty"`
}

func (m *Miner) Status() Status {
	st := Status{
		SessionID:      m.session.ID.String(),
		State:          m.State(),
		Running:        m.running.Load(),
		Hashrate:       math.Float64frombits(m.hashrate.Load()),
		BlocksFound:    m.blocksFound.Load(),
		BlocksAccepted: m.blocksAccepted.Load(),
	}
	for _, a := range m.Addresses() {
		st.Addresses = append(st.Addresses, a.EncodeAddress())
	}
	if c, ok := m.session.Candidate(); ok {
		st.Candidate = &c
	}
	return st
}

// report refreshes the candidate timestamp and logs the hashrate every
// ReportInterval.
func (m *Miner) report(ctx context.Context) {
	interval := m.cfg.ReportInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.tick(now.Sub(last))
			last = now
		}
	}
}

func (m *Miner) tick(elapsed time.Duration) {
	if m.cfg.RefreshTimestamp && m.clock != nil {
		ts := uint64(m.clock.Now().Unix())
		m.Update(wire.HeaderUpdate{Timestamp: &ts})
	}

	n := m.session.TakeHashes()
	var rate float64
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(n) / secs
	}
	m.hashrate.Store(math.Float64bits(rate))
	prometheusHashrate.Set(rate)

	if n == 0 {
		return
	}
	c, ok := m.session.Candidate()
	if !ok {
		log.Infof("Hashrate %s", formatHashrate(rate))
		return
	}
	eta := math.Inf(1)
	if rate > 0 {
		eta = expectedHashes(c.Target) / rate
	}
	log.Infof("Hashrate %s, height %d, target %s, expected block in %s",
		formatHashrate(rate), c.Height, c.Target.Prefix(16), formatDuration(eta))
}
