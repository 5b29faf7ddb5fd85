package web

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gm2017/hidecoin/miner"
)

// status is the JSON document served at "/".
type status struct {
	Miner        miner.Status `json:"miner"`
	PoolSize     int          `json:"pool_size"`
	PoolFees     uint64       `json:"pool_fees"`
	GoRoutines   int          `json:"go_routines"`
	LastProgress *time.Time   `json:"last_progress,omitempty"`
	Stalled      bool         `json:"stalled"`
}

func (s *Server) status() status {
	st := status{
		Miner:      s.miner.Status(),
		PoolSize:   s.pool.Len(),
		PoolFees:   s.pool.TotalFees(),
		GoRoutines: runtime.NumGoroutine(),
	}
	if last := s.hub.LastProgress(); !last.IsZero() {
		st.LastProgress = &last
		st.Stalled = st.Miner.State == miner.StateSearching && time.Since(last) > s.StallAfter
	}
	return st
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}
