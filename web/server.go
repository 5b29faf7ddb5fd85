// Package web serves the miner's status page, metrics and event feeds.
package web

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gm2017/hidecoin/logging"
	"github.com/gm2017/hidecoin/mempool"
	"github.com/gm2017/hidecoin/miner"
	"github.com/gm2017/hidecoin/synchronizer"
)

var log = logging.New("WEB")

const maxBodySize = 4 << 20

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
)

type Miner interface {
	Status() miner.Status
	Restart()
}

type TxPool interface {
	Add(data []byte, fee uint64) (chainhash.Hash, error)
	Len() int
	TotalFees() uint64
}

type BlockReceiver interface {
	Receive(block []byte) (chainhash.Hash, error)
}

type Server struct {
	miner  Miner
	pool   TxPool
	blocks BlockReceiver
	hub    *Hub

	// StallAfter is how long the miner may run without a finished batch
	// before the status page reports it stalled.
	StallAfter time.Duration
}

func NewServer(m Miner, pool TxPool, blocks BlockReceiver, hub *Hub) *Server {
	return &Server{
		miner:      m,
		pool:       pool,
		blocks:     blocks,
		hub:        hub,
		StallAfter: time.Minute,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("POST /restart", s.handleRestart)
	mux.HandleFunc("POST /tx", s.handleTx)
	mux.HandleFunc("POST /block", s.handleBlock)
	return mux
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.miner.Restart()
	w.WriteHeader(http.StatusNoContent)
}

type txRequest struct {
	Tx  string `json:"tx"`
	Fee uint64 `json:"fee"`
}

type blockRequest struct {
	Block string `json:"block"`
}

type hashResponse struct {
	Hash string `json:"hash"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleTx(w http.ResponseWriter, r *http.Request) {
	var req txRequest
	data, ok := decodeHexBody(w, r, &req, func() string { return req.Tx })
	if !ok {
		return
	}
	hash, err := s.pool.Add(data, req.Fee)
	switch {
	case errors.Is(err, mempool.ErrDuplicate):
		writeJSON(w, http.StatusConflict, errorResponse{err.Error()})
	case err != nil:
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})
	default:
		log.Debugf("Added tx %s with fee %d to the pool", hash, req.Fee)
		writeJSON(w, http.StatusOK, hashResponse{hash.String()})
	}
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	data, ok := decodeHexBody(w, r, &req, func() string { return req.Block })
	if !ok {
		return
	}
	hash, err := s.blocks.Receive(data)
	switch {
	case errors.Is(err, synchronizer.ErrRejected):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{err.Error()})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, errorResponse{err.Error()})
	default:
		writeJSON(w, http.StatusOK, hashResponse{hash.String()})
	}
}

func decodeHexBody(w http.ResponseWriter, r *http.Request, req interface{}, field func() string) ([]byte, bool) {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{fmt.Sprintf("invalid request: %v", err)})
		return nil, false
	}
	data, err := hex.DecodeString(field())
	if err != nil || len(data) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{"payload must be non-empty hex"})
		return nil, false
	}
	return data, true
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugf("Websocket upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	ch, ok := s.hub.subscribe()
	if !ok {
		return
	}

	// Reading is only needed to notice the peer going away.
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				s.hub.unsubscribe(ch)
				return
			}
		}
	}()

	for data := range ch {
		if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debugf("Failed to send event to %s: %v", r.RemoteAddr, err)
			s.hub.unsubscribe(ch)
			break
		}
	}
}

// ServeFeed writes the event stream as newline-delimited JSON to every
// connection accepted on l until l is closed.
func (s *Server) ServeFeed(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.feed(conn)
	}
}

func (s *Server) feed(conn net.Conn) {
	defer conn.Close()
	ch, ok := s.hub.subscribe()
	if !ok {
		return
	}
	log.Debugf("Event feed client %s connected", conn.RemoteAddr())

	go func() {
		// Any read error, including EOF, means the client left.
		_, _ = io.Copy(io.Discard, conn)
		s.hub.unsubscribe(ch)
	}()

	bw := bufio.NewWriter(conn)
	for data := range ch {
		_, _ = bw.Write(data)
		_ = bw.WriteByte('\n')
		if err := bw.Flush(); err != nil {
			s.hub.unsubscribe(ch)
			break
		}
	}
}
