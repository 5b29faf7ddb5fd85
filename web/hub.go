package web

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"sync/atomic"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/gm2017/hidecoin/miner"
)

const (
	clientBuffer     = 32
	pingInterval     = 20 * time.Second
	progressInterval = time.Second
)

// Event is one line of the event feed.
type Event struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Progress  *miner.Progress `json:"progress,omitempty"`
	Hash      string          `json:"hash,omitempty"`
	Block     string          `json:"block,omitempty"`
}

// Hub fans miner events out to feed clients. It is the only subscriber the
// web layer puts on the miner's bus.
type Hub struct {
	bus evbus.Bus

	events  chan Event
	newCh   chan chan []byte
	deadCh  chan chan []byte
	done    chan struct{}
	clients atomic.Int32

	lastProgress atomic.Int64
	lastSent     time.Time
}

func NewHub(bus evbus.Bus) *Hub {
	return &Hub{
		bus:    bus,
		events: make(chan Event, 64),
		newCh:  make(chan chan []byte, 10),
		deadCh: make(chan chan []byte, 10),
		done:   make(chan struct{}),
	}
}

func (h *Hub) onProgress(p miner.Progress) {
	now := time.Now()
	h.lastProgress.Store(now.UnixNano())
	if h.clients.Load() == 0 || now.Sub(h.lastSent) < progressInterval {
		return
	}
	h.lastSent = now
	h.emit(Event{Type: "processing", Timestamp: now, Progress: &p})
}

func (h *Hub) onBlockFound(block []byte, hash chainhash.Hash) {
	h.emit(Event{
		Type:      "blockFound",
		Timestamp: time.Now(),
		Hash:      hash.String(),
		Block:     hex.EncodeToString(block),
	})
}

func (h *Hub) emit(e Event) {
	select {
	case h.events <- e:
	default:
		log.Debugf("Event feed backlogged, dropping %s event", e.Type)
	}
}

// LastProgress is the time of the most recent search batch, zero if none.
func (h *Hub) LastProgress() time.Time {
	ns := h.lastProgress.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Run subscribes to the bus and delivers events until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	if err := h.bus.Subscribe(miner.TopicProcessing, h.onProgress); err != nil {
		return err
	}
	defer h.bus.Unsubscribe(miner.TopicProcessing, h.onProgress)
	if err := h.bus.Subscribe(miner.TopicBlockFound, h.onBlockFound); err != nil {
		return err
	}
	defer h.bus.Unsubscribe(miner.TopicBlockFound, h.onBlockFound)

	clientChannels := make(map[chan []byte]struct{})
	pingTimer := time.NewTicker(pingInterval)
	defer pingTimer.Stop()

	defer func() {
		close(h.done)
		for ch := range clientChannels {
			close(ch)
		}
	}()

	send := func(e Event) {
		data, err := json.Marshal(e)
		if err != nil {
			log.Errorf("Error marshaling %s event: %v", e.Type, err)
			return
		}
		for ch := range clientChannels {
			select {
			case ch <- data:
			default:
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ch := <-h.newCh:
			clientChannels[ch] = struct{}{}
			h.clients.Store(int32(len(clientChannels)))

		case ch := <-h.deadCh:
			if _, ok := clientChannels[ch]; ok {
				delete(clientChannels, ch)
				close(ch)
				h.clients.Store(int32(len(clientChannels)))
			}

		case <-pingTimer.C:
			if len(clientChannels) > 0 {
				send(Event{Type: "PING", Timestamp: time.Now()})
			}

		case e := <-h.events:
			send(e)
		}
	}
}

// subscribe registers a feed client. The channel is closed when the client
// is dropped or the hub stops.
func (h *Hub) subscribe() (chan []byte, bool) {
	ch := make(chan []byte, clientBuffer)
	select {
	case h.newCh <- ch:
		return ch, true
	case <-h.done:
		return nil, false
	}
}

func (h *Hub) unsubscribe(ch chan []byte) {
	select {
	case h.deadCh <- ch:
	case <-h.done:
	}
}
