// Package miner runs the block production loop: build a template, search
// for a nonce, submit the solved block, repeat.
package miner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/looplab/fsm"

	"github.com/gm2017/hidecoin/logging"
	"github.com/gm2017/hidecoin/pow"
	"github.com/gm2017/hidecoin/wire"
	"github.com/gm2017/hidecoin/work"
)

var log = logging.New("MNR")

var (
	ErrInvalidAddress = errors.New("invalid miner address")
	ErrAlreadyRunning = errors.New("miner is already running")
)

// AcceptancePipeline takes solved blocks into the local chain. Submit calls
// onAccept once if and only if the block is accepted. Broadcast relays an
// accepted block to peers without blocking.
type AcceptancePipeline interface {
	Submit(hash chainhash.Hash, block []byte, onAccept func())
	Broadcast(hash chainhash.Hash, block []byte)
}

// TemplateSource builds candidate blocks.
type TemplateSource interface {
	Build(addresses []btcutil.Address) (*work.Template, error)
}

// AddressDecoder turns a configured payout address into a btcutil.Address.
type AddressDecoder func(addr string) (btcutil.Address, error)

// Orchestrator states.
const (
	StateIdle       = "idle"
	StateBuilding   = "building_template"
	StateSearching  = "searching"
	StateSubmitting = "submitting"
	StateRestarting = "restarting"
)

const (
	eventBuild  = "build"
	eventSearch = "search"
	eventFound  = "found"
	eventAbort  = "abort"
	eventStop   = "stop"
)

type Config struct {
	BatchSize int

	// RestartDelay is the pause between an aborted search and the next
	// template build.
	RestartDelay time.Duration

	// RetryDelay is the pause after a template could not be built.
	RetryDelay time.Duration

	// AcceptWait bounds how long the next cycle waits for a found block
	// to be accepted before building on the old tip. Zero starts the next
	// cycle as soon as Submit returns, without waiting on acceptance or
	// pool pruning; a later acceptance then triggers Restart.
	AcceptWait time.Duration

	ReportInterval   time.Duration
	RefreshTimestamp bool
}

func DefaultConfig() Config {
	return Config{
		BatchSize:        DefaultBatchSize,
		RestartDelay:     time.Millisecond,
		RetryDelay:       time.Second,
		AcceptWait:       2 * time.Second,
		ReportInterval:   10 * time.Second,
		RefreshTimestamp: true,
	}
}

type Miner struct {
	cfg      Config
	builder  TemplateSource
	pool     work.PendingPool
	pipeline AcceptancePipeline
	hasher   pow.Hasher
	clock    work.Clock
	decode   AddressDecoder
	bus      evbus.Bus

	session *Session
	fsm     *fsm.FSM
	running atomic.Bool

	addrMtx   sync.RWMutex
	addresses []btcutil.Address

	blocksFound    atomic.Uint64
	blocksAccepted atomic.Uint64
	hashrate       atomic.Uint64
}

func New(cfg Config, builder TemplateSource, pool work.PendingPool, pipeline AcceptancePipeline,
	hasher pow.Hasher, clock work.Clock, decode AddressDecoder, bus evbus.Bus) *Miner {

	initPrometheusMetrics()

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if bus == nil {
		bus = evbus.New()
	}

	m := &Miner{
		cfg:      cfg,
		builder:  builder,
		pool:     pool,
		pipeline: pipeline,
		hasher:   hasher,
		clock:    clock,
		decode:   decode,
		bus:      bus,
		session:  NewSession(),
	}
	m.fsm = newFSM()
	return m
}

func newFSM() *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventBuild, Src: []string{StateIdle, StateSubmitting, StateRestarting}, Dst: StateBuilding},
			{Name: eventSearch, Src: []string{StateBuilding}, Dst: StateSearching},
			{Name: eventFound, Src: []string{StateSearching}, Dst: StateSubmitting},
			{Name: eventAbort, Src: []string{StateBuilding, StateSearching}, Dst: StateRestarting},
			{Name: eventStop, Src: []string{StateBuilding, StateSearching, StateSubmitting, StateRestarting}, Dst: StateIdle},
		},
		fsm.Callbacks{},
	)
}

func (m *Miner) transition(event string) {
	// Transitions run on their own context so a cancelled run can still
	// move the machine back to idle.
	if err := m.fsm.Event(context.Background(), event); err != nil {
		var noTransition fsm.NoTransitionError
		if !errors.As(err, &noTransition) {
			log.Debugf("State transition %s from %s failed: %v", event, m.fsm.Current(), err)
		}
	}
}

// State is the orchestrator's current state.
func (m *Miner) State() string {
	return m.fsm.Current()
}

func (m *Miner) Session() *Session {
	return m.session
}

func (m *Miner) Bus() evbus.Bus {
	return m.bus
}

// Addresses returns the configured payout addresses.
func (m *Miner) Addresses() []btcutil.Address {
	m.addrMtx.RLock()
	defer m.addrMtx.RUnlock()
	return append([]btcutil.Address(nil), m.addresses...)
}

// SetAddresses validates and replaces the payout addresses.
func (m *Miner) SetAddresses(addresses []string) error {
	decoded := make([]btcutil.Address, 0, len(addresses))
	for _, a := range addresses {
		addr, err := m.decode(a)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		decoded = append(decoded, addr)
	}
	m.addrMtx.Lock()
	m.addresses = decoded
	m.addrMtx.Unlock()
	return nil
}

// Run mines until ctx is done. Addresses replace the configured payout
// addresses; with none given the previous set is reused. It fails straight
// away when there is no address to pay to.
func (m *Miner) Run(ctx context.Context, addresses ...string) error {
	if len(addresses) > 0 {
		if err := m.SetAddresses(addresses); err != nil {
			return err
		}
	}
	if len(m.Addresses()) == 0 {
		return work.ErrNoMinerAddress
	}
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer m.running.Store(false)
	defer m.transition(eventStop)

	log.Infof("Mining session %s started with %d payout addresses", m.session.ID, len(m.Addresses()))

	reportCtx, cancelReport := context.WithCancel(ctx)
	defer cancelReport()
	go m.report(reportCtx)

	for {
		if err := m.cycle(ctx); err != nil {
			if errors.Is(err, work.ErrNoMinerAddress) {
				return err
			}
			if ctx.Err() != nil {
				log.Infof("Mining session %s stopped", m.session.ID)
				return ctx.Err()
			}
			log.Errorf("Mining cycle failed: %v", err)
			m.transition(eventAbort)
			if !sleep(ctx, m.cfg.RetryDelay) {
				return ctx.Err()
			}
		}
	}
}

// Restart abandons the current search at the next attempt and rebuilds the
// template. Without a running cycle it does nothing.
func (m *Miner) Restart() {
	if m.session.RequestRestart() {
		log.Debugf("Restart requested")
	}
}

// Update patches the candidate being mined. It returns false when nothing
// is being mined.
func (m *Miner) Update(u wire.HeaderUpdate) bool {
	return m.session.Apply(u)
}

func (m *Miner) cycle(ctx context.Context) error {
	m.transition(eventBuild)
	m.session.begin()
	defer m.session.end()

	start := time.Now()
	tmpl, err := m.builder.Build(m.Addresses())
	if err != nil {
		return err
	}
	enc, err := wire.EncodeBlock(tmpl.Block)
	if err != nil {
		return fmt.Errorf("declining to mine height %d: %w", tmpl.Height, err)
	}
	prometheusBuildTemplate.Observe(time.Since(start).Seconds())

	m.session.load(tmpl, enc)
	log.Infof("There are %d txs in block %d, reward %d to %s, target %s...",
		len(tmpl.Block.Transactions), tmpl.Height, tmpl.Reward, tmpl.PayTo.EncodeAddress(), tmpl.Block.Target.Prefix(8))

	m.transition(eventSearch)
	res := Search(ctx, m.session, m.hasher, m.cfg.BatchSize, m.publishProgress)
	prometheusHashes.Add(float64(res.Attempts))
	m.session.end()

	switch res.State {
	case Found:
		m.transition(eventFound)
		m.submit(ctx, tmpl, res)
		return nil

	case Aborted:
		m.transition(eventAbort)
		m.session.clearRestart()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		prometheusRestarts.Inc()
		log.Debugf("Search for height %d abandoned after %d hashes", tmpl.Height, res.Attempts)
		if !sleep(ctx, m.cfg.RestartDelay) {
			return ctx.Err()
		}
	}
	return nil
}

func (m *Miner) submit(ctx context.Context, tmpl *work.Template, res SearchResult) {
	m.blocksFound.Add(1)
	prometheusBlocksFound.Inc()
	log.Successf("!!! BLOCK FOUND !!! height %d hash %s nonce %d", tmpl.Height, res.Hash, res.Nonce)
	m.publishBlockFound(res.Block, res.Hash)

	accepted := make(chan struct{})
	var gaveUp atomic.Bool
	onAccept := func() {
		m.pipeline.Broadcast(res.Hash, res.Block)

		deleted := 0
		for _, h := range tmpl.PoolTxs {
			if m.pool.Delete(h) {
				deleted++
			}
		}
		log.Infof("Free txs used: %d", deleted)
		if deleted < len(tmpl.PoolTxs) {
			log.Infof("%d txs of block %s were already gone from the pool", len(tmpl.PoolTxs)-deleted, res.Hash)
		}
		prometheusTxsUsed.Add(float64(deleted))
		prometheusBlocksAccepted.Inc()
		m.blocksAccepted.Add(1)
		close(accepted)

		if gaveUp.Load() {
			// The next cycle already started on the old tip.
			m.Restart()
		}
	}
	m.pipeline.Submit(res.Hash, res.Block, onAccept)

	if m.cfg.AcceptWait <= 0 {
		gaveUp.Store(true)
		return
	}
	timer := time.NewTimer(m.cfg.AcceptWait)
	defer timer.Stop()
	select {
	case <-accepted:
	case <-timer.C:
		gaveUp.Store(true)
		log.Warnf("Block %s not accepted within %v, mining on", res.Hash, m.cfg.AcceptWait)
	case <-ctx.Done():
		gaveUp.Store(true)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
