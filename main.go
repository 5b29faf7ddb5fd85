package main

import (
	"context"
	"errors"
	"fmt"
	stdnet "net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/jessevdk/go-flags"
	"github.com/soheilhy/cmux"

	"github.com/gm2017/hidecoin/chainstore"
	"github.com/gm2017/hidecoin/clock"
	"github.com/gm2017/hidecoin/config"
	"github.com/gm2017/hidecoin/difficulty"
	"github.com/gm2017/hidecoin/logging"
	"github.com/gm2017/hidecoin/mempool"
	"github.com/gm2017/hidecoin/miner"
	"github.com/gm2017/hidecoin/net"
	"github.com/gm2017/hidecoin/pow"
	"github.com/gm2017/hidecoin/rpc"
	"github.com/gm2017/hidecoin/synchronizer"
	"github.com/gm2017/hidecoin/web"
	"github.com/gm2017/hidecoin/wire"
	"github.com/gm2017/hidecoin/work"
)

/* -------------------------------------------------------------------- */
/*  Helpers                                                             */
/* -------------------------------------------------------------------- */

func openChain(cfg *config.Config, network *net.Network, hasher pow.Hasher) (*chainstore.Store, error) {
	store, err := chainstore.Open(filepath.Join(cfg.DataDir, network.Name, "chain"))
	if err != nil {
		return nil, err
	}

	genesis, err := network.Genesis()
	if err != nil {
		store.Close()
		return nil, err
	}
	enc, err := wire.EncodeBlock(genesis)
	if err != nil {
		store.Close()
		return nil, err
	}
	hash, _ := enc.Hash(hasher)
	if err := store.Init(hash, enc.Bytes()); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func logStats(ctx context.Context, store *chainstore.Store, pool *mempool.Pool, diff *difficulty.Engine) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		height, err := store.Height()
		if err != nil {
			logging.Errorf("MAIN: Failed to read chain height: %v", err)
			continue
		}
		tip, err := store.BlockAt(height)
		if err != nil {
			logging.Errorf("MAIN: Failed to read tip: %v", err)
			continue
		}
		hdr, err := wire.DecodeHeader(tip.Data)
		if err != nil {
			logging.Errorf("MAIN: Failed to decode tip: %v", err)
			continue
		}
		logging.Infof("Chain: height %d, tip %s, difficulty %.4f  |  Pool: %d txs, %d in fees",
			height, tip.Hash, diff.Difficulty(hdr.Target), pool.Len(), pool.TotalFees())
	}
}

/* -------------------------------------------------------------------- */
/*  main                                                                */
/* -------------------------------------------------------------------- */

func main() {
	/* ----- configuration & logging ----------------------------------- */
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			os.Exit(0)
		}
		logging.Fatalf("MAIN: %v", err)
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	logging.SetLogLevel(level)
	if cfg.LogFile != "" {
		if err := logging.SetLogFile(cfg.LogFile); err != nil {
			logging.Fatalf("MAIN: Unable to open log file %s: %v", cfg.LogFile, err)
		}
	}
	defer logging.Close()

	logging.Infof("hidecoin miner starting up")

	if err := net.SetNetwork(cfg.Network); err != nil {
		logging.Fatalf("MAIN: %v", err)
	}
	network := net.ActiveNetwork
	if cfg.PowAlgorithm != "" {
		network.PowAlgorithm = cfg.PowAlgorithm
	}

	hasher, err := network.Hasher(cfg.VerthashDat)
	if err != nil {
		logging.Fatalf("MAIN: Unable to set up %s hashing: %v", network.PowAlgorithm, err)
	}
	if c, ok := hasher.(interface{ Close() }); ok {
		defer c.Close()
	}
	logging.Infof("MAIN: Mining %s with %s", network.Name, hasher.Name())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	/* ----- chain, pool, clock ---------------------------------------- */
	store, err := openChain(cfg, network, hasher)
	if err != nil {
		logging.Fatalf("MAIN: Failed to open chain: %v", err)
	}
	defer store.Close()

	pool := mempool.New(cfg.MaxPoolSize)

	var clk work.Clock = clock.System{}
	if cfg.NTPServer != "" {
		ntp := clock.NewNTP(cfg.NTPServer, 10*time.Minute)
		if err := ntp.Sync(); err != nil {
			logging.Warnf("MAIN: NTP sync with %s failed, using the local clock for now: %v", cfg.NTPServer, err)
		}
		go ntp.Run(ctx)
		clk = ntp
	}

	/* ----- acceptance pipeline --------------------------------------- */
	peers := make([]synchronizer.Peer, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		peers = append(peers, rpc.NewClient(p.URL, p.User, p.Pass, nil))
	}
	syncer := synchronizer.New(store, hasher, peers, 0)
	defer syncer.Wait()

	/* ----- miner ----------------------------------------------------- */
	diff := difficulty.New(network.DifficultyParams())
	builder := work.NewTemplateBuilder(store, pool, network.Subsidy, clk, diff)
	bus := evbus.New()
	m := miner.New(miner.Config{
		BatchSize:        cfg.Miner.BatchSize,
		RestartDelay:     cfg.Miner.RestartDelay,
		RetryDelay:       cfg.Miner.RetryDelay,
		AcceptWait:       cfg.Miner.AcceptWait,
		ReportInterval:   cfg.Miner.ReportInterval,
		RefreshTimestamp: cfg.Miner.RefreshTimestamp,
	}, builder, pool, syncer, hasher, clk, network.DecodeAddress, bus)

	syncer.OnTip(func(height uint64, hash chainhash.Hash) {
		m.Restart()
	})

	/* =================================================================
	   Single TCP listener, multiplexed via cmux
	   ================================================================= */
	baseListener, err := stdnet.Listen("tcp", cfg.Listen)
	if err != nil {
		logging.Fatalf("MAIN: Unable to listen on %s: %v", cfg.Listen, err)
	}

	mux := cmux.New(baseListener)
	httpL := mux.Match(cmux.HTTP1Fast()) // status, metrics, websocket events
	feedL := mux.Match(cmux.Any())       // raw line-delimited event feed

	hub := web.NewHub(bus)
	server := web.NewServer(m, pool, syncer, hub)
	httpSrv := &http.Server{
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := hub.Run(ctx); err != nil {
			logging.Errorf("MAIN: event hub stopped: %v", err)
		}
	}()
	go func() { _ = httpSrv.Serve(httpL) }()
	go func() { _ = server.ServeFeed(feedL) }()
	go func() {
		if err := mux.Serve(); err != nil && !errors.Is(err, stdnet.ErrClosed) {
			logging.Errorf("MAIN: cmux error: %v", err)
		}
	}()
	go logStats(ctx, store, pool, diff)

	logging.Infof("MAIN: Startup complete, web UI and event feed on %s. Press Ctrl+C to exit.", cfg.Listen)

	/* ----- mine until interrupted ------------------------------------ */
	err = m.Run(ctx, cfg.MinerAddresses...)
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Errorf("MAIN: Miner stopped: %v", err)
	}

	logging.Warnf("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	_ = baseListener.Close()
}
