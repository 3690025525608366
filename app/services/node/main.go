package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/merklechain/app/services/node/handlers"
	"github.com/ardanlabs/merklechain/business/web/mid"
	"github.com/ardanlabs/merklechain/foundation/blockchain/chain"
	"github.com/ardanlabs/merklechain/foundation/blockchain/genesis"
	"github.com/ardanlabs/merklechain/foundation/blockchain/metrics"
	"github.com/ardanlabs/merklechain/foundation/blockchain/worker"
	"github.com/ardanlabs/merklechain/foundation/events"
	"github.com/ardanlabs/merklechain/foundation/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	// This is all the configuration for the application and the default values.
	// Configuration values will be passed through the application as individual
	// values.
	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:120s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
		}
		Chain struct {
			GenesisPath    string   `conf:"help:optional genesis json file, overrides the values below"`
			Difficulty     uint     `conf:"default:4"`
			MaxNonce       uint64   `conf:"default:0,help:0 searches the full nonce space"`
			Workers        int      `conf:"default:1"`
			HashStrategy   string   `conf:"default:sha256"`
			SelectStrategy string   `conf:"default:fifo"`
			Transactions   []string `conf:"default:First Transaction"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "merkle chain mining node",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Genesis Support

	gen := genesis.Default()
	gen.Difficulty = cfg.Chain.Difficulty
	gen.MaxNonce = cfg.Chain.MaxNonce
	gen.Workers = cfg.Chain.Workers
	gen.HashStrategy = cfg.Chain.HashStrategy
	gen.Transactions = cfg.Chain.Transactions

	if cfg.Chain.GenesisPath != "" {
		gen, err = genesis.Load(cfg.Chain.GenesisPath)
		if err != nil {
			return fmt.Errorf("loading genesis: %w", err)
		}
	}

	// =========================================================================
	// Metrics Support

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// =========================================================================
	// Blockchain Support

	// The blockchain packages accept a function of this signature to allow the
	// application to log. These raw messages are also sent to any websocket
	// client that is connected into the system through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Send("%s", s)
	}

	// The chain value manages the blocks and the mempool and provides an API
	// for application support.
	ch, err := chain.New(chain.Config{
		Genesis:        gen,
		SelectStrategy: cfg.Chain.SelectStrategy,
		Metrics:        metrics.New(reg),
		EvHandler:      ev,
	})
	if err != nil {
		return err
	}
	defer ch.Shutdown()

	// The genesis block must exist before any other block can be mined.
	// Mining honors the shutdown signal so a slow genesis can be abandoned.
	genCtx, genCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	genBlock, err := ch.Genesis(genCtx)
	genCancel()
	if err != nil {
		return fmt.Errorf("mining genesis: %w", err)
	}
	log.Infow("startup", "status", "genesis mined", "hash", genBlock.Hash, "nonce", genBlock.Header.Nonce)

	// The worker package implements background mining of the mempool. The
	// worker will register itself with the chain.
	worker.Run(ch, ev)

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	// Construct the mux for the debug calls.
	debugMux := handlers.DebugMux(build, log, ch, reg)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	// Construct the mux for the public API calls.
	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		Chain:    ch,
		Evts:     evts,
		Metrics:  mid.NewHTTPMetrics(reg),
	})

	// Construct a server to service the requests against the mux.
	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}
