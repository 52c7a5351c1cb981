package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/crescentlabs/crescent/app/services/node/handlers"
	"github.com/crescentlabs/crescent/foundation/chain/block"
	"github.com/crescentlabs/crescent/foundation/chain/blocklog"
	"github.com/crescentlabs/crescent/foundation/chain/genesis"
	"github.com/crescentlabs/crescent/foundation/chain/state"
	"github.com/crescentlabs/crescent/foundation/events"
	"github.com/crescentlabs/crescent/foundation/logger"
	"github.com/ethereum/go-ethereum/crypto"
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

	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			APIHost         string        `conf:"default:0.0.0.0:8080"`
		}
		Node struct {
			DBPath      string `conf:"default:zblock/blocks.db"`
			GenesisFile string `conf:"default:zblock/genesis.json"`
			Producer    string
			KeyFile     string
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "copyright information here",
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
	// Chain Support

	gen, err := genesis.Load(cfg.Node.GenesisFile)
	if err != nil {
		return fmt.Errorf("unable to load genesis file: %w", err)
	}

	blockLog, err := blocklog.Open(cfg.Node.DBPath)
	if err != nil {
		return fmt.Errorf("unable to open block log: %w", err)
	}
	defer blockLog.Close()

	// The chain packages accept a function of this signature to allow the
	// application to log. These raw messages are also sent to any websocket
	// client that is connected into the system through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Send(s)
	}

	// The state value represents the chain controller. Opening it replays
	// the durable block log into working state.
	st, err := state.New(state.Config{
		Genesis:  gen,
		BlockLog: blockLog,
		Observers: state.Observers{
			AppliedBlock: func(b block.Block) {
				ev("state: block applied: number[%d] witness[%s] txs[%d]", b.Number, b.Witness, len(b.Transactions))
			},
		},
		EvHandler: ev,
	})
	if err != nil {
		return err
	}

	// =========================================================================
	// Block Production

	// When a producer account and key are configured, this node signs the
	// blocks it is scheduled for.
	if cfg.Node.Producer != "" {
		privateKey, err := crypto.LoadECDSA(cfg.Node.KeyFile)
		if err != nil {
			return fmt.Errorf("unable to load private key for producer: %w", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go runProducer(ctx, log, st, cfg.Node.Producer, privateKey)
	}

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug router started", "host", cfg.Web.DebugHost)

	debugMux := handlers.DebugMux(build, log)

	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Start API Service

	log.Infow("startup", "status", "initializing V1 API support")

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	apiMux := handlers.APIMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    st,
		Evts:     evts,
	})

	api := http.Server{
		Addr:         cfg.Web.APIHost,
		Handler:      apiMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	serverErrors := make(chan error, 1)

	go func() {
		log.Infow("startup", "status", "api router started", "host", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

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
		log.Infow("shutdown", "status", "shutdown api started")
		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop api service gracefully: %w", err)
		}
	}

	return nil
}

// runProducer signs a block every time the configured witness account
// holds the upcoming slot. The tick is deliberately shorter than the
// block interval so a slot is never skipped by scheduling jitter.
func runProducer(ctx context.Context, log *zap.SugaredLogger, st *state.State, producer string, privateKey *ecdsa.PrivateKey) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		owner, when := st.ScheduledProducer(1)
		if owner != producer || uint64(time.Now().Unix()) < when {
			continue
		}

		b, err := st.GenerateBlock(when, owner, privateKey, state.SkipNothing)
		if err != nil {
			log.Errorw("produce", "ERROR", err)
			continue
		}

		log.Infow("produce", "status", "block produced", "number", b.Number, "txs", len(b.Transactions))
	}
}
