// Command flowshaperd runs the traffic shaper as a daemon: items arrive
// over the HTTP ingest endpoint, are queued per priority, and are released
// under the configured scheduling policy and rate limits. Dispatch
// decisions are recorded to the ledger and exported as metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tokligence/flowshaper/internal/config"
	"github.com/tokligence/flowshaper/internal/httpserver"
	"github.com/tokligence/flowshaper/internal/ledger"
	ledgerasync "github.com/tokligence/flowshaper/internal/ledger/async"
	ledgerpostgres "github.com/tokligence/flowshaper/internal/ledger/postgres"
	ledgersqlite "github.com/tokligence/flowshaper/internal/ledger/sqlite"
	"github.com/tokligence/flowshaper/internal/logging"
	"github.com/tokligence/flowshaper/internal/metrics"
	"github.com/tokligence/flowshaper/internal/pump"
	"github.com/tokligence/flowshaper/internal/shaper"
	"github.com/tokligence/flowshaper/internal/version"
)

func main() {
	configPath := flag.String("config", "config/flowshaper.yaml", "path to the YAML configuration")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("flowshaperd %s\n", version.FullInfo())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	logCloser, err := setupLogging(cfg.Log)
	if err != nil {
		log.Fatalf("setup logging failed: %v", err)
	}
	defer logCloser.Close()

	log.Printf("[INFO] flowshaperd %s starting (levels=%d, policy=%s)",
		version.Info(), cfg.MaxPriority, cfg.Policy)

	store, err := openLedger(cfg.Ledger)
	if err != nil {
		log.Fatalf("open ledger failed: %v", err)
	}
	if store != nil {
		defer store.Close()
	}

	clock := shaper.NewWallClock()
	pqs, err := config.BuildShaper(cfg, clock, pump.ItemSize)
	if err != nil {
		log.Fatalf("build shaper failed: %v", err)
	}

	collector := metrics.NewCollector()
	p, err := pump.New(pump.Options{
		Shaper:   pqs,
		Clock:    clock,
		Ledger:   store,
		Metrics:  collector,
		Dispatch: dispatchLog(cfg.Log.Level),
	})
	if err != nil {
		log.Fatalf("build pump failed: %v", err)
	}
	p.SetPolicyName(cfg.Policy)
	p.Start()

	var server *httpserver.Server
	serverErr := make(chan error, 1)
	if cfg.Admin.Enabled {
		server = httpserver.New(cfg.Admin.Addr, p, p, collector)
		go func() {
			serverErr <- server.Start()
		}()
	}

	// Wait for termination.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("[INFO] flowshaperd: received %v, shutting down", sig)
	case err := <-serverErr:
		if err != nil {
			log.Printf("[ERROR] flowshaperd: server failed: %v", err)
		}
	}

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("[WARN] flowshaperd: server shutdown: %v", err)
		}
	}
	p.Shutdown()
	log.Printf("[INFO] flowshaperd: shutdown complete")
}

// setupLogging points the standard logger at the configured rotating file,
// mirroring to stderr so interactive runs stay visible.
func setupLogging(cfg config.LogConfig) (io.Closer, error) {
	writer, err := logging.NewRotatingWriter(cfg.File, cfg.MaxBytes)
	if err != nil {
		return nil, err
	}
	log.SetOutput(io.MultiWriter(os.Stderr, writer))
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	return writer, nil
}

func openLedger(cfg config.LedgerConfig) (ledger.Store, error) {
	var store ledger.Store
	var err error
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "sqlite":
		store, err = ledgersqlite.New(cfg.Path)
	case "postgres":
		store, err = ledgerpostgres.New(cfg.DSN, 0, 0, 0)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Async {
		store = ledgerasync.New(store, ledgerasync.Config{
			BatchSize:     cfg.BatchSize,
			FlushInterval: cfg.FlushInterval(),
			Logger:        log.Default(),
		})
	}
	return store, nil
}

// dispatchLog is the daemon's dispatch sink: released items are logged and
// forgotten. Embedders replace this with their own delivery.
func dispatchLog(level string) pump.Dispatch {
	verbose := strings.EqualFold(level, "debug")
	return func(item pump.Item, prio shaper.Priority) {
		if verbose {
			log.Printf("[DEBUG] dispatch: item %s released from P%d (%d bytes)", item.ID, prio, len(item.Payload))
		}
	}
}
