package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/mosaic/internal/artwork"
	"github.com/dyluth/mosaic/internal/canvas"
	"github.com/dyluth/mosaic/internal/clock"
	"github.com/dyluth/mosaic/internal/config"
	"github.com/dyluth/mosaic/internal/coordinator"
	"github.com/dyluth/mosaic/internal/ledger"
	"github.com/dyluth/mosaic/internal/palette"
	"github.com/dyluth/mosaic/internal/printer"
	"github.com/dyluth/mosaic/internal/remote"
	"github.com/dyluth/mosaic/internal/worker"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds each graceful shutdown step.
const shutdownTimeout = 5 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start placing pixels",
	Long: `Start one worker per configured account and keep the canvas matching
the template until interrupted.

Workers launch thread_delay apart. The board snapshot is marked stale every
board_interval and the template every template_every board refreshes.
Press Ctrl+C to stop; in-flight placements are allowed to finish.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openLedger(ctx, cfg)
	if err != nil {
		return printer.ErrorWithContext(
			"Redis unreachable",
			"Could not connect to the ledger.",
			map[string]string{"redis_url": cfg.RedisURL, "error": err.Error()},
			[]string{"Check that Redis is running, or remove redis_url to keep tokens in memory"},
		)
	}
	defer func() {
		log.Printf("[DEBUG] Closing ledger...")
		if err := store.Close(); err != nil {
			log.Printf("[ERROR] Error closing ledger: %v", err)
		}
	}()

	engine, cache, err := buildEngine(cfg, store, clock.Real{})
	if err != nil {
		return err
	}

	if err := cache.Load(ctx); err != nil {
		return printer.Error("failed to load template", err.Error(), []string{
			fmt.Sprintf("Check template and canvas_path in %s", configPath),
		})
	}
	log.Printf("[INFO] Template loaded: %v", cache.Bounds())

	var healthServer *coordinator.HealthServer
	if cfg.Coordinator.HealthPort > 0 {
		healthServer = coordinator.NewHealthServer(engine, store.Pinger(), cfg.Coordinator.HealthPort)
		if err := healthServer.Start(); err != nil {
			return fmt.Errorf("failed to start health server: %w", err)
		}
		log.Printf("[INFO] Health server started on %s", healthServer.Addr())
	}

	// Set up signal handling for SIGINT and SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- engine.Run(ctx)
	}()

	printer.Success("Started %d worker(s)\n", len(cfg.Workers))

	// Wait for shutdown signal or engine exit
	var runErr error
	select {
	case sig := <-sigChan:
		log.Printf("[INFO] Received signal: %v", sig)
		log.Printf("[INFO] Initiating graceful shutdown...")
		cancel()

		timer := time.NewTimer(shutdownTimeout)
		defer timer.Stop()
		select {
		case runErr = <-engineDone:
		case <-timer.C:
			runErr = errors.New("shutdown timed out")
		}

	case runErr = <-engineDone:
	}

	if healthServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[ERROR] Health server shutdown error: %v", err)
		}
	}

	if errors.Is(runErr, coordinator.ErrAllWorkersStopped) {
		return printer.Error("all workers stopped", "Every worker exited; see the log above for the reasons.", nil)
	}
	if runErr != nil {
		return runErr
	}

	log.Printf("[INFO] Shutdown complete")
	return nil
}

// ledgerStore is where workers keep tokens and record placements.
type ledgerStore interface {
	worker.TokenStore
	worker.Journal
	Close() error
	// Pinger returns the health probe target, or nil for in-memory storage.
	Pinger() coordinator.Pinger
}

type redisStore struct{ *ledger.Client }

func (s redisStore) Pinger() coordinator.Pinger { return s.Client }

type memoryStore struct{ *ledger.Memory }

func (memoryStore) Close() error               { return nil }
func (memoryStore) Pinger() coordinator.Pinger { return nil }

// openLedger connects to Redis when redis_url is set, and otherwise keeps
// everything in memory.
func openLedger(ctx context.Context, cfg *config.MosaicConfig) (ledgerStore, error) {
	if cfg.RedisURL == "" {
		log.Printf("[INFO] No redis_url configured; tokens and journal kept in memory")
		return memoryStore{ledger.NewMemory()}, nil
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis_url: %w", err)
	}

	client, err := ledger.NewClient(redisOpts, cfg.Instance)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("[INFO] Connected to Redis (instance='%s')", cfg.Instance)
	return redisStore{client}, nil
}

// buildEngine wires the remote collaborators, the shared cache and one
// scheduler per identity under a coordinator. The cache still needs Load.
func buildEngine(cfg *config.MosaicConfig, store ledgerStore, clk clock.Clock) (*coordinator.Coordinator, *canvas.Cache, error) {
	p, err := cfg.BuildPalette()
	if err != nil {
		return nil, nil, err
	}
	mapper := palette.NewMapper(p)

	pool, err := remote.NewProxyPool(cfg.Proxies)
	if err != nil {
		return nil, nil, err
	}
	if pool.Len() > 0 {
		log.Printf("[INFO] Using %d proxies", pool.Len())
	}

	loader, err := artwork.NewLoader(cfg.TemplateSource(), cfg.CanvasPath, pool.Client(30*time.Second))
	if err != nil {
		return nil, nil, err
	}

	endpoints := cfg.Remote.Endpoints
	retryDelay := cfg.Scheduler.RetryDelay

	cache := canvas.NewCache(mapper, loader, remote.NewBoardFetcher(pool, endpoints, clk, retryDelay))
	deps := worker.Deps{
		Source:  cache,
		Auth:    remote.NewAuthenticator(pool, endpoints, clk, retryDelay),
		Placer:  remote.NewPlacer(pool, endpoints),
		Tokens:  store,
		Journal: store,
		Mapper:  mapper,
		Grid:    cfg.Grid(),
		Clock:   clk,
	}

	identities := cfg.Identities()
	runners := make([]coordinator.Runner, len(identities))
	for i, id := range identities {
		runners[i] = worker.New(id, deps, cfg.SchedulerSettings())
	}

	return coordinator.New(runners, cache, cfg.CoordinatorSettings(), clk), cache, nil
}
