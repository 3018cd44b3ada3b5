package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teliris/jobscout/logger"
	"github.com/teliris/jobscout/monitor"
	"github.com/teliris/jobscout/pipeline"
	"github.com/teliris/jobscout/queue"
)

// ServeCmd runs the pipeline daemon.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline daemon",
	Long: `Run the pipeline daemon in foreground mode.

The daemon will:
- Start the worker pool that claims and processes queue items
- Reclaim items abandoned by a previous crashed run
- Serve the monitoring endpoint (/status, /tail) if configured
- Run until interrupted (Ctrl+C), finishing in-flight items before exit

Examples:
  jobscout serve              # Run with configured worker count
  jobscout serve --workers 4  # Override worker count`,
	RunE: runServe,
}

func init() {
	ServeCmd.Flags().Int("workers", 0, "Override configured worker count")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		cfg.Pipeline.Workers = workers
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	log := logger.Logger
	store := queue.NewStore(database)
	guard := queue.NewSpawnGuard(store, cfg.Pipeline.MaxSpawnDepth, log)

	fetcher := pipeline.NewHTTPFetcher(cfg.Scraper, log)
	matches := pipeline.NewMatchStore(database)
	scorer := pipeline.NewKeywordScorer(cfg.Scoring.Keywords)
	rules := pipeline.NewRules(cfg.Filter)

	registry := queue.NewRegistry()
	registry.Register(pipeline.NewJobHandler(fetcher, rules, scorer, matches,
		cfg.Scoring.ScoreTimeout(), cfg.Scoring.MinScore, log))
	registry.Register(pipeline.NewCompanyHandler(fetcher, log))
	registry.Register(pipeline.NewSourceHandler(fetcher, log))

	driverCfg := queue.DriverConfig{
		Workers:         cfg.Pipeline.Workers,
		PollInterval:    cfg.Pipeline.PollInterval(),
		MaxRetries:      cfg.Pipeline.MaxRetries,
		RetryBackoff:    cfg.Pipeline.RetryBackoff(),
		ClaimTimeout:    cfg.Pipeline.ClaimTimeout(),
		ReclaimInterval: cfg.Pipeline.ReclaimInterval(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	driver := queue.NewDriver(ctx, store, guard, registry, driverCfg, log)
	driver.Start()

	var monitorServer *monitor.Server
	if cfg.Monitor.Addr != "" {
		monitorServer = monitor.NewServer(cfg.Monitor.Addr, driver, matches, log)
		monitorServer.Start()
	}

	fmt.Println("jobscout daemon started")
	fmt.Printf("  Database:        %s\n", cfg.Database.Path)
	fmt.Printf("  Workers:         %d\n", cfg.Pipeline.Workers)
	fmt.Printf("  Poll interval:   %v\n", driverCfg.PollInterval)
	fmt.Printf("  Max spawn depth: %d\n", cfg.Pipeline.MaxSpawnDepth)
	if cfg.Monitor.Addr != "" {
		fmt.Printf("  Monitor:         http://%s/status\n", cfg.Monitor.Addr)
	}
	fmt.Println("\nPress Ctrl+C for graceful shutdown")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")

	if monitorServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := monitorServer.Shutdown(shutdownCtx); err != nil {
			log.Warnw("Monitor shutdown failed", "error", err)
		}
		shutdownCancel()
	}
	driver.Stop()

	fmt.Println("jobscout daemon stopped")
	return nil
}
