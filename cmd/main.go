// jobscout-pipeline-service
//
// Queue-driven ingestion pipeline: work items (job postings, companies,
// scrape jobs, source-discovery requests) are claimed from a shared
// PostgreSQL queue, routed to type-specific handlers, and may spawn new
// items under lineage-tracked loop protection. Job posting candidates
// flow through hard-rejection filtering and strike-based scoring before
// being admitted as matches.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"jobscout/pipeline-service/internal/config"
	"jobscout/pipeline-service/internal/db"
	"jobscout/pipeline-service/internal/pipeline"
	"jobscout/pipeline-service/internal/scheduler"
	"jobscout/pipeline-service/internal/scraper"
	"jobscout/pipeline-service/internal/store"
)

const version = "1.0.0"

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[pipeline-service] Config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	log.Println("[pipeline-service] Connecting to PostgreSQL…")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[pipeline-service] PostgreSQL: %v", err)
	}
	defer pool.Close()
	log.Println("[pipeline-service] PostgreSQL connected ✓")

	// ── Redis ────────────────────────────────────────────────────────────────
	log.Println("[pipeline-service] Connecting to Redis…")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("[pipeline-service] Redis: %v", err)
	}
	defer rdb.Close()
	log.Println("[pipeline-service] Redis connected ✓")

	// ── Queue engine ─────────────────────────────────────────────────────────
	st := store.NewPostgres(pool)
	events := pipeline.NewEvents(rdb)

	fetcher := scraper.NewBoardFetcher(cfg.BoardAPIURL, cfg.BoardAppID, cfg.BoardAppKey)
	registry := pipeline.NewRegistry()
	scraper.RegisterAll(registry, fetcher)

	var wg sync.WaitGroup
	for i := 0; i < cfg.DispatcherCount; i++ {
		d := pipeline.New(st, registry, events)
		d.HandlerTimeout = cfg.HandlerTimeout

		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			log.Printf("[pipeline-service] Dispatcher %d started", n)
			if err := d.Run(ctx); err != nil {
				log.Printf("[pipeline-service] Dispatcher %d stopped: %v", n, err)
				cancel() // configuration errors are batch-fatal
			}
		}(i)
	}

	// ── Maintenance cron ─────────────────────────────────────────────────────
	sched := scheduler.New(st, cfg.ReaperInterval, 2*cfg.HandlerTimeout)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("[pipeline-service] Scheduler: %v", err)
	}
	defer sched.Stop()

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)

	api := pipeline.NewAPIHandler(st, cfg.DefaultMaxSpawnDepth, cfg.DefaultMaxRetries)
	api.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[pipeline-service] v%s listening on :%s", version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[pipeline-service] HTTP server error: %v", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Println("[pipeline-service] Shutting down…")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[pipeline-service] Shutdown error: %v", err)
	}

	wg.Wait()
	log.Println("[pipeline-service] Stopped.")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "pipeline-service",
		"version": version,
	})
}
