package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"tardiness/internal/arrival"
	"tardiness/internal/config"
	"tardiness/internal/kvstore"
	"tardiness/internal/queue"
	"tardiness/internal/report"
	"tardiness/internal/schedule"
	"tardiness/internal/student"
)

// Worker consumes export jobs and writes monthly CSV files to disk.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("open store failed: %v", err)
	}
	defer store.Close()

	registry, err := schedule.NewRegistry(ctx, store)
	if err != nil {
		log.Fatalf("load classes failed: %v", err)
	}
	directory, err := student.NewDirectory(ctx, store)
	if err != nil {
		log.Fatalf("load students failed: %v", err)
	}
	ledger, err := arrival.NewLedger(ctx, store, registry)
	if err != nil {
		log.Fatalf("load arrivals failed: %v", err)
	}
	reports := report.NewAggregator(registry, directory, ledger, cfg.CollationLocale)

	if err := os.MkdirAll(cfg.ExportDir, 0o755); err != nil {
		log.Fatalf("create export dir failed: %v", err)
	}

	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		q = queue.NewRedisQueue(kvstore.NewRedisClient(cfg.RedisAddr), "tardiness:exports")
	} else {
		q = queue.NewInMemory(64)
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for export jobs...")
	for msg := range messages {
		if msg.Type != "export" {
			continue
		}

		job, err := queue.DecodeExportJob(msg.Body)
		if err != nil {
			log.Printf("bad export job: %v", err)
			continue
		}

		// The ledger may have moved since startup; re-read before rendering.
		for _, reload := range []func(context.Context) error{registry.Reload, directory.Reload, ledger.Reload} {
			if err := reload(ctx); err != nil {
				log.Printf("reload failed: %v", err)
			}
		}

		rep := reports.Monthly(job.ClassID, job.Year, job.Month)
		if rep == nil {
			log.Printf("export skipped: class %s not found", job.ClassID)
			continue
		}

		name := fmt.Sprintf("%s-%04d-%02d.csv", safeName(rep.ClassName), job.Year, job.Month)
		path := filepath.Join(cfg.ExportDir, name)
		if err := os.WriteFile(path, []byte(report.CSV(rep)), 0o644); err != nil {
			log.Printf("write %s failed: %v", path, err)
			continue
		}
		log.Printf("exported %s", path)
	}

	log.Println("worker stopped")
}

// openStore picks the persistence backend from config.
func openStore(cfg config.App) (kvstore.Store, error) {
	switch cfg.StorageBackend {
	case "redis":
		return kvstore.NewRedis(cfg.RedisAddr, cfg.StoreNamespace), nil
	case "postgres":
		return kvstore.OpenPostgres(cfg.DatabaseURL, cfg.StoreNamespace)
	case "memory":
		return kvstore.NewMemory(), nil
	default:
		return kvstore.OpenBolt(cfg.BoltPath, cfg.StoreNamespace)
	}
}

// safeName flattens a class name into a filename fragment.
func safeName(s string) string {
	mapper := func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '-'
		default:
			return -1
		}
	}
	out := strings.Map(mapper, s)
	if out == "" {
		out = "classe"
	}
	return out
}
