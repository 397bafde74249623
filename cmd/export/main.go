package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"customer-export/internal/config"
	"customer-export/internal/diagnostics"
	"customer-export/internal/export"
	"customer-export/internal/logging"
	"customer-export/internal/scope"
)

// One-shot run: queue the export, wait for the workbook, write it to disk
// and print where it landed. Failed runs leave a snapshot in redis when
// redis is configured.
func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to config file (defaults to $CONFIG_PATH or configs/config.yaml)")
		outDir     = flag.String("out", ".", "directory the workbook is written to")
		timeout    = flag.Duration("timeout", 5*time.Minute, "overall run deadline")
	)
	flag.Parse()

	path := *configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := baseLogger.With().Str("component", "export-cli").Logger()

	redisClient := diagnostics.NewClient(cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
	}
	snapshots := diagnostics.NewStore(redisClient,
		time.Duration(cfg.Redis.SnapshotTTLHours)*time.Hour)

	service := export.NewService(cfg, scope.NewLoader(cfg.Misa.ContextPath), snapshots, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	result, err := service.Run(ctx)
	if err != nil {
		return fmt.Errorf("export run: %w", err)
	}

	dest := filepath.Join(*outDir, result.Artifact.Name)
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(dest, result.Artifact.Body, 0o644); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	logger.Info().
		Str("run_id", result.Metadata.RunID).
		Str("source_url", result.Metadata.SourceURL).
		Int("rows", result.Metadata.RowCount).
		Str("file", dest).
		Msg("export complete")

	fmt.Printf("wrote %s (%d rows, sheet %q)\n", dest, result.Metadata.RowCount, result.Metadata.SheetName)
	return nil
}
