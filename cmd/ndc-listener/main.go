package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ACF100/ndc-location-mapper/internal/catalog"
	"github.com/ACF100/ndc-location-mapper/internal/config"
	"github.com/ACF100/ndc-location-mapper/internal/listener"
	"github.com/ACF100/ndc-location-mapper/internal/logger"
	"github.com/ACF100/ndc-location-mapper/internal/pipeline"
	"github.com/ACF100/ndc-location-mapper/internal/registry"
	"github.com/ACF100/ndc-location-mapper/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)
	must(cfg.Require("REGISTRY_PATH", cfg.RegistryPath))

	log := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	// An unreadable registry leaves the index empty; requests are still
	// processed and yield placeholder rows.
	idx, report, _ := registry.Load(cfg.RegistryPath)
	idx.NameMinLength = cfg.NameMatchMinLen
	_ = db.InsertRegistryLoad(report)
	for _, w := range report.Warnings {
		log.Warn("registry load", "source", cfg.RegistryPath, "warning", w)
	}
	log.Info("registry loaded", "fei_records", report.FEIRecords, "duns_records", report.DUNSRecords, "collisions", report.Collisions)

	engine := pipeline.NewEngine(cfg, catalog.NewClient(cfg), idx, log)
	proc := pipeline.NewProcessingService(db, engine, cfg, log)
	svc := listener.NewService(db, proc, cfg, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
