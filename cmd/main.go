package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tpv-fleet/internal/api"
	"tpv-fleet/internal/config"
	"tpv-fleet/internal/di"
	"tpv-fleet/internal/ops"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	container, err := di.NewContainer(cfg)
	if err != nil {
		panic("Failed to create DI container: " + err.Error())
	}
	defer container.Cleanup()

	if err := container.FleetService.Start(); err != nil {
		container.Logger.Fatalf("Failed to start fleet service: %v", err)
	}

	apiServer := api.NewServer(
		container.Dispatcher,
		container.ToggleManager,
		container.WizardManager,
		container.Database,
		container.Logger,
	)
	opsServer := ops.NewServer(cfg.OpsListenAddr, container.FleetService, container.Publisher, container.Logger)

	go func() {
		if err := apiServer.Start(cfg.APIListenAddr); err != nil && err != http.ErrServerClosed {
			container.Logger.Fatalf("API server failed: %v", err)
		}
	}()
	go func() {
		if err := opsServer.Start(); err != nil && err != http.ErrServerClosed {
			container.Logger.Fatalf("Ops server failed: %v", err)
		}
	}()

	container.Logger.Infof("fleet bridge up: api=%s ops=%s", cfg.APIListenAddr, cfg.OpsListenAddr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	container.Logger.Infof("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		container.Logger.Errorf("API server shutdown: %v", err)
	}
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		container.Logger.Errorf("Ops server shutdown: %v", err)
	}

	container.Logger.Infof("fleet bridge shutdown completed")
}
