package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/acme/voicecampaign/internal/app"
	"github.com/acme/voicecampaign/internal/scheduler"
	"github.com/acme/voicecampaign/internal/telemetry"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := flag.String("config", getEnv("CONFIG_FILE", "configs/config.yaml"), "path to configuration file")
	flag.Parse()

	container, err := app.Build(ctx, *configPath)
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer container.Close(context.Background())

	shutdown, err := telemetry.Setup(ctx, container.Config.Telemetry, container.Config.App.Name+"-engine")
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if err := container.EnsureTopics(ctx); err != nil {
		log.Fatalf("failed to ensure kafka topics: %v", err)
	}

	repos := container.Repositories()
	services := container.Services()

	svc := scheduler.New(container.Config.Engine, scheduler.Deps{
		Campaigns: services.Campaign,
		Source:    repos.Campaigns,
		Dialer:    services.Dial,
		Resolver:  container.Resolver(),
		Attempts:  repos.Attempts,
		Lease:     container.Lease(),
	}, container.Logger)

	if err := svc.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("engine terminated: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
