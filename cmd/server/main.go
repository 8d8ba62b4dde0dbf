package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/smartmove/fleet/internal/api"
	"github.com/smartmove/fleet/internal/audit"
	"github.com/smartmove/fleet/internal/config"
	"github.com/smartmove/fleet/internal/coordinator"
	"github.com/smartmove/fleet/internal/events"
	"github.com/smartmove/fleet/internal/infra"
	"github.com/smartmove/fleet/internal/seed"
	"github.com/smartmove/fleet/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Println("Starting SmartMove fleet coordinator...")

	// 1. Storage
	vehicles, err := storage.OpenVehicleStore(cfg.Storage.DataDir)
	if err != nil {
		log.Fatalf("Failed to open vehicle store: %v", err)
	}
	users, err := storage.OpenUserStore(cfg.Storage.DataDir)
	if err != nil {
		log.Fatalf("Failed to open user store: %v", err)
	}
	rentals, err := storage.OpenRentalStore(cfg.Storage.DataDir)
	if err != nil {
		log.Fatalf("Failed to open rental store: %v", err)
	}
	payments, err := storage.OpenPaymentStore(cfg.Storage.DataDir)
	if err != nil {
		log.Fatalf("Failed to open payment store: %v", err)
	}
	if err := seed.EnsureSeeded(vehicles, users); err != nil {
		log.Fatalf("Failed to seed data: %v", err)
	}

	// 2. Audit log (write-ahead, checksum-chained)
	auditLog, err := audit.NewLog(storage.NewAuditCSVStore(cfg.Storage.DataDir))
	if err != nil {
		log.Fatalf("Failed to open audit log: %v", err)
	}
	if auditLog.Len() > 0 {
		if auditLog.VerifyChain() {
			log.Printf("Audit chain verified: %d entries intact", auditLog.Len())
		} else {
			log.Printf("WARNING: audit chain verification FAILED, trail may be tampered")
		}
	}
	if cfg.Postgres.DSN != "" {
		mirror, err := audit.OpenPostgresMirror(cfg.Postgres.DSN)
		if err != nil {
			log.Printf("Postgres audit mirror unavailable: %v", err)
		} else {
			defer mirror.Close()
			auditLog.SetMirror(mirror)
		}
	}

	// 3. Event bus (Redis when configured, in-process otherwise)
	var bus events.Bus = events.NewLocalBus()
	if cfg.Redis.Addr != "" {
		adapter, err := infra.NewGoRedisAdapter(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("Redis unavailable, using local event bus: %v", err)
		} else {
			defer adapter.Close()
			bus = events.NewRedisBus(adapter, "")
		}
	}
	defer bus.Close()

	// 4. Coordinator
	coord := coordinator.New(vehicles, users, rentals, payments, auditLog, bus)
	defer coord.Shutdown()

	// Drain telemetry cleanly on SIGINT/SIGTERM.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Println("Shutting down...")
		coord.Shutdown()
		os.Exit(0)
	}()

	// 5. API
	limiter := api.NewRateLimiter(cfg.RateLimit.MaxCallsPerMinute, cfg.RateLimit.BurstSize)
	server := api.NewServer(coord, bus, limiter)
	if err := server.Start(cfg.Server.Port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
