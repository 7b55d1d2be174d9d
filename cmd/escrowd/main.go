package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"escrowd/config"
	"escrowd/core/events"
	"escrowd/gateway"
	"escrowd/native/escrow"
	"escrowd/native/fees"
	"escrowd/native/registry"
	"escrowd/observability/logging"
	"escrowd/state"
	"escrowd/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "./config.toml", "Path to the escrowd config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.Setup("escrowd", cfg.Environment)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "escrow"))
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	treasury, err := cfg.TreasuryAddress()
	if err != nil {
		log.Fatalf("treasury address: %v", err)
	}
	admins, err := cfg.AdminAddresses()
	if err != nil {
		log.Fatalf("admin addresses: %v", err)
	}
	banned, err := cfg.BlacklistAddresses()
	if err != nil {
		log.Fatalf("blacklist addresses: %v", err)
	}

	reg := registry.New(cfg.Tokens, treasury)
	for _, addr := range banned {
		reg.SetBlacklisted(addr, true)
	}
	roles := registry.NewRoleSet(admins)

	feeManager, err := fees.NewManager(cfg.ClientFeeBps, cfg.ContractorFeeBps)
	if err != nil {
		log.Fatalf("fee manager: %v", err)
	}

	manager := state.NewManager(db)
	recorder := events.NewRecorder(cfg.EventHistory)

	engine := escrow.NewEngine()
	if err := engine.Initialize(manager, reg, roles, cfg.MaxUnitsPerContract); err != nil {
		log.Fatalf("initialize engine: %v", err)
	}
	engine.SetFeeEngine(feeManager)
	engine.SetEmitter(recorder)

	server := gateway.NewServer(engine, recorder, logger)
	srv := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: server,
	}

	go func() {
		logger.Info("escrowd gateway listening", "address", cfg.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down escrowd gateway")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
