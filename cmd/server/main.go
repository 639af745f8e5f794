package main

import (
	"flag"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"imagestore/internal/archive"
	"imagestore/internal/assets"
	"imagestore/internal/config"
	"imagestore/internal/gallery"
	"imagestore/internal/reconcile"
	"imagestore/internal/registry"
	"imagestore/internal/server"
	"imagestore/internal/session"
	"imagestore/internal/util"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	reg, err := registry.New(cfg.RegistryPath())
	if err != nil {
		log.Fatalf("failed to init registry: %v", err)
	}
	galleries, err := gallery.NewManager(reg, cfg.StorageRoot, logger)
	if err != nil {
		log.Fatalf("failed to init gallery manager: %v", err)
	}
	store := assets.NewStore(galleries, cfg.MaxUploadBytes, cfg.MaxBatchFiles, logger)
	archives := archive.New(store, logger)
	reconciler := reconcile.New(reg, cfg.StorageRoot, logger)

	var sessions session.Store
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		sessions = session.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword)
	} else {
		slog.Warn("redis not configured, sessions are in-memory and lost on restart")
		sessions = session.NewMemoryStore()
	}

	httpServer, err := server.New(server.Config{
		Galleries:               galleries,
		Assets:                  store,
		Archives:                archives,
		Reconciler:              reconciler,
		Sessions:                sessions,
		AdminPassword:           cfg.AdminPassword,
		SessionTTL:              sessionTTL,
		MaxUploadBytes:          cfg.MaxUploadBytes,
		RedisAddr:               cfg.RedisAddr,
		RedisPassword:           cfg.RedisPassword,
		LoginRateLimitPerMinute: cfg.LoginRateLimitPerMinute,
		TrustedProxies:          cfg.TrustedProxies,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("server listening",
		"addr", addr,
		"storage_root", filepath.Clean(cfg.StorageRoot),
		"registry", cfg.RegistryPath())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
