package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"greencart-sync-api/internal/cache"
	"greencart-sync-api/internal/config"
	"greencart-sync-api/internal/connectivity"
	"greencart-sync-api/internal/handler"
	"greencart-sync-api/internal/remote"
	"greencart-sync-api/internal/router"
	"greencart-sync-api/internal/sync"

	_ "github.com/go-sql-driver/mysql"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting GreenCart sync engine...")

	// Load configuration
	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	userID := cfg.Remote.UserID
	if userID == "" {
		userID = "local"
	}

	// Initialize the goal cache based on config
	var store cache.GoalCache
	switch cfg.Cache.Backend {
	case "memory":
		store = cache.NewMemoryCache()
		log.Println("Memory goal cache initialized")
	case "redis":
		redisCache, err := cache.NewRedisCache(cache.RedisCacheConfig{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		}, userID)
		if err != nil {
			log.Fatalf("Failed to initialize Redis cache: %v", err)
		}
		store = redisCache
		log.Println("Redis goal cache initialized")
	case "mysql":
		db, err := sql.Open("mysql", cfg.Cache.MySQLDSN())
		if err != nil {
			log.Fatalf("Failed to open MySQL: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			log.Fatalf("Failed to ping MySQL: %v", err)
		}
		defer db.Close()

		mysqlCache, err := cache.NewMySQLCache(db, userID)
		if err != nil {
			log.Fatalf("Failed to initialize MySQL cache: %v", err)
		}
		store = mysqlCache
		log.Println("MySQL goal cache initialized")
	default: // sqlite
		if dir := filepath.Dir(cfg.Cache.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				log.Fatalf("Failed to create cache directory: %v", err)
			}
		}
		sqliteCache, err := cache.NewSQLiteCache(cfg.Cache.Path, userID)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite cache: %v", err)
		}
		store = sqliteCache
		log.Println("SQLite goal cache initialized")
	}
	defer store.Close()

	// Remote goal service client
	client := remote.NewHTTPClient(remote.Config{
		BaseURL:     cfg.Remote.BaseURL,
		AccessToken: cfg.Remote.AccessToken,
		UserID:      userID,
		Timeout:     cfg.Remote.Timeout,
	})

	// Sync orchestrator
	orch := sync.New(store, client, sync.Config{
		MaxRetries:       cfg.Sync.MaxRetries,
		AutoSyncInterval: cfg.Sync.AutoSyncInterval,
		SyncThreshold:    cfg.Sync.SyncThreshold,
		StabilityDelay:   cfg.Sync.StabilityDelay,
	})
	defer orch.Close()

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := orch.Initialize(initCtx); err != nil {
		log.Printf("Warning: orchestrator initialization incomplete: %v", err)
	}
	initCancel()

	// Connectivity monitor feeds online/offline transitions into the
	// orchestrator.
	monitor := connectivity.NewMonitor(client, connectivity.MonitorConfig{
		ProbeInterval: cfg.Sync.ConnectivityProbe,
	}, orch.SetOnline)
	monitor.Start()
	defer monitor.Stop()

	// Initialize handlers
	healthHandler := handler.New(store)
	goalHandler := handler.NewGoalHandler(store, orch)
	syncHandler := handler.NewSyncHandler(store, orch)
	progressHandler := handler.NewProgressHandler(store, orch)

	// Create router
	r := router.New(router.Config{
		Handler:         healthHandler,
		GoalHandler:     goalHandler,
		SyncHandler:     syncHandler,
		ProgressHandler: progressHandler,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Control plane listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	monitor.Stop()
	orch.Close()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Stopped")
}
