package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callbridge/internal/agents"
	"callbridge/internal/auth"
	"callbridge/internal/calllog"
	"callbridge/internal/config"
	"callbridge/internal/entity"
	"callbridge/internal/eventlog"
	"callbridge/internal/realtime"
	"callbridge/internal/routing"
	"callbridge/internal/telephony"
	"callbridge/pkg/logger"
	"callbridge/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	store := calllog.NewPostgresStore(db)
	directory := agents.NewPostgresDirectory(db)
	resolver := entity.NewResolver(entity.NewPostgresRecordStore(db))
	journal := eventlog.NewService(eventlog.NewPostgresRepo(db))
	publisher := realtime.NewRedisPublisher(rdb)

	var provider telephony.Provider
	if cfg.Telephony.Enabled && cfg.Telephony.APIEndpoint != "" {
		provider = telephony.NewSmartfloProvider(cfg.Telephony)
	}

	svc := telephony.NewService(telephony.Deps{
		Config:    cfg.Telephony,
		Store:     store,
		Entities:  resolver,
		Agents:    directory,
		Publisher: publisher,
		Provider:  provider,
		Journal:   journal,
		Redis:     rdb,
	})

	hub := realtime.NewHub(rdb, log)
	go hub.Run(rootCtx)

	queue := routing.NewEngine(store, directory, publisher)
	go queue.Run(rootCtx, 2*time.Second)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		db:      db,
		authMW:  auth.RequireAccessToken(authManager),
		gateway: telephony.NewHandlers(svc, telephony.NewWebhookAuth(cfg.Telephony.WebhookToken), cfg.Telephony.Enabled),
		hub:     hub,
		queue:   queue,
		agents:  directory,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
