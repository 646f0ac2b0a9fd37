package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"cna-finance/internal/auth"
	"cna-finance/internal/config"
	"cna-finance/internal/hub"
	"cna-finance/internal/logging"
	"cna-finance/internal/middleware"
	"cna-finance/internal/server"
	"cna-finance/internal/store"
)

const version = "0.1.0"

func main() {
	loadLocalEnv()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	gin.SetMode(cfg.GinMode)
	st := store.NewWithOptions(store.Options{
		StateFile:      cfg.StateFile,
		InitialBalance: cfg.InitialBalance,
		Logger:         logger.Named("store"),
	})
	if cfg.AdminUsername != "" && cfg.AdminPassword != "" {
		admin, err := st.EnsureAdmin(cfg.AdminUsername, cfg.AdminPassword)
		if err != nil {
			logger.Fatal("seed admin", zap.Error(err))
		}
		logger.Info("admin account ready", zap.Int64("user_id", admin.ID), zap.String("username", admin.Username))
	}

	tokenCfg := auth.DefaultTokenConfig(cfg.JWTSecret)
	tokenCfg.Expiry = cfg.TokenExpiry

	limiter := middleware.NewRateLimiter(10, time.Minute)
	defer limiter.Stop()

	router := server.NewRouter(server.Deps{
		Store:        st,
		Hub:          hub.New(),
		TokenConfig:  tokenCfg,
		LoginLimiter: limiter,
		Log:          logger.Named("http"),
		Version:      version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg, router, logger); err != nil {
		logger.Fatal("http server error", zap.Error(err))
	}
}

func loadLocalEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found; relying on existing environment")
	}
}
