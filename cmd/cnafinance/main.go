package main

import (
	"bufio"
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"cna-finance/internal/admin"
	"cna-finance/internal/app"
	"cna-finance/internal/cli"
	"cna-finance/internal/config"
	"cna-finance/internal/gateway"
	"cna-finance/internal/logging"
	"cna-finance/internal/model"
	"cna-finance/internal/notify"
	"cna-finance/internal/session"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadClientConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	gw := gateway.New(gateway.Options{
		BaseURL:      cfg.APIBase,
		Timeout:      cfg.RequestTimeout,
		RetryBackoff: cfg.RetryBackoff,
		Logger:       logger.Named("gateway"),
	})

	opts := app.Options{
		Gateway:      gw,
		Sessions:     session.New(session.NewFileStorage(cfg.SessionFile), logger.Named("session")),
		PollInterval: cfg.PollInterval,
		AdminVariant: admin.Variant(cfg.AdminVariant),
		Logger:       logger,
	}
	if cfg.PushEnabled {
		opts.NewSubscriber = func(sess model.Session) (app.Subscriber, error) {
			return notify.New(notify.Options{
				APIBase: cfg.APIBase,
				Token:   sess.Token,
				UserID:  sess.ID,
				Logger:  logger.Named("notify"),
			})
		}
	}
	a := app.New(opts)

	if sess, ok := a.Restore(); ok {
		logger.Info("session restored", zap.Int64("user_id", sess.ID))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui := cli.NewUI(a, bufio.NewReader(os.Stdin), os.Stdout)
	ui.UseTerminal(int(os.Stdin.Fd()))
	done := make(chan error, 1)
	go func() { done <- ui.Run(ctx) }()

	// A pending stdin read does not observe ctx, so an interrupt stops the
	// background work here and leaves the reader behind.
	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil {
			logger.Error("ui stopped", zap.Error(err))
		}
	case <-ctx.Done():
		a.LeaveDashboard()
	}
}
