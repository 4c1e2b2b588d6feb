package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DemidSergeev/notes-bot/core/config"
	"github.com/DemidSergeev/notes-bot/core/database"
	"github.com/DemidSergeev/notes-bot/core/logger"
	"github.com/DemidSergeev/notes-bot/internal/bot"
	"github.com/DemidSergeev/notes-bot/internal/correlation"
	"github.com/DemidSergeev/notes-bot/internal/files"
	"github.com/DemidSergeev/notes-bot/internal/flow"
	"github.com/DemidSergeev/notes-bot/internal/service"
	"github.com/DemidSergeev/notes-bot/internal/session"
	"github.com/DemidSergeev/notes-bot/internal/storage"
)

const welcomeFallback = "Hi! I help students buy and sell lecture notes.\nChoose what you want to do:"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	if err := database.RunMigrations(cfg.Database); err != nil {
		return err
	}
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	blobs, err := files.NewStorage(cfg.Market.PendingDir, cfg.Market.PublishedDir)
	if err != nil {
		return fmt.Errorf("init file storage: %w", err)
	}
	welcome, err := service.NewStartInteraction(cfg.Market.WelcomeFile, welcomeFallback)
	if err != nil {
		return fmt.Errorf("init welcome message: %w", err)
	}

	catalog := storage.NewPGCatalog(db)
	receipts := storage.NewPGReceipts(db, catalog)
	submissions := storage.NewPGSubmissions(db)

	tokens := correlation.NewStore(
		correlation.DefaultSweepInterval,
		correlation.WithTTL(time.Duration(cfg.Market.CallbackTTLMinutes)*time.Minute),
	)
	sessions := session.NewManager(
		session.WithIdleTimeout(time.Duration(cfg.Market.SessionIdleMinutes) * time.Minute),
	)

	buy := service.NewBuyNotes(catalog, receipts)
	sell := service.NewSell(blobs, submissions)
	admin := service.NewAdmin(catalog, submissions, blobs, welcome)
	notifier := bot.NewAdminNotifier(cfg.Telegram.AdminID)

	machine := flow.NewMachine(sessions, tokens, catalog, buy, sell, welcome, notifier, flow.Config{
		PriceRUB:       cfg.Market.PriceRUB,
		PaymentDetails: cfg.Market.PaymentDetails,
		AboutText:      cfg.Market.AboutText,
	})

	app := bot.New(cfg, machine, admin, sessions, tokens, notifier)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx)
}
