package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/gmsas95/dosetrack/internal/api"
	"github.com/gmsas95/dosetrack/internal/channels/telegram"
	"github.com/gmsas95/dosetrack/internal/config"
	"github.com/gmsas95/dosetrack/internal/cron"
	"github.com/gmsas95/dosetrack/internal/medication"
	"github.com/gmsas95/dosetrack/internal/metrics"
	"github.com/gmsas95/dosetrack/internal/reminders"
	"github.com/gmsas95/dosetrack/internal/store"
)

var (
	configPath  = flag.String("config", "", "Path to config file")
	dataDir     = flag.String("data", "", "Path to data directory")
	showVersion = flag.Bool("version", false, "Print version and exit")
	version     = "dev"
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("dosetrack", version)
		return
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	kv, err := store.New(cfg)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer kv.Close()

	m := metrics.New()

	medStore, err := medication.NewStore(kv, m, logger)
	if err != nil {
		logger.Fatal("Failed to load treatment store", zap.Error(err))
	}

	bot, err := telegram.NewBot(telegram.Config{
		Token:   cfg.Channels.Telegram.BotToken,
		ChatID:  cfg.Channels.Telegram.ChatID,
		Enabled: cfg.Channels.Telegram.Enabled,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to start telegram channel", zap.Error(err))
	}

	var delivery reminders.Delivery
	if bot.Enabled() {
		delivery = bot
	}

	gateway := reminders.NewLocalGateway(kv, delivery, m, logger)
	reconciler := reminders.NewReconciler(medStore, gateway, reminders.Config{
		Count:    cfg.Reminders.Count,
		FireHour: cfg.Reminders.FireHour,
	}, m, logger)

	// Every mutation that can affect due dates triggers a reconcile.
	medStore.Subscribe(reconciler.HandleEvent)

	// Timers don't survive restarts; rebuild the pending set now and on the
	// periodic sweep.
	reconciler.ResyncAll()

	runner := cron.NewRunner(cfg.Reminders.ResyncSpec, reconciler, logger)
	if err := runner.Start(); err != nil {
		logger.Fatal("Failed to start resync sweep", zap.Error(err))
	}

	server := api.New(cfg, medStore, reconciler, gateway, m, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("API server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutting down")
	if err := server.Shutdown(); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	runner.Stop()
}
