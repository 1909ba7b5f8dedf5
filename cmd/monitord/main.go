package main

import (
    "context"
    "flag"
    "fmt"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/sirupsen/logrus"

    "github.com/ychcqshan/terminal-monitor/internal/config"
    "github.com/ychcqshan/terminal-monitor/internal/database"
    "github.com/ychcqshan/terminal-monitor/internal/engine"
    "github.com/ychcqshan/terminal-monitor/internal/metrics"
    "github.com/ychcqshan/terminal-monitor/internal/notifications"
    "github.com/ychcqshan/terminal-monitor/internal/web"
)

func main() {
    configFile := flag.String("config", "config.yaml", "Configuration file path")
    version := flag.Bool("version", false, "Show version information")
    flag.Parse()

    if *version {
        fmt.Println("Terminal Monitor v1.0.0")
        os.Exit(0)
    }

    cfg, err := config.Load(*configFile)
    if err != nil {
        logrus.Fatalf("Failed to load config: %v", err)
    }

    setupLogging(cfg.Logging)

    logrus.WithFields(logrus.Fields{
        "config_file": *configFile,
        "port":        cfg.Server.Port,
        "workers":     cfg.Server.Workers,
    }).Info("Starting terminal monitor")

    store, err := database.NewBoltStore(cfg.Database.Path)
    if err != nil {
        logrus.Fatalf("Failed to initialize database: %v", err)
    }
    defer store.Close()

    metricsCollector := metrics.NewCollector(store)

    eng := engine.NewEngine(cfg, store, metricsCollector)

    if cfg.Notifications.Enabled && cfg.Notifications.Pushover.Enabled {
        notifier := notifications.NewPushoverClient(&cfg.Notifications.Pushover)
        eng.Alerts().Subscribe(func(event engine.AlertEvent) {
            if event.Type != "created" {
                return
            }
            go func() {
                ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
                defer cancel()
                if err := notifier.NotifyAlert(ctx, event.Alert); err != nil {
                    logrus.WithError(err).Warn("Failed to send notification")
                }
            }()
        })
    }

    webServer := web.NewServer(cfg, store, eng, metricsCollector)

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    if err := eng.Start(ctx); err != nil {
        logrus.Fatalf("Failed to start engine: %v", err)
    }

    if err := webServer.Start(ctx); err != nil {
        logrus.Fatalf("Failed to start web server: %v", err)
    }

    sigChan := make(chan os.Signal, 1)
    signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

    sig := <-sigChan
    logrus.WithField("signal", sig).Info("Received shutdown signal")

    shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer shutdownCancel()

    if err := webServer.Stop(shutdownCtx); err != nil {
        logrus.WithError(err).Warn("Web server shutdown failed")
    }
    eng.Stop()
    cancel()

    logrus.Info("Shutdown complete")
}

func setupLogging(cfg config.LoggingConfig) {
    level, err := logrus.ParseLevel(cfg.Level)
    if err != nil {
        level = logrus.InfoLevel
    }
    logrus.SetLevel(level)

    if cfg.Format == "json" {
        logrus.SetFormatter(&logrus.JSONFormatter{})
    } else {
        logrus.SetFormatter(&logrus.TextFormatter{
            FullTimestamp: true,
        })
    }
}
