package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	"github.com/TheEntropyCollective/asyncdemo/pkg/api"
	"github.com/TheEntropyCollective/asyncdemo/pkg/common/workers"
	"github.com/TheEntropyCollective/asyncdemo/pkg/demo"
	"github.com/TheEntropyCollective/asyncdemo/pkg/history"
	"github.com/TheEntropyCollective/asyncdemo/pkg/infrastructure/config"
	"github.com/TheEntropyCollective/asyncdemo/pkg/infrastructure/logging"
	"github.com/TheEntropyCollective/asyncdemo/pkg/metrics"
	"github.com/TheEntropyCollective/asyncdemo/pkg/util"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file path")
		host       = flag.String("host", "", "Listen host (overrides config)")
		port       = flag.Int("port", 0, "Listen port (overrides config)")
		logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
		watch      = flag.Bool("watch", true, "Reload demo settings when the config file changes")
	)
	flag.Parse()

	if err := run(*configFile, *host, *port, *logLevel, *watch); err != nil {
		fmt.Fprintln(os.Stderr, util.FormatError(err))
		os.Exit(1)
	}
}

func run(configFile, host string, port int, logLevel string, watch bool) error {
	configPath := configFile
	if configPath == "" {
		if p, err := config.GetDefaultConfigPath(); err == nil {
			configPath = p
		}
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logConfig, closeLog, err := cfg.Logging.LoggerConfig()
	if err != nil {
		return err
	}
	defer closeLog()
	logging.InitGlobalLogger(logConfig)
	logger := logging.GetGlobalLogger().WithComponent("server")

	sched := workers.NewScheduler(cfg.Pool.SchedulerConfig(func(workerID int, recovered interface{}) {
		logger.WithFields(map[string]interface{}{
			"worker": workerID,
			"panic":  fmt.Sprint(recovered),
		}).Error("job panicked")
	}))
	defer func() {
		if err := sched.Shutdown(); err != nil {
			logger.WithError(err).Warn("worker pools did not stop cleanly")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	opts := []demo.ServiceOption{}
	if cfg.Metrics.Enabled {
		m = metrics.New()
		opts = append(opts, demo.WithObserver(m))
		go m.Collect(ctx, sched, cfg.Pool.TelemetryInterval())
	}

	service := demo.NewService(sched, demo.SettingsFromConfig(cfg), logging.GetGlobalLogger(), opts...)
	store := history.NewStore(cfg.History.Capacity)

	if watch && configPath != "" {
		watcher, err := config.NewWatcher(configPath, cfg,
			func(next *config.Config) {
				service.UpdateSettings(demo.SettingsFromConfig(next))
			},
			func(err error) {
				logger.WithError(err).Warn("ignoring invalid configuration change")
			})
		if err != nil {
			logger.WithError(err).Warn("config watcher disabled")
		} else {
			go func() {
				if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.WithError(err).Warn("config watcher stopped")
				}
			}()
		}
	}

	handler := api.NewServer(api.Config{
		CORSOrigin:        cfg.Server.CORSOrigin,
		RateLimitEnabled:  cfg.RateLimit.Enabled,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		TelemetryInterval: cfg.Pool.TelemetryInterval(),
		MetricsPath:       cfg.Metrics.Path,
		TrustProxy:        cfg.Server.TrustProxy,
	}, service, store, m, logging.GetGlobalLogger()).Handler()

	server := &http.Server{
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		return util.WrapErrorWithSuggestion(err, fmt.Sprintf("check that nothing else listens on %s or pick another port with -port", cfg.Server.Addr()))
	}
	if cfg.Server.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.Server.MaxConnections)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":       listener.Addr().String(),
			"generalMax": cfg.Pool.GeneralMax,
			"metrics":    cfg.Metrics.Enabled,
			"corsOrigin": cfg.Server.CORSOrigin,
			"maxConns":   cfg.Server.MaxConnections,
		}).Info("asyncdemo server listening")
		serveErr <- server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
