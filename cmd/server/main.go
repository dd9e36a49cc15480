package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"todoService/internal/auth"
	"todoService/internal/config"
	"todoService/internal/db"
	grpcserver "todoService/internal/grpc"
	"todoService/internal/httpapi"
	"todoService/internal/todo"
	"todoService/repository"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, level, err := loadConfig()
	if err != nil {
		logger.WithError(err).Fatal("load config")
	}
	logger.SetLevel(level)
	logger.Infof("configuration loaded: %v", cfg)
	if cfg.Env == config.EnvDevelopment {
		logger.Warn("APP_ENV=development: tokens may be signed with the built-in development secret")
	}

	// Open DB
	d, err := db.Open(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("open db")
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.WithError(err).Error("close db")
		}
	}()

	tokens := auth.NewTokenService([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
	svc := todo.NewService(
		repository.NewUserRepository(d),
		repository.NewItemRepository(d),
		tokens,
		todo.Options{OwnerScopedMutations: cfg.Items.OwnerScopedMutations, Logger: logger},
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := httpapi.NewMetrics(reg)

	var shutdowns []func(context.Context) error

	// Start REST
	stopHTTP, err := httpapi.Start(cfg.HTTP.Address, httpapi.NewServer(svc, tokens, logger, metrics), logger)
	if err != nil {
		logger.WithError(err).Fatal("start http")
	}
	shutdowns = append(shutdowns, stopHTTP)
	logger.WithField("addr", cfg.HTTP.Address).Info("http server listening")

	// Start gRPC
	if cfg.GRPC.Address != "" {
		stopGRPC, err := grpcserver.StartGRPC(cfg.GRPC.Address, svc, tokens, logger)
		if err != nil {
			logger.WithError(err).Fatal("start grpc")
		}
		shutdowns = append(shutdowns, stopGRPC)
		logger.WithField("addr", cfg.GRPC.Address).Info("grpc server listening")
	}

	// Metrics listener
	if cfg.Metrics.Address != "" {
		stopMetrics, err := httpapi.Start(cfg.Metrics.Address, httpapi.MetricsHandler(reg), logger)
		if err != nil {
			logger.WithError(err).Fatal("start metrics")
		}
		shutdowns = append(shutdowns, stopMetrics)
		logger.WithField("addr", cfg.Metrics.Address).Info("metrics listening")
	}

	// Wait for signal
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigc
	logger.WithField("signal", sig.String()).Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	for _, stop := range shutdowns {
		if err := stop(ctx); err != nil {
			logger.WithError(err).Error("shutdown error")
		}
	}
}

// loadConfig reads the configuration and resolves the log level. It fails
// when JWT_SECRET is unset outside APP_ENV=development.
func loadConfig() (*config.Config, logrus.Level, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, 0, err
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	return cfg, level, nil
}
