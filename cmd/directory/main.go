package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/NiKuma0/secunda-tz/internal/directory/config"
	"github.com/NiKuma0/secunda-tz/internal/directory/controller"
	"github.com/NiKuma0/secunda-tz/internal/directory/db"
	"github.com/NiKuma0/secunda-tz/internal/directory/handlers"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		initLogger(zapcore.InfoLevel).Fatal("failed to load config", zap.Error(err))
	}
	level, _ := cfg.Level()

	logger := initLogger(level)
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	ctx := context.Background()
	repo, err := db.NewRepository(ctx, cfg.DBConfig(), logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer repo.Close()

	if cfg.AutoMigrate {
		if err := repo.Migrate(ctx); err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}
	}

	directorySvc := controller.NewDirectoryService(repo, logger)
	directoryHandler := handlers.NewDirectoryHandler(directorySvc, logger)

	interceptor := handlers.NewLoggingInterceptor(logger)
	server := handlers.NewServer(cfg.GRPCPort, cfg.HTTPPort, logger,
		grpc.ChainUnaryInterceptor(interceptor.Unary()))
	server.SetShutdownTimeout(cfg.ShutdownTimeout)
	server.RegisterGRPCServices()
	if err := server.RegisterHTTPHandler(directoryHandler); err != nil {
		logger.Fatal("failed to register HTTP routes", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	waitForShutdown(server, errCh, logger)
}

// initLogger builds a production zap logger at the given level.
func initLogger(level zapcore.Level) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// waitForShutdown blocks until an interrupt, SIGTERM or a server failure,
// then shuts down servers.
func waitForShutdown(server *handlers.Server, errCh <-chan error, logger *zap.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutdown requested", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
		}
	}

	server.Stop()
	logger.Info("Servers stopped properly")
}
