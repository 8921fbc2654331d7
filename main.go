package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"perfpredict/config"
	qhttp "perfpredict/http"
	"perfpredict/logging"
	"perfpredict/ml"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// 2. Load the model once; it is never reloaded
	model, artifact, err := ml.LoadModel(cfg.ML.ModelPath)
	if err != nil {
		logger.Fatal("failed to load model", zap.String("path", cfg.ML.ModelPath), zap.Error(err))
	}
	predictor, err := ml.NewPredictor(model, ml.PredictorOptions{CacheSize: cfg.Cache.Size})
	if err != nil {
		logger.Fatal("failed to build predictor", zap.Error(err))
	}
	logger.Info("model loaded",
		zap.String("path", cfg.ML.ModelPath),
		zap.String("model_type", artifact.ModelType),
		zap.Time("trained_at", artifact.TrainedAt),
		zap.Int("samples", artifact.Samples))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handlerCfg := qhttp.HandlerConfig{
		Predictor: predictor,
		Artifact:  artifact,
		Logger:    logger,
	}
	if cfg.ML.WatchArtifact {
		watcher, err := ml.NewArtifactWatcher(cfg.ML.ModelPath, logger)
		if err != nil {
			logger.Warn("artifact watcher disabled", zap.Error(err))
		} else {
			defer watcher.Close()
			go watcher.Run(ctx)
			handlerCfg.Stale = watcher.Stale
		}
	}

	// 3. Start HTTP server
	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.HTTP.Port,
		Timeout:        cfg.HTTP.Timeout,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, qhttp.NewHandler(handlerCfg), logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// 4. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("HTTP server failed", zap.Error(err))
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}
	logger.Info("exiting")
}
