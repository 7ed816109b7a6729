package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shelfwatch/shelfwatch/detections"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if os.Getenv("DEBUG") == "true" {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := run(log, cfg); err != nil {
		log.Fatalf("Fatal: %v", err)
	}
}

func run(log *logrus.Logger, cfg Config) error {
	if err := detections.InitRuntime(cfg.OnnxLibPath); err != nil {
		return err
	}
	defer detections.ShutdownRuntime()

	manager := detections.NewManager(log, detections.Options{PoolSize: cfg.PoolSize})

	log.WithField("weights", cfg.WeightsPath).Info("loading model")
	if err := manager.Load(cfg.WeightsPath); err != nil {
		return err
	}
	defer manager.Close()

	// A static model shape wins over the configured size; the two must agree
	// for the backend to accept the tensor.
	if declared := manager.InputSize(); declared > 0 && declared != cfg.InputSize {
		log.WithFields(logrus.Fields{
			"configured": cfg.InputSize,
			"declared":   declared,
		}).Warn("IMG_SIZE differs from the model's declared input, using the model's")
		cfg.InputSize = declared
	}

	if err := manager.Warmup(cfg.InputSize); err != nil {
		return err
	}

	metrics := NewMetrics()
	metrics.ModelInfo.WithLabelValues(cfg.ModelName, cfg.WeightsPath, manager.Runtime()).Set(1)

	dispatcher := NewDispatcher(manager, log, metrics, cfg)
	app := NewApp(dispatcher, manager, metrics, cfg)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      app.Router(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Addr).Infof("shelfwatch inference ready (runtime=%s)", manager.Runtime())
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-sigCh:
		log.WithField("signal", sig).Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("shutdown did not complete cleanly")
		}
	}

	log.Info("shutdown complete")
	return nil
}
