package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brownie44l1/snaplabel/internal/config"
	"github.com/Brownie44l1/snaplabel/internal/content"
	"github.com/Brownie44l1/snaplabel/internal/handlers"
	"github.com/Brownie44l1/snaplabel/internal/logging"
	"github.com/Brownie44l1/snaplabel/internal/model"
	"github.com/Brownie44l1/snaplabel/internal/session"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		logging.New("info", "console").Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("path", cfg.Model.Path).Str("remote", cfg.Model.RemoteID).Msg("Loading model")

	provisioner := model.NewProvisioner(cfg.Model.RemoteID, cfg.Model.Path,
		func(path string) (model.Backend, error) {
			return model.LoadONNX(path, model.ONNXOptions{
				MetadataPath:   cfg.Model.MetadataPath,
				RuntimeLibrary: cfg.Model.RuntimeLibrary,
			})
		},
		model.ProvisionerOptions{
			HTTPClient: &http.Client{Timeout: 5 * time.Minute},
			Logger:     log,
		})

	backend, err := provisioner.Ensure(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize model")
	}
	defer backend.Close()

	classifier := model.NewClassifier(backend)
	labels := classifier.Labels()

	table, err := content.Load(cfg.Content.Path, labels, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load content table")
	}

	sessions := session.NewStore(cfg.Session.IdleTimeout)
	handler := handlers.NewHandler(classifier, table, sessions, handlers.Options{
		CookieName:     cfg.Session.CookieName,
		MaxUploadBytes: cfg.Upload.MaxBytes,
	}, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("port", cfg.Server.Port).Msg("Server starting")
	log.Info().Strs("classes", labels).Int("content_labels", table.Len()).Msg("Model loaded")
	log.Info().Msg("Endpoints:")
	log.Info().Msg("  GET  /                   - Classifier page")
	log.Info().Msg("  POST /predict/image      - Classify an upload for this session")
	log.Info().Msg("  GET  /image              - Last image of this session")
	log.Info().Msg("  POST /api/predict/image  - Classify an upload, JSON response")
	log.Info().Msg("  GET  /health             - Health check")
	log.Info().Msg("  GET  /metrics            - Prometheus metrics")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}
}
