package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/docs-radar/backend/internal/bootstrap"
	"github.com/DeafMist/docs-radar/backend/internal/config"
	"github.com/DeafMist/docs-radar/backend/internal/elasticsearch"
	"github.com/DeafMist/docs-radar/backend/internal/logger"
)

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var archive *elasticsearch.Client
	if cfg.ArchiveEnabled || cfg.Backend == config.BackendElasticsearch {
		archive, err = bootstrap.ConnectElasticsearch(ctx, cfg.Common, log)
		if err != nil {
			log.Error("init elasticsearch", slog.Any("err", err))
			os.Exit(1)
		}
		if err := archive.EnsureIndex(ctx); err != nil {
			log.Warn("ensure archive index", slog.Any("err", err))
		}
	}

	svc, err := bootstrap.NewServices(cfg.Pipeline, cfg.Generation, cfg.Generation.Enabled(), archive, log)
	if err != nil {
		log.Error("init pipeline", slog.Any("err", err))
		os.Exit(1)
	}

	srv := &server{log: log, pipeline: svc.Pipeline}
	if archive != nil {
		srv.health = archive
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Deadline + cfg.Generation.Timeout + 15*time.Second,
	}

	go func() {
		log.Info("api server starting",
			slog.String("addr", cfg.BindAddr),
			slog.String("search_backend", cfg.Backend),
			slog.Bool("generation", cfg.Generation.Enabled()),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}
