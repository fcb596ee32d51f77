// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/shake/services/shake"
	"github.com/AleutianAI/shake/services/shake/config"
	"github.com/AleutianAI/shake/services/shake/journal"
	"github.com/AleutianAI/shake/services/shake/telemetry"
)

// shutdownTimeout bounds graceful shutdown of the server and exporters.
const shutdownTimeout = 10 * time.Second

var (
	servePort  int
	serveDebug bool
	serveWatch bool
)

func registerServeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVarP(&servePort, "port", "p", 0, "port to listen on (default from config)")
	f.BoolVar(&serveDebug, "debug", false, "enable gin debug mode and request logging")
	f.BoolVar(&serveWatch, "watch", true, "reload the config file when it changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log := logger.Slog()

	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	telCfg := telemetry.DefaultConfig()
	telCfg.ServiceVersion = shake.ServiceVersion
	shutdownTelemetry, err := telemetry.Init(ctx, telCfg)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			log.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	svcOpts := []shake.ServiceOption{shake.WithServiceLogger(log)}
	if cfg.Journal.Enabled() {
		j, err := openJournal(cfg.Journal, log)
		if err != nil {
			return err
		}
		defer j.Close()
		svcOpts = append(svcOpts, shake.WithJournal(j))
	}
	svc := shake.NewService(cfg, svcOpts...)

	if serveWatch {
		if path := watchedConfigPath(); path != "" {
			w, err := config.NewWatcher(path, func(next *config.Config) {
				next.Server = svc.Config().Server
				svc.SetConfig(next)
			})
			if err != nil {
				log.Warn("Config reload disabled", slog.String("error", err.Error()))
			} else {
				defer w.Close()
				go func() {
					if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						log.Warn("Config watcher stopped", slog.String("error", err.Error()))
					}
				}()
			}
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           newRouter(svc, serveDebug),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting shake server", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down shake server")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// newRouter builds the gin engine serving the API under /v1, plus
// /metrics when the Prometheus exporter is installed.
func newRouter(svc *shake.Service, debug bool) *gin.Engine {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("shake"))
	if debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	shake.RegisterRoutes(v1, shake.NewHandlers(svc))
	if h := telemetry.MetricsHandler(); h != nil {
		router.GET("/metrics", gin.WrapH(h))
	}
	return router
}

func openJournal(jc config.JournalConfig, log *slog.Logger) (*journal.Journal, error) {
	jcfg := journal.InMemoryConfig()
	if !jc.InMemory {
		jcfg = journal.DefaultConfig(jc.Path)
	}
	jcfg.Logger = log
	j, err := journal.Open(jcfg)
	if err != nil {
		return nil, fmt.Errorf("opening run journal: %w", err)
	}
	log.Info("Run journal opened",
		slog.String("path", jc.Path),
		slog.Bool("in_memory", jc.InMemory),
		slog.Int("max_runs", jc.MaxRuns))
	return j, nil
}

// watchedConfigPath returns the explicit config path, if any.
func watchedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return os.Getenv(config.EnvConfigPath)
}
