/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/posthog/posthog-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/payrecon/api"
	"github.com/blnkfinance/payrecon/config"
	"github.com/blnkfinance/payrecon/internal/backups"
	trace "github.com/blnkfinance/payrecon/internal/traces"
)

const (
	heartbeatInterval = 5 * time.Minute
	shutdownTimeout   = 15 * time.Second
	certStoragePath   = "./certmagic"
)

// tlsServer builds an HTTPS server whose certificates CertMagic obtains and
// renews. Without a configured domain it manages localhost.
func tlsServer(ctx context.Context, r *gin.Engine, conf config.ServerConfig) (*http.Server, error) {
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = conf.Email
	cfg := certmagic.NewDefault()
	cfg.Storage = &certmagic.FileStorage{Path: certStoragePath}

	domains := []string{conf.Domain}
	if conf.Domain == "" {
		log.Println("No domain specified, defaulting to localhost")
		domains = []string{"localhost"}
	}

	if err := cfg.ManageSync(ctx, domains); err != nil {
		return nil, err
	}

	return &http.Server{
		Addr:      ":" + conf.Port,
		Handler:   r,
		TLSConfig: cfg.TLSConfig(),
	}, nil
}

// sendHeartbeat reports liveness to PostHog until ctx is done.
func sendHeartbeat(ctx context.Context, client posthog.Client, heartbeatID string) {
	ticker := time.NewTicker(heartbeatInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := client.Enqueue(posthog.Capture{
					DistinctId: heartbeatID,
					Event:      "server_heartbeat",
					Properties: map[string]interface{}{
						"timestamp": time.Now().UTC(),
					},
				}); err != nil {
					log.Printf("Failed to send heartbeat: %v", err)
				}
			}
		}
	}()
}

func initializePostHog(ctx context.Context, key string) posthog.Client {
	if key == "" {
		return nil
	}
	client, err := posthog.NewWithConfig(key, posthog.Config{Endpoint: "https://us.i.posthog.com"})
	if err != nil {
		logrus.WithError(err).Warn("posthog disabled")
		return nil
	}
	sendHeartbeat(ctx, client, uuid.New().String())
	return client
}

func initializeObservability(ctx context.Context, cfg *config.Configuration) (posthog.Client, func(context.Context) error, error) {
	if !cfg.EnableTelemetry {
		return nil, func(context.Context) error { return nil }, nil
	}

	shutdown, err := trace.SetupOTelSDK(ctx, cfg.ProjectName, cfg.OtelEndpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("error setting up OTel SDK: %v", err)
	}
	logrus.AddHook(trace.NewLogHook(nil))

	return initializePostHog(ctx, cfg.PostHogKey), shutdown, nil
}

// backupManager returns nil when no datasource can be read for backups.
func backupManager(app *reconInstance) api.Backupper {
	db, err := app.datasource()
	if err != nil {
		return nil
	}
	var uploader backups.Uploader
	if app.cnf.S3BucketName != "" {
		s3, err := backups.NewS3Uploader(app.cnf)
		if err != nil {
			logrus.WithError(err).Warn("S3 backups disabled")
		} else {
			uploader = s3
		}
	}
	return backups.NewBackupManager(app.cnf, db, uploader)
}

func startServer(ctx context.Context, router *gin.Engine, cfg config.ServerConfig) (*http.Server, <-chan error, error) {
	errCh := make(chan error, 1)

	if cfg.SSL {
		srv, err := tlsServer(ctx, router, cfg)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Starting HTTPS server on %s\n", cfg.Port)
		go func() { errCh <- srv.ListenAndServeTLS("", "") }()
		return srv, errCh, nil
	}

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	log.Printf("Starting server on http://localhost:%s", cfg.Port)
	go func() { errCh <- srv.ListenAndServe() }()
	return srv, errCh, nil
}

// serverCommands starts the HTTP ingress and the periodic sweepers and
// flushes the state on SIGINT or SIGTERM.
func serverCommands(app *reconInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start payrecon server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			phClient, shutdown, err := initializeObservability(ctx, app.cnf)
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()
			if phClient != nil {
				defer phClient.Close()
			}

			if err := app.setup(ctx); err != nil {
				return err
			}
			app.recon.StartSweepers(ctx)

			router := api.NewAPI(app.recon, backupManager(app)).Router()
			srv, errCh, err := startServer(ctx, router, app.cnf.Server)
			if err != nil {
				return err
			}

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					app.recon.Stop(context.Background())
					return err
				}
			case <-ctx.Done():
				logrus.Info("shutting down")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logrus.WithError(err).Error("server shutdown")
			}
			app.recon.Stop(shutdownCtx)
			return app.db.Close()
		},
	}

	return cmd
}
