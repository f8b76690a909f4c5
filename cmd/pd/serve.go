package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"protodesk/internal/app"
	"protodesk/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	var legacyHeader, noNotifier bool
	var maxUpload int64
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the reminder notifier",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("PROTODESK_JWT_SECRET is required for bearer auth")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withApp(ctx, func(ctx context.Context, a *app.Context) error {
				handler, err := server.New(server.Config{
					Engine:         a.Engine,
					BasePath:       basePath,
					Logger:         logger.Named("http"),
					MaxUploadBytes: maxUpload,
					Auth: server.AuthConfig{
						JWTSecret:              secret,
						AllowLegacyActorHeader: legacyHeader,
						Logger:                 logger.Named("auth"),
					},
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

				g, ctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					logger.Info("listening", zap.String("addr", addr), zap.String("base_path", basePath))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
				if !noNotifier {
					n := &server.Notifier{
						Engine:    a.Engine,
						Webhooks:  a.Config.Reminders.Webhooks,
						Interval:  a.Config.ReminderInterval(),
						Lookahead: a.Config.ReminderLookahead(),
						Logger:    logger.Named("notifier"),
					}
					g.Go(func() error { return n.Run(ctx) })
				}
				fmt.Printf("Serving protodesk API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				return g.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&legacyHeader, "allow-actor-header", false, "trust X-Actor-Id without credentials (local use only)")
	cmd.Flags().BoolVar(&noNotifier, "no-notifier", false, "do not post due reminders to webhooks")
	cmd.Flags().Int64Var(&maxUpload, "max-upload-bytes", 32<<20, "largest accepted attachment upload")
	return cmd
}
