package main

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	otelx "github.com/zerion/slotbook/libs/otel"
	"github.com/zerion/slotbook/libs/runtime"
	"github.com/zerion/slotbook/services/booking-service/internal/settings"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the booking HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := settings.Load()
			if err != nil {
				return err
			}
			logger := runtime.NewLoggerWithLevel(cmd.OutOrStdout(), cfg.ServiceName, cfg.LogLevel)

			ctx, stop := runtime.SignalContext()
			defer stop()

			otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.ServiceName))
			if err != nil {
				logger.Error("otel setup failed", "err", err)
			} else {
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = otelShutdown(shutdownCtx)
				}()
			}

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				logger.Error("startup failed", "err", err)
				return err
			}
			defer a.close()

			logger.Info("booking service configured",
				"ledger", cfg.Ledger.Driver,
				"timezone", cfg.TimeZone,
				"calendar", cfg.Google.CalendarID != "",
				"sheet", cfg.Google.SheetID != "",
				"redis", cfg.RedisAddr != "",
				"kafka", cfg.KafkaBrokers != "",
			)

			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           a.handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			return runtime.Serve(ctx, srv, logger, cfg.ShutdownTimeout)
		},
	}
}
