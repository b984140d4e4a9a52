package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Cheertaboi/qris-discount-service/internal/api"
	"github.com/Cheertaboi/qris-discount-service/internal/api/middleware"
	"github.com/Cheertaboi/qris-discount-service/internal/concurrency"
	"github.com/Cheertaboi/qris-discount-service/internal/config"
	"github.com/Cheertaboi/qris-discount-service/internal/identity"
	"github.com/Cheertaboi/qris-discount-service/internal/payment"
	"github.com/Cheertaboi/qris-discount-service/internal/repository"
	"github.com/Cheertaboi/qris-discount-service/internal/service"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Serve the HTTP API and sweep old reservations",
	RunE:  runServer,
}

func runServer(cmd *cobra.Command, args []string) (err error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return err
	}
	log, err := config.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	deriver, err := identity.New(cfg.DeviceStrategy, cfg.Pepper)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	serviceConfig := service.Config{
		TTL:      cfg.ReservationTTL,
		Location: loc,
		Retry:    repository.RetryOptions{Attempts: cfg.SaveRetries},
	}
	engine := service.NewReservationService(log, store, deriver, serviceConfig)
	catalog := service.NewCatalogService(log, store, deriver, serviceConfig)

	var provider payment.Provider = payment.StaticProvider{}
	if cfg.ProviderURL != "" {
		provider = payment.NewHTTPProvider(cfg.ProviderURL, cfg.ProviderKey)
	} else {
		log.Warn("no payment provider configured; QR payloads are placeholders")
	}
	if cfg.AdminSecret == "" {
		log.Warn("admin secret not set; admin endpoints are locked")
	}

	handler := api.NewRouter(api.Deps{
		Log:           log,
		Engine:        engine,
		Catalog:       catalog,
		Provider:      provider,
		AdminSecret:   cfg.AdminSecret,
		WebhookSecret: cfg.WebhookSecret,
		ApplyLimit:    middleware.RateLimit{RequestsPerMinute: cfg.ApplyRatePerMin, Burst: cfg.ApplyBurst},
	})

	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting discount-service", zap.String("addr", cfg.Listen), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return concurrency.NewSweeper(log, engine, cfg.SweepInterval, cfg.Retention).Run(ctx)
	})
	group.Go(func() error {
		<-ctx.Done()
		// we received an interrupt signal, shut down.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("HTTP server shutdown", zap.Error(err))
		}
		return nil
	})

	err = group.Wait()
	log.Info("server stopped")
	return err
}
