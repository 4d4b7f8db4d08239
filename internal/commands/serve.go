package commands

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"emperror.dev/errors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"metricwatch/internal/routes"
	"metricwatch/internal/services"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the sampler and the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	store := services.NewMetricsStore(cfg.Store.Capacity)
	telemetry := services.NewTelemetry(store)

	hub := services.NewWebSocketHub(logger)
	hub.Start()
	defer hub.Stop()

	sampler := services.NewSampler(services.NewHostReader(cfg.Sampler.DiskPath), logger)
	scheduler := services.NewScheduler(sampler, store, logger,
		services.WithSampleInterval(cfg.Sampler.Interval),
		services.WithSampleTimeout(cfg.Sampler.Timeout),
		services.WithPruneInterval(cfg.Store.PruneInterval),
		services.WithRetention(cfg.Store.Retention),
		services.WithPublisher(hub),
		services.WithTelemetry(telemetry),
	)

	query := services.NewQueryService(store, logger,
		services.WithBucketWidths(cfg.Query.HourlyBucket, cfg.Query.DailyBucket),
		services.WithMaxResults(cfg.Store.MaxQueryResults),
		services.WithResultCache(cfg.Query.CacheTTL),
	)
	query.Start()
	defer query.Stop()

	var auth *services.AuthService
	if cfg.Auth.Enabled {
		var err error
		if auth, err = services.NewAuthService(authConfig(), logger); err != nil {
			return err
		}
	} else {
		logger.Warn().Msg("Authentication is disabled, metrics are served to any client")
	}

	gin.SetMode(gin.ReleaseMode)
	router := routes.NewRouter(routes.RouterConfig{
		Query:          query,
		Hub:            hub,
		Auth:           auth,
		Telemetry:      telemetry,
		Logger:         logger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedIPs:     cfg.Server.AllowedIPs,
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
	})

	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Bool("tls", cfg.TLSEnabled()).Msg("HTTP server listening")
		var err error
		if cfg.TLSEnabled() {
			err = srv.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return errors.Wrap(err, "http server")
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown http server")
	}
	return nil
}
