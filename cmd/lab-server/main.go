package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vitalab/vitalab/internal/config"
	"github.com/vitalab/vitalab/internal/domain/booking"
	"github.com/vitalab/vitalab/internal/domain/catalog"
	"github.com/vitalab/vitalab/internal/domain/company"
	"github.com/vitalab/vitalab/internal/domain/identity"
	"github.com/vitalab/vitalab/internal/domain/report"
	"github.com/vitalab/vitalab/internal/platform/auth"
	"github.com/vitalab/vitalab/internal/platform/blobstore"
	"github.com/vitalab/vitalab/internal/platform/db"
	"github.com/vitalab/vitalab/internal/platform/httperr"
	"github.com/vitalab/vitalab/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lab-server",
		Short: "Clinical lab services API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s).\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the database with demo data",
		RunE: func(cmd *cobra.Command, args []string) error {
			users, _ := cmd.Flags().GetInt("users")
			tests, _ := cmd.Flags().GetInt("tests")
			bookings, _ := cmd.Flags().GetInt("bookings")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			return runSeed(ctx, pool, users, tests, bookings)
		},
	}
	cmd.Flags().Int("users", 20, "Number of demo users")
	cmd.Flags().Int("tests", 30, "Number of demo lab tests")
	cmd.Flags().Int("bookings", 50, "Number of demo bookings")
	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	store, err := newObjectStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize object storage")
	}

	tm := auth.NewTokenManager([]byte(cfg.EffectiveJWTSecret()), cfg.AccessTokenTTL(), cfg.RefreshTokenTTL())

	// Repositories and services
	userRepo := identity.NewUserRepoPG(pool)
	identitySvc := identity.NewService(userRepo, tm, cfg.AccessTokenTTL())

	catalogSvc := catalog.NewService(catalog.NewLabTestRepoPG(pool))
	bookingSvc := booking.NewService(booking.NewBookingRepoPG(pool), catalogSvc)
	reportSvc := report.NewService(report.NewReportRepoPG(pool), store, cfg.S3ReportsPrefix, logger)
	companySvc := company.NewService(company.NewCompanyRepoPG(pool), company.NewContactMessageRepoPG(pool))

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httperr.NewHTTPErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(time.Duration(cfg.RequestTimeout) * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	authn := auth.Authenticate(tm, identitySvc)
	optionalAuthn := auth.OptionalAuthenticate(tm, identitySvc)

	// The API group resolves an optional principal before rate limiting so
	// authenticated traffic is keyed by user rather than source IP.
	api := e.Group("/api/v1", optionalAuthn)
	if cfg.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(newWindowStore(cfg, logger), logger)
		api.Use(limiter.Middleware())
		e.GET("/health", db.HealthHandler(pool), limiter.Middleware())
	} else {
		e.GET("/health", db.HealthHandler(pool))
	}

	identity.NewHandler(identitySvc).RegisterRoutes(api, authn)
	catalog.NewHandler(catalogSvc).RegisterRoutes(api, authn, optionalAuthn)
	booking.NewHandler(bookingSvc).RegisterRoutes(api, authn)
	report.NewHandler(reportSvc).RegisterRoutes(api, authn)
	company.NewHandler(companySvc).RegisterRoutes(api, authn, optionalAuthn)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newWindowStore picks the rate-limit backend: Redis when configured, so
// multiple instances share windows, otherwise in-process memory.
func newWindowStore(cfg *config.Config, logger zerolog.Logger) middleware.WindowStore {
	if cfg.RedisURL == "" {
		return middleware.NewMemoryWindowStore()
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	logger.Info().Msg("using redis rate-limit store")
	return middleware.NewRedisWindowStore(redis.NewClient(opts))
}

// newObjectStore picks the report file backend. Production requires S3; in
// development a missing AWS configuration falls back to in-memory storage.
func newObjectStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (blobstore.ObjectStore, error) {
	if cfg.AWSAccessKeyID == "" && cfg.IsDev() {
		logger.Warn().Msg("AWS credentials not configured, storing report files in memory")
		return blobstore.NewMemoryStore(), nil
	}
	return blobstore.NewS3Store(ctx, blobstore.S3Config{
		Region:    cfg.AWSRegion,
		Bucket:    cfg.S3Bucket,
		AccessKey: cfg.AWSAccessKeyID,
		SecretKey: cfg.AWSSecretAccessKey,
	})
}

