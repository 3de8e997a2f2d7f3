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
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/triage/triage/internal/config"
	"github.com/triage/triage/internal/domain/alert"
	"github.com/triage/triage/internal/domain/assessment"
	"github.com/triage/triage/internal/domain/doctor"
	"github.com/triage/triage/internal/domain/patient"
	"github.com/triage/triage/internal/domain/queue"
	"github.com/triage/triage/internal/domain/triage"
	"github.com/triage/triage/internal/domain/visit"
	"github.com/triage/triage/internal/platform/auth"
	"github.com/triage/triage/internal/platform/db"
	"github.com/triage/triage/internal/platform/middleware"
	"github.com/triage/triage/internal/platform/push"
	"github.com/triage/triage/internal/platform/ws"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "triage-server",
		Short: "AI-assisted patient triage API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the triage API server",
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

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
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

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
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
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Repositories
	patientRepo := patient.NewRepoPG(pool)
	visitRepo := visit.NewRepoPG(pool)
	resultRepo := triage.NewResultRepoPG(pool)
	queueRepo := queue.NewRepoPG(pool)
	alertRepo := alert.NewRepoPG(pool)
	doctorRepo := doctor.NewRepoPG(pool)

	// Realtime hub
	hub := ws.NewHub(logger)

	// Scoring
	engine := triage.NewEngine()
	var scorer triage.Scorer = triage.EngineScorer(engine)
	if cfg.RemoteScoringEnabled() {
		remote := triage.NewRemoteScorer(triage.RemoteConfig{
			Provider: cfg.AIProvider,
			Endpoint: cfg.AIEndpoint,
			APIKey:   cfg.AIAPIKey,
			Model:    cfg.AIModel,
			Timeout:  cfg.AITimeout,
		})
		scorer = &triage.FallbackScorer{
			Primary:  remote,
			Fallback: triage.EngineScorer(engine),
			Enabled:  cfg.AIFallbackEnabled,
			Logger:   logger,
		}
		logger.Info().Str("provider", cfg.AIProvider).Bool("fallback", cfg.AIFallbackEnabled).Msg("remote scoring enabled")
	}

	// Services
	queueMgr := queue.NewManager(queueRepo, logger)
	pusher := push.NewClient(push.Config{
		Endpoint: cfg.PushEndpoint,
		APIKey:   cfg.PushAPIKey,
		Timeout:  cfg.PushTimeout,
	}, logger)
	alertSvc := alert.NewService(alertRepo, doctorRepo, pusher, hub, logger)
	patientSvc := patient.NewService(patientRepo)
	doctorSvc := doctor.NewService(doctorRepo, visitRepo, queueMgr, logger)
	assessSvc := assessment.NewService(patientRepo, visitRepo, resultRepo, scorer, engine,
		queueMgr, alertSvc, hub, logger)

	// Topic snapshots for realtime listeners
	hub.RegisterTopic(ws.TopicQueue, func(ctx context.Context) (interface{}, error) {
		entries, err := queueMgr.Waiting(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"queue": entries, "count": len(entries)}, nil
	})
	hub.RegisterTopic(ws.TopicAlerts, func(ctx context.Context) (interface{}, error) {
		alerts, err := alertSvc.Active(ctx, 0)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"alerts": alerts, "count": len(alerts)}, nil
	})

	// Long-wait sweeper
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	sweeper := alert.NewSweeper(queueMgr, alertSvc, hub, cfg.SweepInterval, logger)
	go sweeper.Run(sweepCtx)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	// Realtime endpoints stay outside auth so dashboards can connect with
	// query-less websocket clients.
	wsHandler := ws.NewHandler(hub)
	wsHandler.RegisterRoutes(e.Group("/ws"))

	// API group with auth
	apiV1 := e.Group("/api/v1")
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware())
	} else if cfg.JWTSecret != "" {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.JWTSecret),
		}))
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}))
	}

	// Patient-facing routes
	patient.NewHandler(patientSvc, visitRepo).RegisterRoutes(apiV1)
	assessment.NewHandler(assessSvc).RegisterRoutes(apiV1)

	// Clinician routes
	docGroup := apiV1.Group("/doctor", auth.RequireRole(auth.RoleDoctor))
	queue.NewHandler(queueMgr, visitRepo, hub, logger).RegisterRoutes(docGroup)
	alert.NewHandler(alertSvc).RegisterRoutes(docGroup)
	doctor.NewHandler(doctorSvc).RegisterRoutes(docGroup)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopSweeper()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
