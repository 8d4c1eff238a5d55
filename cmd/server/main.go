package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/errgroup"

	"abapractice/internal/config"
	"abapractice/internal/database"
	"abapractice/internal/handlers"
	"abapractice/internal/llm"
	"abapractice/internal/logging"
	"abapractice/internal/repository"
	"abapractice/internal/security"
	"abapractice/internal/service"
)

const (
	stepConfig     = "Loading configuration"
	stepDatabase   = "Connecting to database"
	stepMigrations = "Running migrations"
	stepServices   = "Starting services"
)

func main() {
	configDir := flag.String("config", "config", "directory holding config.yaml")
	flag.Parse()

	loader, err := config.Load(*configDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := loader.Config()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, atom, err := logging.Init(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	loader.Watch(func(next *config.Config, err error) {
		if err != nil {
			logger.Warn("config reload failed", zap.Error(err))
			return
		}
		if err := logging.SetLevel(atom, next.LogLevel); err != nil {
			logger.Warn("ignoring log level from reloaded config", zap.Error(err))
			return
		}
		logger.Info("config reloaded", zap.String("log_level", next.LogLevel))
	})

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("server stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startup := handlers.NewStartupStatus(stepConfig, stepDatabase, stepMigrations, stepServices)
	startup.CompleteStep(stepConfig)

	startup.SetCurrentStep(stepDatabase)
	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	logger.Info("database connection established", zap.String("type", cfg.DatabaseType))
	startup.CompleteStep(stepDatabase)

	startup.SetCurrentStep(stepMigrations)
	if err := db.RunMigrations(ctx, cfg.MigrationsPath); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("migrations completed")
	startup.CompleteStep(stepMigrations)

	startup.SetCurrentStep(stepServices)
	emailService, err := service.NewEmailService(ctx, cfg.AWSRegion, cfg.SESFromEmail, cfg.SESFromName, cfg.AppBaseURL, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize email: %w", err)
	}
	if !emailService.IsEnabled() {
		logger.Warn("email delivery disabled; set ses_from_email to enable it")
	}

	authService := service.NewAuthService(db, emailService, cfg.SessionDuration, logger)
	familyService := service.NewFamilyAccessService(
		authService,
		repository.NewProfileRepository(db),
		repository.NewFamilyAccessRepository(db),
		repository.NewPatientRepository(db),
		emailService,
		cfg.RemoteTimeout,
		logger,
	)
	patientService := service.NewPatientService(db, logger)
	reportService := service.NewReportService(db, familyService, logger)
	subscriptionService := service.NewSubscriptionService(db, logger)
	backupService := service.NewBackupService(db, logger)

	var completer llm.Completer
	client, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, logger)
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		logger.Warn("SOAP drafting disabled; set openai_api_key to enable it")
	case err != nil:
		return fmt.Errorf("failed to initialize llm client: %w", err)
	default:
		completer = client
	}
	soapService := service.NewSOAPService(db, completer, cfg.RemoteTimeout, logger)

	csrf := security.NewCSRFGenerator(cfg.CSRFSecret)
	limiter := security.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow).TrustProxyHeaders(cfg.TrustProxyHeaders)
	middleware := handlers.NewMiddleware(authService, subscriptionService, familyService, csrf, limiter, logger)

	redirectBase := cfg.OAuthRedirectBaseURL
	if redirectBase == "" {
		redirectBase = cfg.AppBaseURL
	}

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, middleware, handlers.Handlers{
		Auth:    handlers.NewAuthHandler(authService, csrf, oauthProviders(cfg), redirectBase, cfg.AppBaseURL, logger),
		Patient: handlers.NewPatientHandler(patientService, logger),
		Report:  handlers.NewReportHandler(reportService, logger),
		Family:  handlers.NewFamilyHandler(familyService, logger),
		Admin:   handlers.NewAdminHandler(subscriptionService, backupService, logger),
		SOAP:    handlers.NewSOAPHandler(soapService, logger),
		Health:  handlers.NewHealthHandler(db, startup),
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	startup.CompleteStep(stepServices)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handlers.Logging(logger, mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", zap.String("addr", server.Addr))
		startup.MarkReady()
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		limiter.Run(gctx, cfg.RateLimitWindow)
		return nil
	})
	g.Go(func() error {
		cleanupExpired(gctx, authService, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func oauthProviders(cfg *config.Config) map[string]handlers.OAuthProvider {
	return map[string]handlers.OAuthProvider{
		"google": {
			Name:  "google",
			Label: "Google",
			Config: &oauth2.Config{
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				Endpoint:     google.Endpoint,
				Scopes:       []string{"openid", "email", "profile"},
			},
			UserInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		},
		"apple": {
			Name:  "apple",
			Label: "Apple",
			Config: &oauth2.Config{
				ClientID:     cfg.AppleClientID,
				ClientSecret: cfg.AppleClientSecret,
				Endpoint: oauth2.Endpoint{
					AuthURL:  "https://appleid.apple.com/auth/authorize",
					TokenURL: "https://appleid.apple.com/auth/token",
				},
				Scopes: []string{"name", "email"},
			},
			AuthParams: map[string]string{
				"response_mode": "query",
			},
		},
	}
}

// cleanupExpired removes expired sessions and reset tokens every hour
func cleanupExpired(ctx context.Context, authService *service.AuthService, logger *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := authService.CleanupExpired(ctx); err != nil {
				logger.Error("error cleaning up expired sessions", zap.Error(err))
			}
		}
	}
}
