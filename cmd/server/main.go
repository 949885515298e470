package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tenauth/go-identity-server/auth"
	"github.com/tenauth/go-identity-server/internal/config"
	"github.com/tenauth/go-identity-server/notifier"
	"github.com/tenauth/go-identity-server/otp"
	"github.com/tenauth/go-identity-server/otp/redisstore"
	"github.com/tenauth/go-identity-server/otp/storefakes"
	"github.com/tenauth/go-identity-server/projects"
	projectpostgres "github.com/tenauth/go-identity-server/projects/postgres"
	projectrepofakes "github.com/tenauth/go-identity-server/projects/repofakes"
	"github.com/tenauth/go-identity-server/secrets"
	"github.com/tenauth/go-identity-server/server"
	"github.com/tenauth/go-identity-server/sessions"
	"github.com/tenauth/go-identity-server/sessions/redisrepo"
	sessionrepofakes "github.com/tenauth/go-identity-server/sessions/repofakes"
	"github.com/tenauth/go-identity-server/signup"
	"github.com/tenauth/go-identity-server/tenants"
	tenantpostgres "github.com/tenauth/go-identity-server/tenants/postgres"
	tenantrepofakes "github.com/tenauth/go-identity-server/tenants/repofakes"
	"github.com/tenauth/go-identity-server/token"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatal().Err(err).Msg("Error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("config.New: %w", err)
	}
	displayAppname(cfg.AppName)

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.Env == "DEV" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	srv, err := buildServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("buildServer: %w", err)
	}

	httpServer := &http.Server{Addr: cfg.Addr(), Handler: srv}
	go listenAndServe(httpServer, logger)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

func buildServer(cfg *config.Config, logger zerolog.Logger) (*server.Server, error) {
	tenantRepo, projectRepo, err := buildDirectoryRepos(cfg, logger)
	if err != nil {
		return nil, err
	}
	sessionRepo, otpStore := buildVolatileStores(cfg, logger)

	cipher, err := secrets.New([]byte(cfg.EncryptionKey))
	if err != nil {
		return nil, fmt.Errorf("secrets.New: %w", err)
	}

	sessionMgr, err := sessions.NewManager(sessionRepo,
		sessions.WithTTL(cfg.SessionTTL),
		sessions.WithMaxSimultaneous(cfg.MaxSimultaneousSessions),
		sessions.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("sessions.NewManager: %w", err)
	}

	minter, err := token.NewMinter([]byte(cfg.JWTSecret), cfg.TokenIssuer, cfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("token.NewMinter: %w", err)
	}

	mailer := buildNotifier(cfg, logger)

	signupService, err := signup.New(signup.Deps{
		Tenants:  tenantRepo,
		OtpStore: otpStore,
		Notifier: mailer,
		Cipher:   cipher,
	}, signup.WithOtpPolicy(cfg.OtpLength, cfg.OtpTTL), signup.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("signup.New: %w", err)
	}

	authService, err := auth.New(auth.Deps{
		Tenants:  tenantRepo,
		Sessions: sessionMgr,
		Minter:   minter,
	}, auth.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("auth.New: %w", err)
	}

	projectService, err := projects.New(projects.Deps{
		Repo:     projectRepo,
		OtpStore: otpStore,
		Notifier: mailer,
	}, projects.WithOtpPolicy(cfg.OtpLength, cfg.OtpTTL), projects.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("projects.New: %w", err)
	}

	return server.New(cfg, server.Deps{
		Signup:   signupService,
		Auth:     authService,
		Projects: projectService,
	}, logger)
}

func buildDirectoryRepos(cfg *config.Config, logger zerolog.Logger) (tenants.Repo, projects.Repo, error) {
	if cfg.PostgresDSN == "" {
		logger.Warn().Msg("POSTGRES_DSN not set, using in-memory tenant and project repos")
		return tenantrepofakes.NewFakeTenantRepo(), projectrepofakes.NewFakeProjectRepo(), nil
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}

	tenantRepo := tenantpostgres.New(db)
	if err := tenantRepo.Migrate(context.Background()); err != nil {
		return nil, nil, fmt.Errorf("tenantpostgres.Migrate: %w", err)
	}
	projectRepo := projectpostgres.New(db)
	if err := projectRepo.Migrate(context.Background()); err != nil {
		return nil, nil, fmt.Errorf("projectpostgres.Migrate: %w", err)
	}
	return tenantRepo, projectRepo, nil
}

func buildVolatileStores(cfg *config.Config, logger zerolog.Logger) (sessions.Repo, otp.Store) {
	if cfg.RedisAddr == "" {
		logger.Warn().Msg("REDIS_ADDR not set, using in-memory session and otp stores")
		return sessionrepofakes.NewFakeSessionRepo(), storefakes.NewFakeOtpStore()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return redisrepo.New(client), redisstore.New(client)
}

func buildNotifier(cfg *config.Config, logger zerolog.Logger) notifier.Notifier {
	if !cfg.SmtpConfigured() {
		logger.Warn().Msg("SMTP not configured, notifications go to the log")
		return notifier.NewLogNotifier(logger)
	}
	return notifier.NewSMTPNotifier(cfg.SmtpHost, cfg.SmtpPort, cfg.SmtpAccount, cfg.SmtpPassword, cfg.SmtpFrom)
}

func listenAndServe(server *http.Server, logger zerolog.Logger) {
	logger.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
