package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	nats "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/example/account-service/config"
	"github.com/example/account-service/internal/adapters/gotrue"
	httpadapter "github.com/example/account-service/internal/adapters/http"
	apiv1 "github.com/example/account-service/internal/adapters/http/api/v1"
	handlers "github.com/example/account-service/internal/adapters/http/api/v1/handlers"
	sessionmw "github.com/example/account-service/internal/adapters/http/middleware"
	natsadapter "github.com/example/account-service/internal/adapters/nats"
	repo "github.com/example/account-service/internal/adapters/postgres"
	"github.com/example/account-service/internal/adapters/postgrest"
	"github.com/example/account-service/internal/metrics"
	"github.com/example/account-service/internal/tokenverify"
	"github.com/example/account-service/internal/usecase"
	pkglog "github.com/example/account-service/pkg/log"
)

type App struct {
	cfg      *config.Config
	logger   pkglog.Logger
	db       *gorm.DB
	natsConn *nats.Conn
	auth     *gotrue.Client
	manager  *usecase.SessionManager
	echo     *echo.Echo
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := pkglog.With(pkglog.New(cfg.AppEnv), pkglog.Fields{"app": cfg.AppName, "env": cfg.AppEnv})
	a := &App{cfg: cfg, logger: logger}

	if cfg.SupabaseJWTSecret == "" {
		logger.Warn().Msg("SUPABASE_JWT_SECRET not set, redirect tokens are decoded without signature checks")
	}
	parser := tokenverify.NewParser(cfg.SupabaseJWTSecret)
	authOpts := gotrue.Options{
		BaseURL:       cfg.SupabaseURL,
		AnonKey:       cfg.SupabaseAnonKey,
		Timeout:       cfg.HTTPTimeout,
		RefreshMargin: cfg.RefreshMargin,
		Parser:        parser,
	}
	if cfg.SessionFile != "" {
		authOpts.Store = gotrue.NewFileStore(cfg.SessionFile)
	}
	a.auth = gotrue.NewClient(authOpts, logger)

	profiles, err := a.profileStore(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	nc, err := connectNATS(cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("nats connect failed, continuing without bridge")
	}
	a.natsConn = nc

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewCollector(reg)

	var notifier usecase.ProfileNotifier
	var publisher *natsadapter.Publisher
	if nc != nil {
		publisher = natsadapter.NewPublisher(nc, cfg.NATSSessionChangedSubject, cfg.NATSProfileCreatedSubject, logger)
		notifier = publisher
		if err := natsadapter.NewProfileHandler(profiles).Subscribe(nc, cfg.NATSProfileGetSubject, cfg.NATSUsernameCheckSubject, cfg.AppName); err != nil {
			logger.Warn().Err(err).Msg("nats profile responder not subscribed")
		}
		if tokenverify.VerifiesSignature(parser) {
			if err := natsadapter.NewTokenHandler(parser, profiles).Subscribe(nc, cfg.NATSVerifySubject, cfg.AppName); err != nil {
				logger.Warn().Err(err).Msg("nats token responder not subscribed")
			}
		} else {
			logger.Warn().Str("subject", cfg.NATSVerifySubject).Msg("SUPABASE_JWT_SECRET not set, token responder disabled")
		}
	}

	a.manager = usecase.NewSessionManager(cfg, logger, a.auth, profiles, notifier, recorder)
	if err := a.manager.Start(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if publisher != nil {
		updates, _ := a.manager.Watch()
		go publisher.Run(ctx, updates)
	}

	handler := handlers.NewAccountHandler(a.manager)
	requireSession := sessionmw.NewSessionMiddleware(a.manager)
	router := httpadapter.NewRouter(cfg, logger, apiv1.NewRouter(handler, requireSession.Handler, cfg.RateLimit, cfg.RateBurst), reg)

	a.echo = echo.New()
	router.Setup(a.echo)
	return a, nil
}

func (a *App) profileStore(cfg *config.Config) (usecase.ProfileStore, error) {
	switch cfg.ProfileStore {
	case config.ProfileStoreREST:
		return postgrest.NewProfileClient(cfg.SupabaseURL, cfg.ProfileTable, cfg.SupabaseAnonKey, a.auth.AccessToken, cfg.HTTPTimeout), nil
	case config.ProfileStorePostgres:
		db, err := OpenDB(cfg)
		if err != nil {
			return nil, err
		}
		a.db = db
		if err := repo.Migrate(db); err != nil {
			return nil, err
		}
		return repo.NewProfileRepository(db), nil
	default:
		return nil, fmt.Errorf("unknown profile store %q", cfg.ProfileStore)
	}
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.echo.Shutdown(shutdownCtx)
	}()
	go func() {
		addr := fmt.Sprintf("%s:%s", a.cfg.HTTPHost, a.cfg.HTTPPort)
		a.logger.Info().Str("addr", addr).Msg("http server listening")
		errCh <- a.echo.Start(addr)
	}()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (a *App) Close() {
	if a.manager != nil {
		a.manager.Close()
	}
	if a.auth != nil {
		a.auth.Close()
	}
	if a.natsConn != nil {
		_ = a.natsConn.Drain()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// OpenDB connects to the profile database used by the postgres store.
func OpenDB(cfg *config.Config) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(buildDSN(cfg)), &gorm.Config{
		Logger:         loggerForGorm(cfg),
		NamingStrategy: schema.NamingStrategy{SingularTable: true},
		TranslateError: true,
	})
}

func connectNATS(cfg *config.Config) (*nats.Conn, error) {
	if cfg.NATSURL == "" {
		return nil, nil
	}
	return nats.Connect(cfg.NATSURL, nats.Name(cfg.AppName))
}

func buildDSN(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s", cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)
}

func loggerForGorm(cfg *config.Config) logger.Interface {
	level := logger.Warn
	if cfg.AppEnv == "local" {
		level = logger.Info
	}
	return logger.Default.LogMode(level)
}
