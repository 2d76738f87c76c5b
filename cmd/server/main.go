package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vizspace/internal/account"
	"vizspace/internal/activity"
	"vizspace/internal/auth"
	"vizspace/internal/chart"
	"vizspace/internal/config"
	"vizspace/internal/connection"
	"vizspace/internal/dashboard"
	"vizspace/internal/database"
	"vizspace/internal/datasource"
	"vizspace/internal/handler"
	"vizspace/internal/invitation"
	"vizspace/internal/isolation"
	"vizspace/internal/jwtauth"
	"vizspace/internal/membership"
	"vizspace/internal/middleware"
	"vizspace/internal/password"
	"vizspace/internal/permission"
	"vizspace/internal/user"
	"vizspace/internal/vault"
	"vizspace/internal/workspace"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

const (
	settingsCacheSize = 1024
	settingsCacheTTL  = 5 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	logger := newLogger(cfg)

	db, err := database.Open(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Warn("error closing database connection")
		}
	}()
	logger.Info("database connection established")

	migrationsPath := database.MigrationsPath()
	if err := db.MigrateUp(migrationsPath); err != nil {
		logger.WithError(err).Fatal("failed to run migrations")
	}
	version, dirty, err := db.MigrateVersion(migrationsPath)
	switch {
	case err != nil:
		logger.WithError(err).Warn("failed to get migration version")
	case dirty:
		logger.WithField("version", version).Warn("database is in dirty state; a previous migration failed and needs manual intervention")
	default:
		logger.WithField("version", version).Info("database migrations complete")
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = database.OpenRedis(cfg.Redis)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to redis")
		}
		defer redisClient.Close()
		logger.Info("redis connection established")
	}

	v, err := vault.New(cfg.Encryption.Key)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize vault")
	}
	tokens, err := jwtauth.New(cfg.Auth.SecretKey, cfg.Auth.AccessTokenTTL)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize token authority")
	}

	guard := isolation.NewGuard(logger)
	hasher := password.Bcrypt{}

	users := user.NewManager(user.NewDatastore(db), hasher)
	members := membership.NewStore(db, guard)
	connDS := connection.NewDatastore(db)
	evaluator := permission.NewEvaluator(members, connection.NewGrantStore(connDS))
	connections := connection.NewManager(connDS, v, guard, evaluator, members)
	workspaces := workspace.NewManager(workspace.NewDatastore(db), members, workspace.NewSettingsCache(settingsCacheSize, settingsCacheTTL))
	factory := workspace.NewFactory(db, guard)
	sources := datasource.NewManager(datasource.NewDatastore(db), guard, connections)
	activityStore := activity.NewStore(db, guard)

	inviteOpts := []invitation.Option{invitation.WithCapacity(workspaces)}
	if redisClient != nil {
		inviteOpts = append(inviteOpts, invitation.WithLedger(invitation.NewRedisLedger(redisClient)))
	}
	invitations, err := invitation.NewService(cfg.Auth.SecretKey, workspaces, members, inviteOpts...)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize invitation service")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := middleware.NewMetrics(registry)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, handler.Deps{
		Authenticator: auth.NewTokenAuthenticator(tokens, users),
		Guard:         middleware.NewWorkspaceGuard(evaluator, metrics, logger),
		Gatherer:      registry,
		Logger:        logger,
		Health:        handler.NewHealthHandler(db, redisClient, logger),
		Accounts:      handler.NewAccountHandler(account.NewService(db, hasher, factory, users, tokens), users, logger),
		Users:         handler.NewUserHandler(users, members, user.NewAdmins(cfg.Auth.SystemAdmins), logger),
		Workspaces:    handler.NewWorkspaceHandler(factory, workspaces, members, users, activityStore, logger),
		Members: handler.NewMemberHandler(workspaces, members, users, invitations, invitation.NewLogMailer(logger),
			cfg.FrontendBaseURL, activityStore, logger),
		Connections: handler.NewConnectionHandler(connections, activityStore, logger),
		Dashboards:  handler.NewDashboardHandler(dashboard.NewManager(dashboard.NewDatastore(db), guard, workspaces), activityStore, logger),
		Charts:      handler.NewChartHandler(chart.NewManager(chart.NewDatastore(db), guard, sources), sources, activityStore, logger),
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           middleware.Recoverer(logger)(middleware.RequestLogger(logger)(metrics.Instrument(mux))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{"port": cfg.Port, "env": cfg.Environment}).Info("vizspace server starting")
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	case sig := <-shutdown:
		logger.WithField("signal", sig.String()).Info("initiating graceful shutdown")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.WithError(err).Warn("graceful shutdown failed, forcing shutdown")
			if err := server.Close(); err != nil {
				logger.WithError(err).Error("forced shutdown failed")
			}
		}
		logger.Info("server shutdown complete")
	}
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	if !cfg.IsDevelopment() {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithField("log_level", cfg.LogLevel).Warn("unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
