package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"hrsecurity/config"
	"hrsecurity/handler"
	"hrsecurity/model"
	"hrsecurity/repository"
	"hrsecurity/services"
	"hrsecurity/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type eventBackend interface {
	services.EventStore
	handler.EventLister
}

type securityBackend interface {
	services.TrustedDeviceStore
	services.CountryCache
	services.RevocationList
}

// stores groups the persistence backends picked at startup.
type stores struct {
	sessions   services.SessionStore
	events     eventBackend
	identities services.IdentityStore
	security   securityBackend
	close      func()
}

func openStores(ctx context.Context, cfg *config.Config, clock utils.Clock, logger *zap.Logger) (*stores, error) {
	s := &stores{close: func() {}}

	if cfg.IsTest() {
		logger.Warn("GO_ENV=test: using in-memory session, event and identity stores")
		s.sessions = repository.NewMemorySessionStore()
		s.events = repository.NewMemoryEventStore()
		s.identities = repository.NewMemoryIdentityStore()
	} else {
		client, err := utils.NewMongoClient(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.Database.DatabaseName)
		if err := repository.SetupIndexes(ctx, db, cfg.Database); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		s.sessions = repository.GetSessionRepo(db, cfg.Database.SessionsCollection)
		s.events = repository.GetEventRepo(db, cfg.Database.EventsCollection)
		s.identities = repository.GetIdentityRepo(db, cfg.Database.IdentityCollection)
		s.close = chainClose(s.close, func() { disconnect(client, logger) })
		logger.Info("connected to MongoDB", zap.String("database", cfg.Database.DatabaseName))
	}

	if cfg.Redis.URL == "" {
		logger.Warn("REDIS_URL not set: trusted devices and token revocations are kept in memory")
		s.security = services.NewMemorySecurityStore(clock)
		return s, nil
	}
	redisStore, err := services.NewRedisSecurityStore(ctx, cfg.Redis.URL, cfg.Security.TrustedDeviceTTL)
	if err != nil {
		s.close()
		return nil, err
	}
	s.security = redisStore
	s.close = chainClose(s.close, func() {
		if err := redisStore.Close(); err != nil {
			logger.Warn("failed to close Redis", zap.Error(err))
		}
	})
	logger.Info("connected to Redis")
	return s, nil
}

func chainClose(first, next func()) func() {
	return func() {
		next()
		first()
	}
}

func disconnect(client *mongo.Client, logger *zap.Logger) {
	if err := client.Disconnect(context.Background()); err != nil {
		logger.Warn("failed to disconnect MongoDB", zap.Error(err))
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := utils.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := utils.RealClock{}

	st, err := openStores(ctx, cfg, clock, logger)
	if err != nil {
		return err
	}
	defer st.close()

	eventLog := services.NewEventLog(st.events, services.EventLogOptions{
		QueueSize:    cfg.Security.EventQueueSize,
		WriteTimeout: cfg.Security.StoreTimeout,
		Audit:        utils.NewAuditLogger(cfg.Log),
		Logger:       logger,
	})
	defer func() { _ = eventLog.Close() }()

	tokens := services.NewJWTVerifier(cfg.JWT, clock, st.security, st.identities)

	manager, err := services.NewSessionManager(services.SessionManagerDeps{
		Config:         cfg.Security,
		Clock:          clock,
		Verifier:       tokens,
		Resolver:       services.NewChainResolver(cfg.Geo, cfg.Security.ResolverTimeout, logger),
		Fingerprints:   services.NewFingerprintGenerator(clock, logger),
		TrustedDevices: st.security,
		Risk:           services.NewRiskEngine(cfg.Security, st.security, logger),
		Sessions:       st.sessions,
		Events:         eventLog,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	engine := &handler.Engine{
		Auth:     services.NewAuthenticator(st.identities, clock, logger),
		Sessions: manager,
		Tokens:   tokens,
		Events:   st.events,
		Logger:   logger,
	}
	handler.ReleaseExpiredCredentials(engine)

	if _, err := manager.ExpireStale(ctx); err != nil {
		logger.Warn("startup sweep of stale sessions failed", zap.Error(err))
	}

	router := handler.SetupRouter(engine, cfg.HTTP)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown incomplete", zap.Error(err))
	}

	manager.Stop(shutdownCtx, model.LogoutReasonLoggedOut)
	if err := eventLog.Flush(shutdownCtx); err != nil {
		logger.Warn("security events not flushed before shutdown", zap.Error(err))
	}
	logger.Info("server shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("hrsecurity: %v", err)
	}
}
