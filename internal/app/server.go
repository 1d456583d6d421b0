// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"tourism-portal/internal/config"
	"tourism-portal/internal/db"
	authHandler "tourism-portal/internal/handlers/auth"
	"tourism-portal/internal/middleware"
	"tourism-portal/internal/pkg/jwt"
	"tourism-portal/internal/pkg/session"
	"tourism-portal/internal/repository/postgres"
	authUsecase "tourism-portal/internal/service/auth"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	mu          sync.Mutex
	cfg         config.AppConfig
	logger      *zap.Logger
	httpServer  *http.Server
	pool        *pgxpool.Pool
	redis       *redis.Client
	authService *authUsecase.AuthService
}

func NewServer(cfg config.AppConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{cfg: cfg, logger: logger}
}

// Start connects storage, wires the auth stack and serves HTTP until the
// server is shut down. It returns nil after a graceful Shutdown.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	s.mu.Lock()
	s.pool = pool
	s.mu.Unlock()
	s.logger.Info("connected to PostgreSQL")

	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(ctx, db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		DB:       s.cfg.RedisDB,
		PoolSize: s.cfg.RedisPoolSize,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	s.mu.Lock()
	s.redis = redisClient
	s.mu.Unlock()
	s.logger.Info("connected to Redis", zap.String("addr", s.cfg.RedisAddr))

	// ----- JWT Manager -----
	jwtManager, err := jwt.LoadAndBuild(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT manager: %w", err)
	}

	// ----- Repositories -----
	authRepo := postgres.NewAuthRepository(pool)
	teamRepo := postgres.NewTeamRepository(pool)

	// ----- Session Manager & Rate Limiter -----
	sessionManager := session.NewManager(redisClient, authRepo, s.logger.Named("session"))
	rateLimiter := session.NewRateLimiter(redisClient, int64(s.cfg.LoginMaxAttempts), s.cfg.LoginWindow)

	// ----- Services -----
	s.authService = authUsecase.NewAuthService(
		authRepo,
		teamRepo,
		jwtManager,
		sessionManager,
		rateLimiter,
		authUsecase.Options{
			MaxFailedAttempts: s.cfg.AccountMaxFailed,
			LockDuration:      s.cfg.AccountLockPeriod,
		},
		s.logger.Named("auth"),
	)

	if s.cfg.SuperAdminEmail != "" {
		if err := s.authService.EnsureSuperAdminExists(ctx, s.cfg.SuperAdminEmail, s.cfg.SuperAdminPassword, s.cfg.SuperAdminName); err != nil {
			s.logger.Error("failed to ensure super admin", zap.Error(err))
		}
	}

	// ----- HTTP -----
	engine := NewEngine(s.logger, s.cfg.AllowedOrigins)
	SetupRouter(engine, s.logger, &Handlers{
		AuthHandler: authHandler.NewAuthHandler(s.authService, authHandler.CookieConfig{
			Name:     s.cfg.CookieName,
			Domain:   s.cfg.CookieDomain,
			Secure:   s.cfg.CookieSecure,
			SameSite: s.cfg.CookieSameSite,
		}, s.logger.Named("http")),
		AuthMiddleware: middleware.NewAuthMiddleware(s.authService, s.authService, s.cfg.CookieName),
	})

	srv := &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: engine,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("HTTP server listening", zap.String("addr", s.cfg.HTTPAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains HTTP connections, then closes Redis and PostgreSQL
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return errors.Join(errs...)
}
