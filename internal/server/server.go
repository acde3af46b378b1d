package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/codearena/judge/config"
	"github.com/codearena/judge/internal/analysis"
	"github.com/codearena/judge/internal/db"
	"github.com/codearena/judge/internal/handlers"
	"github.com/codearena/judge/internal/judge0"
	"github.com/codearena/judge/internal/mq"
	"github.com/codearena/judge/internal/services"
	"github.com/codearena/judge/internal/storage"
	"github.com/codearena/judge/internal/store"
	"github.com/codearena/judge/internal/testcases"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Server wraps the HTTP server and the resources it owns.
type Server struct {
	httpServer *http.Server
	db         *sql.DB
	redis      *redis.Client
	broker     *mq.MQ
	evaluator  *services.Evaluator
	log        *zap.SugaredLogger
}

// New wires every component from cfg and builds the router.
func New(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (*Server, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Server{db: dbConn, log: log}
	fail := func(err error) (*Server, error) {
		s.closeResources()
		return nil, err
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fail(fmt.Errorf("open storage: %w", err))
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		return fail(fmt.Errorf("ensure bucket: %w", err))
	}

	repository := testcases.NewRepository(objects)
	var (
		loader services.TestCaseLoader = repository
		cache  services.CacheInvalidator
	)
	if cfg.Cache.RedisURL != "" {
		client, err := openRedis(ctx, cfg.Cache)
		if err != nil {
			return fail(err)
		}
		s.redis = client
		redisCache := testcases.NewRedisCache(client, repository, cfg.Cache.TTL(), log.Named("testcases"))
		loader = redisCache
		cache = redisCache
	}

	var events services.EventPublisher
	broker, err := mq.Open(ctx, cfg.MQ)
	switch {
	case err == nil:
		s.broker = broker
		events = broker
	case errors.Is(err, mq.ErrDisabled):
		log.Infow("message broker disabled")
	default:
		return fail(fmt.Errorf("open broker: %w", err))
	}

	problemRepo := store.NewProblemRepository(dbConn)
	submissionRepo := store.NewSubmissionRepository(dbConn)

	problemService := services.NewProblemService(problemRepo, repository, cache, log.Named("problems"))
	submissionService := services.NewSubmissionService(submissionRepo, events, cfg.MQ.Channel, log.Named("submissions"))

	var analyzer services.Analyzer
	analysisClient, err := analysis.New(cfg.Analysis)
	switch {
	case err == nil:
		analyzer = services.NewAnalysisService(analysisClient, problemService)
	case errors.Is(err, analysis.ErrNotConfigured):
		log.Infow("code analysis disabled")
	default:
		return fail(fmt.Errorf("analysis client: %w", err))
	}

	engine := judge0.NewClient(cfg.Engine, nil)
	evaluator := services.NewEvaluator(cfg.Evaluation, loader, engine, submissionService, analyzer, log.Named("evaluator"))
	s.evaluator = evaluator

	authMiddleware := handlers.RequireAuth(cfg.JWTSecret)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(5*time.Minute),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Get("/languages", handlers.ListLanguages)
	router.Route("/problems", func(r chi.Router) {
		handlers.ProblemRouter(r, problemService, authMiddleware)
	})
	router.Route("/submissions", func(r chi.Router) {
		handlers.SubmissionRouter(r, evaluator, submissionService, authMiddleware)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func openRedis(ctx context.Context, cfg config.CacheConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB != 0 {
		opts.DB = cfg.RedisDB
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Start runs the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.log.Infow("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight requests and
// pending submission records, then releases every resource.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.evaluator.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warnw("shutdown before pending submissions were recorded")
	}

	s.closeResources()
	return err
}

func (s *Server) closeResources() {
	if s.broker != nil {
		if err := s.broker.Close(); err != nil {
			s.log.Warnw("failed to close broker", "error", err)
		}
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
