package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/config"
	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/internal/limiter"
	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/internal/metrics"
	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/internal/server"
	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/internal/telemetry"
	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/model"
	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/model/onnx"
	"github.com/phantom2810/AI-Driven-Image-Categorization-System-with-Scalable-Cloud-Deployment/scheduler"
)

// Server assembles the scheduling engine and its operational HTTP
// surface (health, readiness, stats, Prometheus metrics).
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	telemetry    *telemetry.Providers
	collector    *metrics.Collector
	redisLimiter *limiter.RedisLimiter
	engine       *scheduler.Engine
	httpManager  *server.Manager

	cancel context.CancelFunc
}

// NewServer creates a server from validated configuration.
func NewServer(cfg *config.Config, logger *zap.Logger, providers *telemetry.Providers) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		telemetry: providers,
	}
}

// Start wires the collaborators and begins serving. It does not block.
func (s *Server) Start() error {
	s.collector = metrics.NewCollector("categorizer", s.logger)

	clientLimiter, err := s.buildLimiter()
	if err != nil {
		return fmt.Errorf("build client limiter: %w", err)
	}

	registry, models, err := s.buildRegistry()
	if err != nil {
		return fmt.Errorf("build model registry: %w", err)
	}

	engine, err := scheduler.New(s.cfg.Scheduler, scheduler.Options{
		Loader:        registry,
		Models:        models,
		ClientLimiter: clientLimiter,
		Logger:        s.logger,
		Metrics:       s.collector,
	})
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	s.engine = engine

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	if err := s.engine.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("start engine: %w", err)
	}

	s.httpManager = server.NewManager(s.routes(), server.Config{
		Addr:            s.cfg.Server.Addr,
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return fmt.Errorf("start HTTP server: %w", err)
	}

	s.logger.Info("server started",
		zap.String("addr", s.httpManager.Addr()),
		zap.Int("models", len(models)),
	)
	return nil
}

// buildLimiter selects the per-client rate limiter: Redis-backed when
// enabled, otherwise an in-process token bucket, otherwise none.
func (s *Server) buildLimiter() (limiter.ClientLimiter, error) {
	if s.cfg.Redis.Enabled {
		rl, err := limiter.NewRedisLimiter(limiter.RedisConfig{
			Addr:     s.cfg.Redis.Addr,
			Password: s.cfg.Redis.Password,
			DB:       s.cfg.Redis.DB,
			PoolSize: s.cfg.Redis.PoolSize,
			Window:   s.cfg.Redis.Window,
			Limit:    s.cfg.Redis.Limit,
		}, s.logger)
		if err != nil {
			return nil, err
		}
		s.redisLimiter = rl
		s.logger.Info("redis rate limiter enabled", zap.String("addr", s.cfg.Redis.Addr))
		return rl, nil
	}
	if s.cfg.Scheduler.ClientRPS > 0 {
		s.logger.Info("token bucket rate limiter enabled",
			zap.Float64("rps", s.cfg.Scheduler.ClientRPS),
			zap.Int("burst", s.cfg.Scheduler.ClientBurst),
		)
		return limiter.NewTokenBucket(s.cfg.Scheduler.ClientRPS, s.cfg.Scheduler.ClientBurst), nil
	}
	return nil, nil
}

// buildRegistry registers a factory per configured model and returns the
// initial worker counts. Without any configured model a single mock is
// served, which keeps local development useful.
func (s *Server) buildRegistry() (*model.Registry, map[string]int, error) {
	registry := model.NewRegistry()
	models := make(map[string]int)

	if len(s.cfg.Models) == 0 {
		registry.Register("mock", func(context.Context) (model.Model, error) {
			return model.NewMock("mock"), nil
		})
		models["mock"] = 1
		s.logger.Warn("no models configured, serving a mock model")
		return registry, models, nil
	}

	for _, mc := range s.cfg.Models {
		name := mc.Name
		switch mc.Type {
		case "onnx":
			registry.Register(name, onnx.Factory(name, mc.Path, mc.MetadataPath))
		default:
			registry.Register(name, func(context.Context) (model.Model, error) {
				return model.NewMock(name), nil
			})
		}
		workers := mc.Workers
		if workers <= 0 {
			workers = s.cfg.Scheduler.MinWorkersPerModel
		}
		models[name] = workers
		s.logger.Info("model registered",
			zap.String("model", name),
			zap.String("type", mc.Type),
			zap.Int("workers", workers),
		)
	}
	return registry, models, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !s.engine.Healthy() {
			http.Error(w, "engine not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ready")
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.engine.Stats())
	})

	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// WaitForShutdown blocks until a termination signal, then tears the
// service down in dependency order: HTTP first, then the engine, then
// the auxiliary clients.
func (s *Server) WaitForShutdown() {
	s.httpManager.WaitForShutdown()

	if err := s.engine.Close(); err != nil {
		s.logger.Error("engine shutdown failed", zap.Error(err))
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.redisLimiter != nil {
		if err := s.redisLimiter.Close(); err != nil {
			s.logger.Error("redis limiter close failed", zap.Error(err))
		}
	}
	if s.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown failed", zap.Error(err))
		}
	}
}
