package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TanguyBaudrin/familly-companion/internal/handler"
	"github.com/TanguyBaudrin/familly-companion/internal/middleware"
	"github.com/TanguyBaudrin/familly-companion/internal/points"
	"github.com/TanguyBaudrin/familly-companion/internal/stats"
	"github.com/TanguyBaudrin/familly-companion/internal/store"
	ws "github.com/TanguyBaudrin/familly-companion/internal/websocket"
)

type Config struct {
	// CORSOrigins lists allowed browser origins for the API and websocket.
	CORSOrigins []string
	// ClaimRateLimit is the number of claims a member may attempt per
	// minute. Zero disables the limit.
	ClaimRateLimit int
}

type Server struct {
	db          *sql.DB
	cfg         Config
	hub         *ws.Hub
	registry    *prometheus.Registry
	memberH     *handler.MemberHandler
	taskH       *handler.TaskHandler
	rewardH     *handler.RewardHandler
	statsH      *handler.StatsHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub := ws.NewHub(logger.With("component", "websocket"), registry)
	engine := points.New(db, points.WithLogger(logger), points.WithRegisterer(registry))
	statsSvc := stats.NewService(db, nil)

	memberStore := store.NewMemberStore(db)
	taskStore := store.NewTaskStore(db)
	rewardStore := store.NewRewardStore(db)

	return &Server{
		db:          db,
		cfg:         cfg,
		hub:         hub,
		registry:    registry,
		memberH:     handler.NewMemberHandler(memberStore, engine, statsSvc, hub, nil, logger.With("component", "member")),
		taskH:       handler.NewTaskHandler(taskStore, memberStore, engine, hub, nil, logger.With("component", "task")),
		rewardH:     handler.NewRewardHandler(rewardStore, memberStore, engine, hub, logger.With("component", "reward")),
		statsH:      handler.NewStatsHandler(statsSvc, logger.With("component", "stats")),
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// Hub returns the websocket hub so callers can shut it down.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(s.logger.With("component", "http")))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition", "Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/health", s.healthHandler)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Get("/ws", ws.HandleWebSocket(s.hub, s.cfg.CORSOrigins))

	claimLimit := middleware.RateLimit(s.rateLimiter, func(r *http.Request) string {
		return "claim:" + chi.URLParam(r, "id")
	}, s.cfg.ClaimRateLimit, time.Minute)

	r.Route("/api", func(r chi.Router) {
		r.Route("/members", func(r chi.Router) {
			r.Get("/", s.memberH.List)
			r.Post("/", s.memberH.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.memberH.Get)
				r.Put("/", s.memberH.Update)
				r.Delete("/", s.memberH.Delete)
				r.Get("/history", s.memberH.History)
				r.Get("/history.xlsx", s.memberH.HistoryXLSX)
				r.Get("/details", s.memberH.Details)
				r.Post("/pin", s.memberH.SetPIN)
				r.Delete("/pin", s.memberH.ClearPIN)
				r.With(claimLimit).Post("/claim/{reward_id}", s.rewardH.Claim)
			})
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.taskH.List)
			r.Post("/", s.taskH.Create)
			r.Get("/{id}", s.taskH.Get)
			r.Put("/{id}", s.taskH.Update)
			r.Delete("/{id}", s.taskH.Delete)
			r.Post("/{id}/complete", s.taskH.Complete)
		})

		r.Route("/rewards", func(r chi.Router) {
			r.Get("/", s.rewardH.List)
			r.Post("/", s.rewardH.Create)
			r.Get("/{id}", s.rewardH.Get)
			r.Put("/{id}", s.rewardH.Update)
			r.Delete("/{id}", s.rewardH.Delete)
		})

		r.Get("/leaderboard", s.memberH.Leaderboard)
		r.Get("/statistics", s.statsH.Statistics)
	})

	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
