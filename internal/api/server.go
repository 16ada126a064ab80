package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"gamesmith/internal/assets"
	"gamesmith/internal/config"
	"gamesmith/internal/orchestrator"
	"gamesmith/internal/store"
)

// Server wires the HTTP surface over the orchestrator and the stores.
type Server struct {
	cfg    *config.Config
	store  store.SessionStore
	assets assets.Store
	orch   *orchestrator.Orchestrator
	hub    *Hub
	log    *zap.Logger

	httpSrv *http.Server
}

func NewServer(cfg *config.Config, st store.SessionStore, as assets.Store, orch *orchestrator.Orchestrator, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:    cfg,
		store:  st,
		assets: as,
		orch:   orch,
		hub:    NewHub(st),
		log:    log,
	}
}

// Hub exposes the event hub so other components can broadcast.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Router builds the route table.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.cors)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Route("/api", func(r chi.Router) {
		r.Post("/plan", s.handlePlan)
		r.Post("/assemble", s.handleAssemble)
		r.Get("/sessions", s.handleListSessions)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/cycle", s.handleCycle)
			r.Get("/document", s.handleDocument)
			r.Get("/preview", s.handlePreview)
			r.Get("/events", s.handleEvents)
		})
	})
	r.Get("/assets/{sessionID}/{name}", s.handleAsset)

	return r
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	// No write timeout: WebSocket connections and long cycles outlive any
	// sane fixed value.
	s.httpSrv = &http.Server{
		Addr:        s.cfg.Address(),
		Handler:     s.Router(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	s.log.Info("server listening", zap.String("addr", s.httpSrv.Addr))
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// requestLogger logs one line per request with timing.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chiMiddleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	origin := s.cfg.Server.AllowedOrigin
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
