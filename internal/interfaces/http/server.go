// Package http implements L10's external HTTP surface: the webhook
// ingress, the bearer-token HITL approval REST API, and the Prometheus
// metrics endpoint, wired around the teacher's gorilla/mux router and
// middleware chain.
package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sentinel/internal/domain/hitl"
	"github.com/sawpanic/sentinel/internal/domain/signal"
	"github.com/sawpanic/sentinel/internal/interfaces/events"
)

// Server is the process's single HTTP listener, carrying both the webhook
// ingress and the HITL operator console.
type Server struct {
	router  *mux.Router
	server  *http.Server
	webhook *WebhookHandler
	hitl    *HITLHandler
	metrics *MetricsRegistry
	ws      *events.WebSocketHandler
	config  ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns reasonable defaults, honoring HTTP_PORT.
func DefaultServerConfig() ServerConfig {
	port := 8080
	if portStr := os.Getenv("HTTP_PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			port = p
		}
	}

	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         port,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewServer builds the router and binds it to the signal and HITL gateways.
// queueDepth bounds the webhook ingress backlog; bearerToken authenticates
// the HITL REST surface.
func NewServer(config ServerConfig, signalGateway *signal.Gateway, hitlGateway *hitl.Gateway, metrics *MetricsRegistry, bus *events.Bus, queueDepth int, ingressRPS float64, ingressBurst int, bearerToken string) (*Server, error) {
	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("port %d is busy or unavailable: %w", config.Port, err)
	}
	listener.Close()

	s := &Server{
		router:  mux.NewRouter(),
		webhook: NewWebhookHandler(signalGateway, queueDepth, ingressRPS, ingressBurst),
		hitl:    NewHITLHandler(hitlGateway, bearerToken),
		metrics: metrics,
		ws:      events.NewWebSocketHandler(bus),
		config:  config,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s, nil
}

// WebhookQueue exposes the ingress backlog for the orchestrator's pulse to
// drain.
func (s *Server) WebhookQueue() <-chan AcceptedSignal { return s.webhook.Queue() }

func (s *Server) setupRoutes() {
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.timeoutMiddleware)
	s.router.Use(s.corsMiddleware)

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.jsonContentTypeMiddleware)

	api.HandleFunc("/health", s.health).Methods("GET")
	api.Handle("/webhook/signal", s.webhook).Methods("POST")
	api.HandleFunc("/api/hitl/pending", s.hitl.Pending).Methods("GET")
	api.HandleFunc("/api/hitl/{trade_id}/approve", s.hitl.Approve).Methods("POST")
	api.HandleFunc("/api/hitl/{trade_id}/reject", s.hitl.Reject).Methods("POST")
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.MetricsHandler()).Methods("GET")
	}
	s.router.Handle("/ws/events", s.ws).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(s.notFound)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, http.StatusNotFound, "not found")
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type ctxKey string

const ctxKeyRequestID ctxKey = "request_id"

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID, _ := r.Context().Value(ctxKeyRequestID).(string)

		wrapper := &responseWrapper{ResponseWriter: w, statusCode: 200}
		next.ServeHTTP(wrapper, r)

		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote_addr", r.RemoteAddr).
			Msg("http request")
	})
}

// timeoutMiddleware puts a 5s deadline on every request's context, the
// webhook path included.
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Signature")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Start begins serving and blocks until the listener stops.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting http server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down http server")
	return s.server.Shutdown(ctx)
}

// GetAddress returns the bound address.
func (s *Server) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// responseWrapper captures the HTTP status code for logging.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
