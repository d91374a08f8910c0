package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Layr-Labs/farbook-go/pkg/connectFlow"
	"github.com/Layr-Labs/farbook-go/pkg/persistence"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

/*
Server renders the page shell and exposes the connect widget's controls.

Page:
  GET /:
    - Heading with the app name and one connect widget
    - Connect button (disabled while a request is in flight)
    - Public key once generated, QR code once a token exists
    - Submit button once the signer is approved
    - Refreshes itself while waiting for approval

Widget controls:
  POST /connect:
    - Starts a new connect attempt, discarding any previous one
    - Rate limited
  POST /submit:
    - Submits the approved signed message to the hub

  Form posts redirect back to /. Requests with Accept: application/json get the
  widget state as JSON with a status code describing the outcome.

State API:
  GET /state    widget state as JSON
  GET /qr.png   QR code for the signer-add link
  GET /metrics  Prometheus metrics
  GET /healthz  attempt store health

Attempt audit trail (only with a store):
  GET    /attempts       every recorded attempt, oldest first
  GET    /attempts/{id}  one attempt
  DELETE /attempts/{id}  forget an attempt
*/

// ConnectFlow is the widget state machine the page drives
type ConnectFlow interface {
	Connect(ctx context.Context) (connectFlow.Snapshot, error)
	Submit(ctx context.Context) (connectFlow.Snapshot, error)
	Snapshot() connectFlow.Snapshot
}

// AttemptStore is the part of the attempt store the server reads
type AttemptStore interface {
	LoadAttempt(attemptID string) (*persistence.AttemptRecord, error)
	ListAttempts() ([]*persistence.AttemptRecord, error)
	DeleteAttempt(attemptID string) error
	HealthCheck() error
}

// ServerConfig wires the page to its flow
type ServerConfig struct {
	Port    int
	AppName string
	Flow    ConnectFlow

	// Store backs /healthz and /attempts. Optional.
	Store AttemptStore
	// Gatherer backs /metrics. Optional.
	Gatherer prometheus.Gatherer

	// ConnectRateLimit is connect attempts per second. Zero disables the limit.
	ConnectRateLimit float64
	CORSOrigins      []string

	Logger *zap.Logger
}

// Server handles HTTP requests for the page and its widget
type Server struct {
	appName        string
	flow           ConnectFlow
	store          AttemptStore
	connectLimiter *rate.Limiter
	logger         *zap.Logger
	httpServer     *http.Server
}

// NewServer creates a new server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Flow == nil {
		return nil, fmt.Errorf("connect flow is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	limit := rate.Inf
	if cfg.ConnectRateLimit > 0 {
		limit = rate.Limit(cfg.ConnectRateLimit)
	}

	s := &Server{
		appName:        cfg.AppName,
		flow:           cfg.Flow,
		store:          cfg.Store,
		connectLimiter: rate.NewLimiter(limit, 1),
		logger:         cfg.Logger,
	}

	router := mux.NewRouter()

	// Page
	router.HandleFunc("/", s.handlePage).Methods(http.MethodGet)

	// Widget controls
	router.HandleFunc("/connect", s.handleConnect).Methods(http.MethodPost)
	router.HandleFunc("/submit", s.handleSubmit).Methods(http.MethodPost)

	// State API
	router.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	router.HandleFunc("/qr.png", s.handleQRCode).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if cfg.Store != nil {
		router.HandleFunc("/attempts", s.handleListAttempts).Methods(http.MethodGet)
		router.HandleFunc("/attempts/{id}", s.handleGetAttempt).Methods(http.MethodGet)
		router.HandleFunc("/attempts/{id}", s.handleDeleteAttempt).Methods(http.MethodDelete)
	}
	if cfg.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	var handler http.Handler = router
	if len(cfg.CORSOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		}).Handler(handler)
	}

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}

	return s, nil
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go func() {
		s.logger.Sugar().Infow("Starting HTTP server", "app_name", s.appName, "port", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}
