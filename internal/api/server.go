package api

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"crossfund/internal/ledger"
	"crossfund/internal/model"
)

// Ledger is the part of the contribution ledger the API serves.
type Ledger interface {
	RecordContribution(ctx context.Context, in ledger.Input) (model.Contribution, error)
	ProjectFunding(projectID string) model.ProjectFunding
	Contributions(projectID string) []model.Contribution
	UserContributions(address string) iter.Seq[model.Contribution]
	Projects() []string
	MergeFromRemote(ctx context.Context, projectID string) int
}

// Prices provides the current price snapshot.
type Prices interface {
	GetPrices(ctx context.Context) model.PriceSnapshot
}

// Options configures the API server.
type Options struct {
	Addr string
	// RateLimit is requests per second across all clients; 0 disables limiting.
	RateLimit float64
	RateBurst int
	// BootstrapTTL is how long a project stays loaded before the next request
	// reloads it from the backend; 0 loads each project once per process.
	// Reloads merge, so records the backend has not stored yet are kept.
	BootstrapTTL time.Duration
	// WebSocket, when set, is served on /ws.
	WebSocket http.Handler
}

// Server is the HTTP front of the ledger.
type Server struct {
	httpServer   *http.Server
	router       *mux.Router
	ledger       Ledger
	prices       Prices
	limiter      *rate.Limiter
	bootstrapped *cache.Cache
	loads        singleflight.Group
	logger       *zap.Logger
}

func NewServer(opts Options, l Ledger, prices Prices, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	cleanup := time.Duration(0)
	if opts.BootstrapTTL > 0 {
		cleanup = opts.BootstrapTTL
	}

	s := &Server{
		router:       mux.NewRouter(),
		ledger:       l,
		prices:       prices,
		bootstrapped: cache.New(opts.BootstrapTTL, cleanup),
		logger:       logger,
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	s.registerRoutes(opts.WebSocket)

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes(ws http.Handler) {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	if ws != nil {
		s.router.Handle("/ws", ws).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/contributions", s.handleRecordContribution).Methods(http.MethodPost)
	api.HandleFunc("/projects", s.handleListProjects).Methods(http.MethodGet)
	api.HandleFunc("/projects/{id}/funding", s.handleProjectFunding).Methods(http.MethodGet)
	api.HandleFunc("/projects/{id}/contributions", s.handleProjectContributions).Methods(http.MethodGet)
	api.HandleFunc("/users/{address}/contributions", s.handleUserContributions).Methods(http.MethodGet)
	api.HandleFunc("/prices", s.handlePrices).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "endpoint not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.requestID(s.logRequests(s.rateLimit(s.router)))
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("api server shutting down")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// ensureLoaded bootstraps a project from the backend the first time it is
// touched. Concurrent callers for the same project wait for the one load.
func (s *Server) ensureLoaded(ctx context.Context, projectID string) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return
	}
	if _, ok := s.bootstrapped.Get(projectID); ok {
		return
	}
	s.loads.Do(projectID, func() (any, error) {
		if _, ok := s.bootstrapped.Get(projectID); ok {
			return nil, nil
		}
		s.ledger.MergeFromRemote(context.WithoutCancel(ctx), projectID)
		s.bootstrapped.Set(projectID, struct{}{}, cache.DefaultExpiration)
		return nil, nil
	})
}
