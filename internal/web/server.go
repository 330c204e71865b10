// Package web provides the HTTP API for property searches.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/evcraddock/listings/internal/logging"
	"github.com/evcraddock/listings/internal/metrics"
	"github.com/evcraddock/listings/internal/paragon"
)

const (
	requestsPerMinute = 100
	shutdownTimeout   = 10 * time.Second
)

// Properties is the search backend the API serves.
type Properties interface {
	Search(ctx context.Context, q paragon.Query, f paragon.Filters, includeMedia bool) (*paragon.Envelope[paragon.PropertyWithMedia], error)
	Get(ctx context.Context, id string, includeMedia bool) (*paragon.PropertyWithMedia, error)
}

// Server is the listings HTTP server.
type Server struct {
	props  Properties
	router chi.Router
}

// NewServer creates a server backed by props.
func NewServer(props Properties) *Server {
	s := &Server{props: props}

	r := chi.NewRouter()
	r.Use(logging.RequestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(requestsPerMinute, time.Minute)) // protect feed quota
		r.Get("/api/properties", s.apiSearchProperties)
		r.Get("/api/properties/{id}", s.apiGetProperty)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apiError(w, "not found", http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apiError(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on port until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting listings API", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	apiJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}
