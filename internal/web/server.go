// Package web serves the experiment API over HTTP.
package web

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/arthur-debert/faraday/faraday"
	"github.com/arthur-debert/faraday/formats"
	"github.com/arthur-debert/faraday/shielding"
	"github.com/arthur-debert/faraday/types"
)

// ExperimentService is the application core the handlers call into
type ExperimentService interface {
	List(ctx context.Context) ([]types.Experiment, error)
	Get(ctx context.Context, id string) (types.Experiment, error)
	Create(ctx context.Context, name string, table types.Table, actor string) (types.Experiment, error)
	CreateBlank(ctx context.Context, name string, locations, frequencies int, actor string) (types.Experiment, error)
	Update(ctx context.Context, id string, req types.UpdateRequest, actor string) (types.Experiment, error)
	Delete(ctx context.Context, id string) (bool, error)
	Upload(ctx context.Context, filename string, r io.Reader, actor string) (faraday.UploadResult, error)
	Rederive(ctx context.Context, id, actor string) (types.Experiment, shielding.Result, error)
	Export(ctx context.Context, id string, format *formats.TableFormat) (faraday.Download, error)
	Backup(ctx context.Context, w io.Writer, format *formats.TableFormat) error
	Authenticate(ctx context.Context, username, password string) error
}

type Server struct {
	service ExperimentService
	router  *http.ServeMux
	addr    string
	logger  *slog.Logger
}

func NewServer(service ExperimentService, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		service: service,
		router:  http.NewServeMux(),
		addr:    addr,
		logger:  logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.router.HandleFunc("POST /api/login", s.handleLogin)

	// Experiments
	s.router.Handle("GET /api/experiments", s.requireAuth(s.handleListExperiments))
	s.router.Handle("POST /api/experiments", s.requireAuth(s.handleCreateExperiment))
	s.router.Handle("GET /api/experiments/{id}", s.requireAuth(s.handleGetExperiment))
	s.router.Handle("PUT /api/experiments/{id}", s.requireAuth(s.handleUpdateExperiment))
	s.router.Handle("DELETE /api/experiments/{id}", s.requireAuth(s.handleDeleteExperiment))
	s.router.Handle("POST /api/experiments/{id}/rederive", s.requireAuth(s.handleRederiveExperiment))
	s.router.Handle("GET /api/experiments/{id}/download", s.requireAuth(s.handleDownloadExperiment))

	// Files
	s.router.Handle("POST /api/upload", s.requireAuth(s.handleUpload))
	s.router.Handle("GET /api/backup", s.requireAuth(s.handleBackup))
}

// Handler returns the routes wrapped in request logging
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.router)
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting server", "addr", s.addr)

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown error", "error", err)
		}
	}()

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil // Graceful shutdown
	}
	return err
}
