package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/vbonduro/rifas/internal/events"
	"github.com/vbonduro/rifas/internal/imagestore"
	"github.com/vbonduro/rifas/internal/service"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Options holds the transport settings taken from configuration.
type Options struct {
	// PublicBaseURL prefixes image URLs; empty means derive from the request.
	PublicBaseURL     string
	MaxUploadBytes    int64
	CORSAllowedOrigin string
}

type Server struct {
	service *service.AuctionService
	images  imagestore.ImageStore
	hub     *events.Hub
	opts    Options
	mux     *http.ServeMux
	handler http.Handler
	logger  *zap.Logger
}

// NewServer wires the JSON API. hub may be nil, in which case /ws is not served.
func NewServer(svc *service.AuctionService, images imagestore.ImageStore, hub *events.Hub, opts Options, logger *zap.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.CORSAllowedOrigin == "" {
		opts.CORSAllowedOrigin = "*"
	}
	s := &Server{
		service: svc,
		images:  images,
		hub:     hub,
		opts:    opts,
		mux:     http.NewServeMux(),
		logger:  logger,
	}
	s.registerRoutes()
	s.handler = recoverer(logger,
		requestID(
			requestLogger(logger,
				cors(opts.CORSAllowedOrigin,
					securityHeaders(s.mux)))))
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /auctions", s.handleListAuctions)
	s.mux.HandleFunc("POST /auctions", s.handleCreateAuction)
	s.mux.HandleFunc("GET /auctions/{id}", s.handleGetAuction)
	s.mux.HandleFunc("PUT /auctions/{id}", s.handleUpdateAuction)
	s.mux.HandleFunc("DELETE /auctions/{id}", s.handleDeleteAuction)
	s.mux.HandleFunc("POST /auctions/{id}/bids", s.handlePlaceBid)
	s.mux.HandleFunc("PUT /auctions/{id}/finalize", s.handleFinalizeAuction)
	s.mux.HandleFunc("PUT /auctions/{id}/winner", s.handleFinalizeAuction)
	s.mux.HandleFunc("GET /uploads/{key}", s.handleGetImage)
	if s.hub != nil {
		s.mux.HandleFunc("GET /ws", s.hub.ServeWS)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte("rifas API running. Use /auctions\n")); err != nil {
		s.logger.Debug("write root failed", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
