// Package api serves the control-plane HTTP surface: repository discovery,
// per-session navigation, file inspection, version-control operations, and the
// suggestion lifecycle. Every route except the public probes sits behind the
// request-authentication gate.
package api

import (
	"context"
	stdliberrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/odvcencio/helmsman/pkg/config"
	"github.com/odvcencio/helmsman/pkg/explorer"
	"github.com/odvcencio/helmsman/pkg/gate"
	"github.com/odvcencio/helmsman/pkg/logging"
	"github.com/odvcencio/helmsman/pkg/notify"
	"github.com/odvcencio/helmsman/pkg/session"
	"github.com/odvcencio/helmsman/pkg/suggest"
	"github.com/odvcencio/helmsman/pkg/vcs"
)

// Version is stamped at build time.
var Version = "dev"

// Server wires the control-plane components behind one HTTP listener.
type Server struct {
	cfg       *config.Config
	sessions  *session.Store
	explorer  *explorer.Explorer
	suggests  *suggest.Service
	ledger    *suggest.Ledger
	git       *vcs.Adapter
	hub       *Hub
	notifier  *notify.Manager
	logger    *logging.Logger
	metrics   *Metrics
	gate      *gate.Gate
	broadcast *lifecycleBroadcaster

	httpServer *http.Server
}

// Options carries the injectable collaborators.
type Options struct {
	Generator suggest.Generator
	Notifier  *notify.Manager
	Logger    *logging.Logger

	// Now overrides the gate clock, used in tests.
	Now func() time.Time
}

// NewServer builds a fully wired server from configuration.
func NewServer(cfg *config.Config, opts Options) *Server {
	sessions := session.NewStore(cfg.Repos.BasePath, vcs.IsRepo)
	ledger := suggest.NewLedger()
	hub := NewHub()

	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		explorer: explorer.New(sessions),
		ledger:   ledger,
		git:      vcs.NewAdapter(cfg.Repos.AuthorName, cfg.Repos.AuthorEmail, cfg.Repos.Remote),
		hub:      hub,
		notifier: opts.Notifier,
		logger:   opts.Logger,
	}
	s.metrics = NewMetrics(sessions.Count, ledger.Count)

	s.broadcast = &lifecycleBroadcaster{hub: hub, notifier: opts.Notifier}
	s.suggests = suggest.NewService(sessions, ledger, opts.Generator, s.broadcast, opts.Logger)

	exempt := []string{"/", "/health", "/docs"}
	if cfg.Server.PublicMetrics {
		exempt = append(exempt, "/metrics")
	}
	s.gate = gate.New(gate.Config{
		APIKey:       cfg.Auth.APIKey,
		MaxClockSkew: cfg.Auth.MaxClockSkew(),
		ExemptPaths:  exempt,
		Now:          opts.Now,
		Respond:      respondError,
		OnReject:     s.metrics.RecordRejection,
		Logger:       opts.Logger,
	})
	return s
}

// Router assembles the route tree.
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(s.gate.Middleware)

	router.Get("/", s.handleRoot)
	router.Get("/health", s.handleHealth)
	router.Get("/docs", s.handleDocs)
	router.Get("/metrics", s.metrics.Handler().ServeHTTP)

	router.Get("/repos", s.handleListRepos)
	router.Post("/select", s.handleSelectRepo)

	router.Get("/ls", s.handleList)
	router.Post("/cd", s.handleChangeDir)
	router.Get("/pwd", s.handleWorkingDir)
	router.Get("/cat", s.handleReadFile)
	router.Get("/tree", s.handleTree)

	router.Get("/branch", s.handleBranches)
	router.Post("/checkout", s.handleCheckout)
	router.Get("/status", s.handleStatus)
	router.Post("/commit", s.handleCommit)
	router.Post("/push", s.handlePush)
	router.Post("/pull", s.handlePull)

	router.Post("/suggest", s.handleSuggest)
	router.Get("/suggestions", s.handleListSuggestions)
	router.Post("/apply", s.handleApply)
	router.Post("/reject", s.handleReject)

	router.Get("/events", s.handleEvents)
	return router
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	// H2C lets clients keep HTTP/2 cleartext connections through reverse
	// proxies that strip upgrade headers.
	h2s := &http2.Server{}
	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Bind,
		Handler:           h2c.NewHandler(s.Router(), h2s),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info(logging.CategoryServer, "listening", fmt.Sprintf("serving on %s", s.cfg.Server.Bind), nil)
		if err := s.httpServer.ListenAndServe(); err != nil && !stdliberrors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}
