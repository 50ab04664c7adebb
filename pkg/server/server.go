// Package server provides the HTTP API: document ingestion, task
// inspection, tool-augmented generation and health checking.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/loris/pkg/adapter"
	"github.com/m-mizutani/loris/pkg/model"
	"github.com/m-mizutani/loris/pkg/repository"
	"github.com/m-mizutani/loris/pkg/tool/retrieval"
	"github.com/m-mizutani/loris/pkg/utils/logging"
)

// Clients bundles the per-request collaborator handles built from the
// resolved credentials.
type Clients struct {
	Embedder adapter.Embedder
	Chat     adapter.ChatModel
	Parser   adapter.Parser
}

// ClientFactory builds collaborator clients for one request. Tests
// substitute fakes here.
type ClientFactory func(creds *model.Credentials) *Clients

// DefaultClientFactory builds the real OpenAI, OpenRouter and Chunkr
// clients.
func DefaultClientFactory(creds *model.Credentials) *Clients {
	return &Clients{
		Embedder: adapter.NewOpenAI(creds.OpenAI),
		Chat:     adapter.NewOpenRouter(creds.OpenRouter),
		Parser:   adapter.NewChunkr(creds.Chunkr),
	}
}

// Server is the HTTP server
type Server struct {
	repo    repository.Repository
	creds   CredentialSource
	clients ClientFactory

	addr               string
	retrievalThreshold float64
	retrievalLimit     int

	httpServer *http.Server
}

type Option func(*Server)

func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

func WithClientFactory(factory ClientFactory) Option {
	return func(s *Server) {
		s.clients = factory
	}
}

func WithRetrievalThreshold(threshold float64) Option {
	return func(s *Server) {
		s.retrievalThreshold = threshold
	}
}

func WithRetrievalLimit(limit int) Option {
	return func(s *Server) {
		s.retrievalLimit = limit
	}
}

// New creates a server with the given dependencies
func New(repo repository.Repository, creds CredentialSource, opts ...Option) *Server {
	s := &Server{
		repo:               repo,
		creds:              creds,
		clients:            DefaultClientFactory,
		addr:               "127.0.0.1:8000",
		retrievalThreshold: retrieval.DefaultThreshold,
		retrievalLimit:     retrieval.DefaultLimit,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Router builds the HTTP route tree
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Get("/task/{taskID}", s.handleTask)
		r.Post("/generate", s.handleGenerate)
	})
	r.Get("/health", s.handleHealth)

	return r
}

// Start starts the HTTP server and blocks until it stops or ctx is
// canceled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	logging.From(ctx).Info("starting server", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return goerr.Wrap(err, "failed to shut down server")
		}
		return nil

	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return goerr.Wrap(err, "server stopped unexpectedly")
		}
		return nil
	}
}
