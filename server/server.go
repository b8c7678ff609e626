// Package server exposes the execution engine over HTTP and WebSocket: a
// small JSON API for triggering and inspecting executions, and a per-project
// event stream pushed to connected clients.
package server

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/apiprobe/apiprobe/config"
	"github.com/apiprobe/apiprobe/errors"
	"github.com/apiprobe/apiprobe/event"
	"github.com/apiprobe/apiprobe/execution"
	"github.com/apiprobe/apiprobe/runner"
)

const (
	// MaxClients is the maximum number of concurrent WebSocket clients
	MaxClients = 100

	// ShutdownTimeout is how long Stop waits for pumps and the hub to wind down
	ShutdownTimeout = 10 * time.Second
)

// Executor triggers executions and exposes live state for runs still in
// flight. Satisfied by *execution.Orchestrator.
type Executor interface {
	Execute(ctx context.Context, req execution.Request) (*execution.Receipt, error)
	LiveResults(executionID string) ([]runner.LiveScenario, runner.Progress, bool)
}

// Server serves the HTTP API and fans execution events out to WebSocket
// clients. Each connected client holds one publisher subscription for the
// project it asked for; the hub only does registration bookkeeping.
type Server struct {
	db        *sql.DB
	store     *execution.Store
	results   *execution.ResultStore
	executor  Executor
	publisher *event.Publisher
	config    func() *config.Config

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	mux        *http.ServeMux
	httpServer *http.Server

	logger *zap.SugaredLogger

	// Lifecycle management
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	eventDrops atomic.Int64 // events dropped on full client channels
}

// Options configures a Server. DB, Executor and Publisher are required.
type Options struct {
	DB        *sql.DB
	Executor  Executor
	Publisher *event.Publisher

	// Config returns the current configuration snapshot. Defaults to
	// config.Current so a running server picks up watcher reloads.
	Config func() *config.Config

	Logger *zap.SugaredLogger
}

// NewServer creates a server with its routes configured. Run must be called
// before WebSocket clients can connect.
func NewServer(opts Options) (*Server, error) {
	if opts.DB == nil {
		return nil, errors.New("server requires a database")
	}
	if opts.Executor == nil {
		return nil, errors.New("server requires an executor")
	}
	if opts.Publisher == nil {
		return nil, errors.New("server requires an event publisher")
	}
	if opts.Config == nil {
		opts.Config = config.Current
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		db:         opts.DB,
		store:      execution.NewStore(opts.DB),
		results:    execution.NewResultStore(opts.DB),
		executor:   opts.Executor,
		publisher:  opts.Publisher,
		config:     opts.Config,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		mux:        http.NewServeMux(),
		logger:     opts.Logger,
		ctx:        ctx,
		cancel:     cancel,
	}
	s.setupRoutes()
	return s, nil
}

// ServeHTTP dispatches through the server's mux, so the whole surface can be
// mounted behind httptest or a custom listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Run starts the hub event loop. It returns when the server context is
// cancelled.
func (s *Server) Run() {
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debugw("Server hub stopping due to context cancellation")
			return
		case client := <-s.register:
			s.handleClientRegister(client)
		case client := <-s.unregister:
			s.handleClientUnregister(client)
		}
	}
}

// handleClientRegister handles a new client connection
func (s *Server) handleClientRegister(client *Client) {
	s.mu.Lock()

	if len(s.clients) >= MaxClients {
		s.mu.Unlock()
		s.logger.Warnw("Max clients reached, rejecting connection",
			"client_id", client.id,
			"max_clients", MaxClients,
		)
		client.close()
		return
	}

	s.clients[client] = true
	totalClients := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Client connected",
		"client_id", client.id,
		"project_id", client.projectID,
		"total_clients", totalClients,
	)
}

// handleClientUnregister handles a client disconnection
func (s *Server) handleClientUnregister(client *Client) {
	s.mu.Lock()
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		totalClients := len(s.clients)
		s.mu.Unlock()

		client.close()

		s.logger.Infow("Client disconnected",
			"client_id", client.id,
			"total_clients", totalClients,
		)
	} else {
		s.mu.Unlock()
	}
}

// clientCount returns the number of registered WebSocket clients.
func (s *Server) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
