// Package server exposes the duel engine over websockets. Every state change
// is pushed to all connected clients; actions arrive as JSON messages on the
// same connection.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/duelhouse/duelsrv/internal/duel"
)

// DuelService is the slice of the engine the server drives.
type DuelService interface {
	Data() duel.Snapshot
	GetGame(ctx context.Context, gameID string) (*duel.GameView, error)
	Create(ctx context.Context, user duel.User, amount int64, slotCount int) (*duel.GameView, error)
	Join(ctx context.Context, user duel.User, gameID string) (*duel.GameView, error)
	CallBots(ctx context.Context, user duel.User, gameID string) (*duel.GameView, error)
	Cancel(ctx context.Context, user duel.User, gameID string) (*duel.GameView, error)
}

// UserDirectory persists user profiles as they authenticate.
type UserDirectory interface {
	UpsertUser(ctx context.Context, u duel.User) error
}

// Server is the websocket server.
type Server struct {
	addr        string
	upgrader    websocket.Upgrader
	connections map[*Connection]bool
	register    chan *Connection
	unregister  chan *Connection
	logger      zerolog.Logger
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	duels       DuelService
	users       UserDirectory
	httpServer  *http.Server
}

// NewServer creates a websocket server in front of the duel service.
func NewServer(addr string, duels DuelService, users UserDirectory, logger zerolog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Origin checking happens at the edge proxy.
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[*Connection]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		logger:      logger.With().Str("component", "server").Logger(),
		ctx:         ctx,
		cancel:      cancel,
		duels:       duels,
		users:       users,
	}
}

// Start runs the server until Stop is called or the listener fails.
func (s *Server) Start() error {
	go s.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{Addr: s.addr, Handler: mux}

	s.logger.Info().Str("addr", s.addr).Msg("Starting websocket server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down and closes every connection.
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	for conn := range s.connections {
		_ = conn.Close()
	}
	s.mu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(context.Background())
	}
	return nil
}

// run handles connection lifecycle.
func (s *Server) run() {
	for {
		select {
		case conn := <-s.register:
			s.mu.Lock()
			s.connections[conn] = true
			total := len(s.connections)
			s.mu.Unlock()
			s.logger.Info().Int("total", total).Msg("Client connected")

		case conn := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.connections[conn]; ok {
				delete(s.connections, conn)
				_ = conn.Close()
			}
			total := len(s.connections)
			s.mu.Unlock()
			s.logger.Info().Int("total", total).Msg("Client disconnected")

		case <-s.ctx.Done():
			return
		}
	}
}

// handleWebSocket handles websocket upgrade requests.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	client := NewConnection(conn, s.duels, s.users, s.logger)
	s.register <- client
	client.Start()

	go func() {
		<-client.ctx.Done()
		select {
		case s.unregister <- client:
		case <-s.ctx.Done():
		}
	}()
}

// SetDuelService wires the duel engine in after construction. The engine
// broadcasts through the server, so the server has to exist first.
func (s *Server) SetDuelService(duels DuelService) {
	s.duels = duels
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

// Publish broadcasts a game snapshot to every connected client. Satisfies the
// engine's publisher contract; the topic is carried for future per-feed fanout
// but every client currently receives the full feed.
func (s *Server) Publish(topic string, view *duel.GameView) {
	msg, err := NewMessage(MessageTypeDuelGame, DuelGameData{Game: view})
	if err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to build broadcast message")
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for conn := range s.connections {
		if err := conn.SendMessage(msg); err == nil {
			count++
		}
	}

	s.logger.Debug().
		Str("topic", topic).
		Str("game_id", view.ID).
		Str("state", string(view.State)).
		Int("recipients", count).
		Msg("Broadcasted game update")
}
