package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/duelhouse/duelsrv/internal/duel"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

var ErrConnectionClosed = websocket.ErrCloseSent

// Connection wraps a websocket connection to one client.
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	user      *duel.User
	duels     DuelService
	users     UserDirectory
	logger    zerolog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	closeOnce sync.Once
}

// NewConnection creates a new connection wrapper.
func NewConnection(conn *websocket.Conn, duels DuelService, users UserDirectory, logger zerolog.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:   conn,
		send:   make(chan *Message, 256),
		duels:  duels,
		users:  users,
		logger: logger.With().Str("component", "conn").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins handling the connection.
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the connection.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// SendMessage queues a message for delivery to the client.
func (c *Connection) SendMessage(msg *Message) error {
	defer func() {
		if r := recover(); r != nil {
			// Channel was closed during shutdown.
			c.logger.Debug().Interface("recovered", r).Msg("Send on closed connection")
		}
	}()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn().Msg("Connection send buffer full, closing connection")
		_ = c.Close()
		return ErrConnectionClosed
	}
}

// User returns the authenticated user, or nil before the auth handshake.
func (c *Connection) User() *duel.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

func (c *Connection) setUser(u duel.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = &u
}

// readPump handles incoming messages from the client.
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error().Err(err).Msg("Websocket error")
			}
			break
		}

		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error().Err(err).Msg("Failed to write message")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// handleMessage dispatches an incoming client message.
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug().Str("type", string(msg.Type)).Msg("Received message")

	switch msg.Type {
	case MessageTypeAuth:
		var data AuthData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse auth data")
			return
		}
		c.handleAuth(data)

	case MessageTypeGetDuelsData:
		c.handleGetDuelsData()

	case MessageTypeGetDuelGame:
		var data GameRefData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse game reference")
			return
		}
		c.handleGetDuelGame(data)

	case MessageTypeCreateDuel:
		var data CreateDuelData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse create duel data")
			return
		}
		c.withUser(func(u duel.User) (*duel.GameView, error) {
			return c.duels.Create(c.ctx, u, data.Amount, data.SlotCount)
		})

	case MessageTypeJoinDuel:
		c.handleGameAction(msg.Data, c.duels.Join)

	case MessageTypeCallBot:
		c.handleGameAction(msg.Data, c.duels.CallBots)

	case MessageTypeCancelDuel:
		c.handleGameAction(msg.Data, c.duels.Cancel)

	default:
		c.sendError("unknown_message_type", "Unknown message type: "+string(msg.Type))
	}
}

func (c *Connection) handleAuth(data AuthData) {
	if data.UserID == "" || data.Username == "" {
		c.sendError("invalid_auth", "User id and username required")
		return
	}

	user := duel.User{
		ID:        data.UserID,
		Username:  data.Username,
		Avatar:    data.Avatar,
		Rank:      data.Rank,
		Anonymous: data.Anonymous,
	}

	if c.users != nil {
		if err := c.users.UpsertUser(c.ctx, user); err != nil {
			c.logger.Error().Err(err).Str("user_id", user.ID).Msg("Failed to persist user profile")
			c.sendError("internal_error", "Failed to store user profile")
			return
		}
	}

	c.setUser(user)
	c.logger.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("Client authenticated")

	response, _ := NewMessage(MessageTypeAuthResponse, AuthResponseData{
		Success: true,
		UserID:  user.ID,
	})
	_ = c.SendMessage(response)
}

func (c *Connection) handleGetDuelsData() {
	response, err := NewMessage(MessageTypeDuelsData, c.duels.Data())
	if err != nil {
		c.sendError("internal_error", "Failed to build duels data")
		return
	}
	_ = c.SendMessage(response)
}

func (c *Connection) handleGetDuelGame(data GameRefData) {
	view, err := c.duels.GetGame(c.ctx, data.GameID)
	if err != nil {
		c.sendActionError(err)
		return
	}

	response, _ := NewMessage(MessageTypeDuelGame, DuelGameData{Game: view})
	_ = c.SendMessage(response)
}

// handleGameAction runs a game action that takes only a game reference.
func (c *Connection) handleGameAction(raw json.RawMessage, action func(context.Context, duel.User, string) (*duel.GameView, error)) {
	var data GameRefData
	if err := json.Unmarshal(raw, &data); err != nil {
		c.sendError("invalid_message", "Failed to parse game reference")
		return
	}
	c.withUser(func(u duel.User) (*duel.GameView, error) {
		return action(c.ctx, u, data.GameID)
	})
}

// withUser runs an action for the authenticated user and responds with the
// resulting game snapshot or a coded error.
func (c *Connection) withUser(action func(duel.User) (*duel.GameView, error)) {
	user := c.User()
	if user == nil {
		c.sendError("not_authenticated", "Must authenticate first")
		return
	}

	view, err := action(*user)
	if err != nil {
		c.sendActionError(err)
		return
	}

	response, _ := NewMessage(MessageTypeDuelGame, DuelGameData{Game: view})
	_ = c.SendMessage(response)
}

// sendActionError maps engine errors onto wire error codes.
func (c *Connection) sendActionError(err error) {
	code := "internal_error"
	switch {
	case errors.Is(err, duel.ErrInvalidInput):
		code = "invalid_input"
	case errors.Is(err, duel.ErrGameNotFound):
		code = "game_not_found"
	case errors.Is(err, duel.ErrGameUnavailable):
		code = "game_unavailable"
	case errors.Is(err, duel.ErrAlreadyJoined):
		code = "already_joined"
	case errors.Is(err, duel.ErrNotCreator):
		code = "not_creator"
	case errors.Is(err, duel.ErrLocked):
		code = "locked"
	case errors.Is(err, duel.ErrInsufficientFunds):
		code = "insufficient_funds"
	case errors.Is(err, duel.ErrTooManyGames):
		code = "too_many_games"
	}

	if duel.Transient(err) {
		c.logger.Debug().Err(err).Msg("Action hit a transient lock")
	}
	c.sendError(code, err.Error())
}

// sendError sends an error message to the client.
func (c *Connection) sendError(code, message string) {
	errorMsg, err := NewMessage(MessageTypeError, ErrorData{
		Code:    code,
		Message: message,
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to create error message")
		return
	}

	_ = c.SendMessage(errorMsg)
}
