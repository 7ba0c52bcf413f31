package server

import (
	"encoding/json"
	"time"

	"github.com/duelhouse/duelsrv/internal/duel"
)

// MessageType identifies a websocket message.
type MessageType string

// Client → Server
const (
	MessageTypeAuth         MessageType = "auth"
	MessageTypeGetDuelsData MessageType = "get_duels_data"
	MessageTypeGetDuelGame  MessageType = "get_duel_game"
	MessageTypeCreateDuel   MessageType = "create_duel"
	MessageTypeJoinDuel     MessageType = "join_duel"
	MessageTypeCallBot      MessageType = "call_bot"
	MessageTypeCancelDuel   MessageType = "cancel_duel"
)

// Server → Client
const (
	MessageTypeAuthResponse MessageType = "auth_response"
	MessageTypeDuelsData    MessageType = "duels_data"
	MessageTypeDuelGame     MessageType = "duel_game"
	MessageTypeError        MessageType = "error"
)

// Message is the base websocket envelope.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(messageType MessageType, data interface{}) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// Client → Server payloads

type AuthData struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Avatar    string `json:"avatar,omitempty"`
	Rank      string `json:"rank,omitempty"`
	Anonymous bool   `json:"anonymous,omitempty"`
}

type CreateDuelData struct {
	Amount    int64 `json:"amount"`
	SlotCount int   `json:"slotCount"`
}

type GameRefData struct {
	GameID string `json:"gameId"`
}

// Server → Client payloads

type AuthResponseData struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type DuelGameData struct {
	Game *duel.GameView `json:"game"`
}
