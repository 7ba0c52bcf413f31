package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duelhouse/duelsrv/internal/duel"
)

// fakeDuelService records calls and plays back canned responses.
type fakeDuelService struct {
	mu       sync.Mutex
	view     *duel.GameView
	err      error
	lastUser duel.User
	calls    []string
}

func (f *fakeDuelService) record(call string, u duel.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	f.lastUser = u
}

func (f *fakeDuelService) Data() duel.Snapshot {
	f.record("data", duel.User{})
	return duel.Snapshot{
		Games:   []*duel.GameView{f.view},
		History: []*duel.GameView{},
	}
}

func (f *fakeDuelService) GetGame(_ context.Context, gameID string) (*duel.GameView, error) {
	f.record("get", duel.User{})
	return f.view, f.err
}

func (f *fakeDuelService) Create(_ context.Context, u duel.User, amount int64, slotCount int) (*duel.GameView, error) {
	f.record("create", u)
	return f.view, f.err
}

func (f *fakeDuelService) Join(_ context.Context, u duel.User, gameID string) (*duel.GameView, error) {
	f.record("join", u)
	return f.view, f.err
}

func (f *fakeDuelService) CallBots(_ context.Context, u duel.User, gameID string) (*duel.GameView, error) {
	f.record("callbots", u)
	return f.view, f.err
}

func (f *fakeDuelService) Cancel(_ context.Context, u duel.User, gameID string) (*duel.GameView, error) {
	f.record("cancel", u)
	return f.view, f.err
}

func startTestServer(t *testing.T, svc DuelService) *Server {
	t.Helper()
	s := NewServer("unused", svc, nil, zerolog.Nop())
	go s.run()
	t.Cleanup(func() { s.cancel() })

	h := httptest.NewServer(http.HandlerFunc(s.handleWebSocket))
	t.Cleanup(h.Close)
	s.addr = "ws" + strings.TrimPrefix(h.URL, "http")
	return s
}

func dialTestServer(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.addr, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendMessage(t *testing.T, conn *websocket.Conn, msgType MessageType, payload interface{}) {
	t.Helper()
	msg, err := NewMessage(msgType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(msg))
}

// readMessage reads frames until one of the wanted type arrives.
func readMessage(t *testing.T, conn *websocket.Conn, want MessageType) *Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == want {
			return &msg
		}
	}
}

func authenticate(t *testing.T, conn *websocket.Conn, userID string) {
	t.Helper()
	sendMessage(t, conn, MessageTypeAuth, AuthData{UserID: userID, Username: "u-" + userID})
	msg := readMessage(t, conn, MessageTypeAuthResponse)

	var data AuthResponseData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	require.True(t, data.Success)
	require.Equal(t, userID, data.UserID)
}

func testView(id string) *duel.GameView {
	return &duel.GameView{ID: id, Amount: 1000, SlotCount: 2, State: duel.StateCreated}
}

func TestAuthHandshake(t *testing.T) {
	svc := &fakeDuelService{view: testView("g1")}
	s := startTestServer(t, svc)
	conn := dialTestServer(t, s)

	authenticate(t, conn, "alice")
}

func TestAuthRejectsEmptyIdentity(t *testing.T) {
	svc := &fakeDuelService{view: testView("g1")}
	s := startTestServer(t, svc)
	conn := dialTestServer(t, s)

	sendMessage(t, conn, MessageTypeAuth, AuthData{Username: "nameless"})
	msg := readMessage(t, conn, MessageTypeError)

	var data ErrorData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "invalid_auth", data.Code)
}

func TestActionsRequireAuth(t *testing.T) {
	svc := &fakeDuelService{view: testView("g1")}
	s := startTestServer(t, svc)
	conn := dialTestServer(t, s)

	sendMessage(t, conn, MessageTypeCreateDuel, CreateDuelData{Amount: 1000, SlotCount: 2})
	msg := readMessage(t, conn, MessageTypeError)

	var data ErrorData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "not_authenticated", data.Code)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Empty(t, svc.calls)
}

func TestCreateDuel(t *testing.T) {
	svc := &fakeDuelService{view: testView("g1")}
	s := startTestServer(t, svc)
	conn := dialTestServer(t, s)
	authenticate(t, conn, "alice")

	sendMessage(t, conn, MessageTypeCreateDuel, CreateDuelData{Amount: 1000, SlotCount: 2})
	msg := readMessage(t, conn, MessageTypeDuelGame)

	var data DuelGameData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "g1", data.Game.ID)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Contains(t, svc.calls, "create")
	assert.Equal(t, "alice", svc.lastUser.ID)
}

func TestGameActions(t *testing.T) {
	tests := []struct {
		msgType MessageType
		call    string
	}{
		{MessageTypeJoinDuel, "join"},
		{MessageTypeCallBot, "callbots"},
		{MessageTypeCancelDuel, "cancel"},
	}

	for _, tt := range tests {
		t.Run(string(tt.msgType), func(t *testing.T) {
			svc := &fakeDuelService{view: testView("g1")}
			s := startTestServer(t, svc)
			conn := dialTestServer(t, s)
			authenticate(t, conn, "bob")

			sendMessage(t, conn, tt.msgType, GameRefData{GameID: "g1"})
			readMessage(t, conn, MessageTypeDuelGame)

			svc.mu.Lock()
			defer svc.mu.Unlock()
			assert.Contains(t, svc.calls, tt.call)
			assert.Equal(t, "bob", svc.lastUser.ID)
		})
	}
}

func TestErrorCodeMapping(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{duel.ErrInsufficientFunds, "insufficient_funds"},
		{duel.ErrGameUnavailable, "game_unavailable"},
		{duel.ErrAlreadyJoined, "already_joined"},
		{duel.ErrNotCreator, "not_creator"},
		{duel.ErrTooManyGames, "too_many_games"},
		{duel.ErrLocked, "locked"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			svc := &fakeDuelService{err: tt.err}
			s := startTestServer(t, svc)
			conn := dialTestServer(t, s)
			authenticate(t, conn, "alice")

			sendMessage(t, conn, MessageTypeJoinDuel, GameRefData{GameID: "g1"})
			msg := readMessage(t, conn, MessageTypeError)

			var data ErrorData
			require.NoError(t, json.Unmarshal(msg.Data, &data))
			assert.Equal(t, tt.code, data.Code)
		})
	}
}

func TestGetDuelsData(t *testing.T) {
	svc := &fakeDuelService{view: testView("g1")}
	s := startTestServer(t, svc)
	conn := dialTestServer(t, s)

	// The lobby feed needs no authentication.
	sendMessage(t, conn, MessageTypeGetDuelsData, struct{}{})
	msg := readMessage(t, conn, MessageTypeDuelsData)

	var snapshot duel.Snapshot
	require.NoError(t, json.Unmarshal(msg.Data, &snapshot))
	require.Len(t, snapshot.Games, 1)
	assert.Equal(t, "g1", snapshot.Games[0].ID)
}

func TestPublishBroadcastsToAllClients(t *testing.T) {
	svc := &fakeDuelService{view: testView("g1")}
	s := startTestServer(t, svc)

	conn1 := dialTestServer(t, s)
	conn2 := dialTestServer(t, s)

	require.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.connections) == 2
	}, 5*time.Second, 10*time.Millisecond)

	s.Publish(duel.Topic, testView("g9"))

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		msg := readMessage(t, conn, MessageTypeDuelGame)
		var data DuelGameData
		require.NoError(t, json.Unmarshal(msg.Data, &data))
		assert.Equal(t, "g9", data.Game.ID)
	}
}

func TestUnknownMessageType(t *testing.T) {
	svc := &fakeDuelService{view: testView("g1")}
	s := startTestServer(t, svc)
	conn := dialTestServer(t, s)

	sendMessage(t, conn, MessageType("warp_drive"), struct{}{})
	msg := readMessage(t, conn, MessageTypeError)

	var data ErrorData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "unknown_message_type", data.Code)
}
