package duel

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGame(id, creatorID string) *Game {
	return &Game{
		ID:        id,
		Amount:    1000,
		SlotCount: 2,
		State:     StateCreated,
		Bets: []*Bet{{
			ID:     id + "-bet0",
			GameID: id,
			User:   &User{ID: creatorID, Username: "u-" + creatorID},
			Amount: 1000,
			Roll:   -1,
			Payout: -1,
		}},
	}
}

func TestRegistryAddGetRemove(t *testing.T) {
	r := NewRegistry()

	g := newTestGame("g1", "alice")
	r.Add(g)

	got, ok := r.Get("g1")
	require.True(t, ok)
	assert.Same(t, g, got)

	_, ok = r.Get("missing")
	assert.False(t, ok)

	removed, ok := r.Remove("g1")
	require.True(t, ok)
	assert.Same(t, g, removed)

	_, ok = r.Get("g1")
	assert.False(t, ok)

	_, ok = r.Remove("g1")
	assert.False(t, ok)
}

func TestRegistryReplace(t *testing.T) {
	r := NewRegistry()
	r.Add(newTestGame("g1", "alice"))

	updated := newTestGame("g1", "alice")
	updated.State = StateCountdown
	r.Replace("g1", updated)

	got, ok := r.Get("g1")
	require.True(t, ok)
	assert.Equal(t, StateCountdown, got.State)

	// Replacing an unknown id must not register it.
	r.Replace("ghost", newTestGame("ghost", "bob"))
	_, ok = r.Get("ghost")
	assert.False(t, ok)
}

func TestRegistryListActiveOrder(t *testing.T) {
	r := NewRegistry()
	for i := range 5 {
		r.Add(newTestGame(fmt.Sprintf("g%d", i), "alice"))
	}
	r.Remove("g2")

	var ids []string
	for _, g := range r.ListActive() {
		ids = append(ids, g.ID)
	}
	assert.Equal(t, []string{"g0", "g1", "g3", "g4"}, ids)
}

func TestRegistryCountByCreator(t *testing.T) {
	r := NewRegistry()
	r.Add(newTestGame("g1", "alice"))
	r.Add(newTestGame("g2", "alice"))
	r.Add(newTestGame("g3", "bob"))

	assert.Equal(t, 2, r.CountByCreator("alice"))
	assert.Equal(t, 1, r.CountByCreator("bob"))
	assert.Equal(t, 0, r.CountByCreator("carol"))
}

func TestRegistryHistoryCapAndOrder(t *testing.T) {
	r := NewRegistry()

	for i := range HistorySize + 10 {
		r.PushHistory(&GameView{ID: fmt.Sprintf("h%d", i)})
	}

	history := r.ListHistory()
	require.Len(t, history, HistorySize)

	// Most recent first, oldest evicted.
	assert.Equal(t, fmt.Sprintf("h%d", HistorySize+9), history[0].ID)
	assert.Equal(t, "h10", history[HistorySize-1].ID)
}

func TestRegistrySeedHistory(t *testing.T) {
	r := NewRegistry()

	views := make([]*GameView, HistorySize+5)
	for i := range views {
		views[i] = &GameView{ID: fmt.Sprintf("h%d", i)}
	}
	r.SeedHistory(views)

	history := r.ListHistory()
	require.Len(t, history, HistorySize)
	assert.Equal(t, "h0", history[0].ID)
}
