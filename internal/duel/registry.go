package duel

import "sync"

// HistorySize is the capacity of the recent-games buffer.
const HistorySize = 25

// Registry owns the authoritative in-memory list of active games plus a
// bounded most-recent-first history of completed ones. It never performs I/O;
// the Engine mutates it and keeps the store in sync.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	games   map[string]*Game
	history []*GameView
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{games: make(map[string]*Game)}
}

// Add registers an active game. Duplicate ids replace the existing entry.
func (r *Registry) Add(g *Game) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.games[g.ID]; !ok {
		r.order = append(r.order, g.ID)
	}
	r.games[g.ID] = g
}

// Get returns the active game for an id, reporting absence rather than
// failing.
func (r *Registry) Get(id string) (*Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[id]
	return g, ok
}

// Replace swaps the stored game for id. No-op when the id is not active.
func (r *Registry) Replace(id string, g *Game) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.games[id]; ok {
		r.games[id] = g
	}
}

// Remove drops a game from the active set and returns it.
func (r *Registry) Remove(id string) (*Game, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.games[id]
	if !ok {
		return nil, false
	}
	delete(r.games, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return g, true
}

// ListActive returns active games in insertion order.
func (r *Registry) ListActive() []*Game {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Game, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.games[id])
	}
	return out
}

// CountByCreator returns how many active games were opened by the user.
func (r *Registry) CountByCreator(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, g := range r.games {
		if g.CreatedBy(userID) {
			n++
		}
	}
	return n
}

// PushHistory prepends a settled game snapshot, evicting the oldest entry
// beyond HistorySize.
func (r *Registry) PushHistory(v *GameView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append([]*GameView{v}, r.history...)
	if len(r.history) > HistorySize {
		r.history = r.history[:HistorySize]
	}
}

// SeedHistory replaces the history buffer wholesale, newest first. Used by
// startup recovery.
func (r *Registry) SeedHistory(views []*GameView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(views) > HistorySize {
		views = views[:HistorySize]
	}
	r.history = append([]*GameView(nil), views...)
}

// ListHistory returns the recent completed games, newest first.
func (r *Registry) ListHistory() []*GameView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*GameView(nil), r.history...)
}
