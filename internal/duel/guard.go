package duel

import "sync"

// Guard serializes mutating operations that span I/O suspension points.
// Three lock categories exist: a per-game busy set shared by bot-call and
// cancel, per-game join reservations that hold a slot while a join awaits its
// debit and persistence, and a per-user set preventing one user from racing
// two create requests.
//
// This is the sole mechanism preventing overfill: capacity checks must count
// reservations on top of placed bets, otherwise two joins racing for the last
// open slot would both observe it free.
type Guard struct {
	mu        sync.Mutex
	busyGames map[string]bool
	joins     map[string]int
	busyUsers map[string]bool
}

// NewGuard constructs an empty guard.
func NewGuard() *Guard {
	return &Guard{
		busyGames: make(map[string]bool),
		joins:     make(map[string]int),
		busyUsers: make(map[string]bool),
	}
}

// AcquireGame takes the game busy lock. Returns false when already held.
func (gd *Guard) AcquireGame(gameID string) bool {
	gd.mu.Lock()
	defer gd.mu.Unlock()
	if gd.busyGames[gameID] {
		return false
	}
	gd.busyGames[gameID] = true
	return true
}

// ReleaseGame drops the game busy lock. Safe to call on every exit path.
func (gd *Guard) ReleaseGame(gameID string) {
	gd.mu.Lock()
	defer gd.mu.Unlock()
	delete(gd.busyGames, gameID)
}

// GameBusy reports whether a bot-call or cancel currently holds the game.
func (gd *Guard) GameBusy(gameID string) bool {
	gd.mu.Lock()
	defer gd.mu.Unlock()
	return gd.busyGames[gameID]
}

// ReserveJoin records one in-flight join against the game.
func (gd *Guard) ReserveJoin(gameID string) {
	gd.mu.Lock()
	defer gd.mu.Unlock()
	gd.joins[gameID]++
}

// ReleaseJoin drops one in-flight join reservation.
func (gd *Guard) ReleaseJoin(gameID string) {
	gd.mu.Lock()
	defer gd.mu.Unlock()
	if gd.joins[gameID] <= 1 {
		delete(gd.joins, gameID)
		return
	}
	gd.joins[gameID]--
}

// JoinsInFlight returns the number of reservations held against the game.
func (gd *Guard) JoinsInFlight(gameID string) int {
	gd.mu.Lock()
	defer gd.mu.Unlock()
	return gd.joins[gameID]
}

// AcquireUser takes the per-user create lock. Returns false when held.
func (gd *Guard) AcquireUser(userID string) bool {
	gd.mu.Lock()
	defer gd.mu.Unlock()
	if gd.busyUsers[userID] {
		return false
	}
	gd.busyUsers[userID] = true
	return true
}

// ReleaseUser drops the per-user create lock.
func (gd *Guard) ReleaseUser(userID string) {
	gd.mu.Lock()
	defer gd.mu.Unlock()
	delete(gd.busyUsers, userID)
}
