package duel

import "time"

// State is the lifecycle phase of a duel game.
type State string

const (
	StateCreated   State = "created"
	StateCountdown State = "countdown"
	StatePending   State = "pending"
	StateRolling   State = "rolling"
	StateCompleted State = "completed"
	StateCanceled  State = "canceled"
)

// Terminal reports whether no further transitions can occur.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCanceled
}

// Slot count bounds for a game, fixed at creation.
const (
	MinSlots = 2
	MaxSlots = 10
)

// MaxOpenGames is the number of unfilled games a single creator may hold.
const MaxOpenGames = 6

// User is the public display form of a participant. The engine never carries
// more identity than this; authentication happens upstream.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Avatar    string `json:"avatar"`
	Rank      string `json:"rank"`
	Anonymous bool   `json:"anonymous"`
}

// Fairness holds the commit-reveal material for a game. ServerSeed stays
// secret until the game completes; ServerSeedHash is published at creation
// and never changes.
type Fairness struct {
	ServerSeed     string
	ServerSeedHash string
	PublicSeed     string
	BlockNum       int64
}

// Bet is one participant's stake in a game. A nil User marks a bot-filled
// slot; Bot is kept alongside so the distinction survives serialization.
type Bet struct {
	ID        string
	GameID    string
	User      *User
	Bot       bool
	Amount    int64
	Roll      int   // in [0, 10000) once rolled, -1 before
	Payout    int64 // settled payout, -1 before settlement
	CreatedAt time.Time
}

// Game is a single wager round. Owned by the Registry while active.
type Game struct {
	ID          string
	Amount      int64 // stake per participant, smallest currency unit
	SlotCount   int
	Bets        []*Bet // join order
	Fair        Fairness
	State       State
	WinnerBetID string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Full reports whether every slot holds a bet.
func (g *Game) Full() bool {
	return len(g.Bets) >= g.SlotCount
}

// Creator returns the owner of the first bet, or nil for a corrupt game.
func (g *Game) Creator() *User {
	if len(g.Bets) == 0 {
		return nil
	}
	return g.Bets[0].User
}

// CreatedBy reports whether the game was opened by the given user.
func (g *Game) CreatedBy(userID string) bool {
	c := g.Creator()
	return c != nil && c.ID == userID
}

// HasBetBy reports whether the user already holds a bet in this game.
func (g *Game) HasBetBy(userID string) bool {
	for _, b := range g.Bets {
		if b.User != nil && b.User.ID == userID {
			return true
		}
	}
	return false
}

// Pot is the total staked amount across placed bets.
func (g *Game) Pot() int64 {
	var sum int64
	for _, b := range g.Bets {
		sum += b.Amount
	}
	return sum
}

// Clone returns a deep copy, so snapshots never alias registry-owned state.
func (g *Game) Clone() *Game {
	cp := *g
	cp.Bets = make([]*Bet, len(g.Bets))
	for i, b := range g.Bets {
		bc := *b
		if b.User != nil {
			uc := *b.User
			bc.User = &uc
		}
		cp.Bets[i] = &bc
	}
	return &cp
}
