package duel

import "time"

// GameView is the broadcast-safe snapshot of a game. Before completion the
// fairness block carries only the committed hash; after completion the full
// commit-reveal data is disclosed so anyone can audit the outcome.
type GameView struct {
	ID          string    `json:"id"`
	Amount      int64     `json:"amount"`
	SlotCount   int       `json:"slotCount"`
	State       State     `json:"state"`
	Fair        FairView  `json:"fair"`
	Bets        []BetView `json:"bets"`
	WinnerBetID string    `json:"winnerBetId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// FairView is the public slice of a game's fairness data.
type FairView struct {
	ServerSeedHash string `json:"serverSeedHash"`
	ServerSeed     string `json:"serverSeed,omitempty"`
	PublicSeed     string `json:"publicSeed,omitempty"`
	BlockNum       int64  `json:"blockNum,omitempty"`
}

// BetView is the public form of a bet. Roll and Payout are nil until the
// game rolls and settles respectively.
type BetView struct {
	ID     string `json:"id"`
	GameID string `json:"gameId"`
	User   *User  `json:"user"`
	Bot    bool   `json:"bot"`
	Amount int64  `json:"amount"`
	Roll   *int   `json:"roll"`
	Payout *int64 `json:"payout"`
}

// Sanitize builds the broadcast snapshot for a game.
func Sanitize(g *Game) *GameView {
	v := &GameView{
		ID:          g.ID,
		Amount:      g.Amount,
		SlotCount:   g.SlotCount,
		State:       g.State,
		Fair:        FairView{ServerSeedHash: g.Fair.ServerSeedHash},
		Bets:        make([]BetView, len(g.Bets)),
		WinnerBetID: g.WinnerBetID,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}

	if g.State == StateCompleted {
		v.Fair.ServerSeed = g.Fair.ServerSeed
		v.Fair.PublicSeed = g.Fair.PublicSeed
		v.Fair.BlockNum = g.Fair.BlockNum
	}

	for i, b := range g.Bets {
		bv := BetView{
			ID:     b.ID,
			GameID: b.GameID,
			Bot:    b.Bot,
			Amount: b.Amount,
		}
		if b.User != nil {
			u := *b.User
			bv.User = &u
		}
		if b.Roll >= 0 {
			roll := b.Roll
			bv.Roll = &roll
		}
		if b.Payout >= 0 {
			payout := b.Payout
			bv.Payout = &payout
		}
		v.Bets[i] = bv
	}
	return v
}

// SanitizeAll maps Sanitize over a list of games.
func SanitizeAll(games []*Game) []*GameView {
	views := make([]*GameView, len(games))
	for i, g := range games {
		views[i] = Sanitize(g)
	}
	return views
}
