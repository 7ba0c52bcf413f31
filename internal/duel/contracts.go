package duel

import "context"

// Transaction kinds recorded against the ledger.
const (
	TxKindBet    = "duels_bet"
	TxKindWin    = "duels_win"
	TxKindRefund = "duels_refund"
)

// Topic is the shared broadcast topic for game snapshots.
const Topic = "duels"

// Ledger moves money. The engine only ever issues debits, credits and
// transaction records; bookkeeping beyond that lives elsewhere.
type Ledger interface {
	// Debit removes amount from the user's balance. Returns
	// ErrInsufficientFunds when the balance does not cover it.
	Debit(ctx context.Context, userID string, amount int64) error
	Credit(ctx context.Context, userID string, amount int64) error
	RecordTransaction(ctx context.Context, kind, userID string, amount int64) error
}

// Store is the durable source of truth for games. The in-memory registry is a
// cache rebuilt from it at startup.
type Store interface {
	SaveGame(ctx context.Context, g *Game) error
	LoadGame(ctx context.Context, id string) (*Game, error)
	// LoadActive returns every game persisted in a non-terminal state.
	LoadActive(ctx context.Context) ([]*Game, error)
	// LoadHistory returns the most recent completed games, newest first.
	LoadHistory(ctx context.Context, limit int) ([]*Game, error)
}

// Publisher is the outbound broadcast sink. Snapshots are already sanitized
// when they reach it.
type Publisher interface {
	Publish(topic string, snapshot *GameView)
}

// BlockSource supplies the externally auditable public randomness used at the
// validate step: the id and number of the chain's current head block.
type BlockSource interface {
	Head(ctx context.Context) (blockID string, blockNum int64, err error)
}
