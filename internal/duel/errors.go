package duel

import "errors"

// Caller-facing failures. Every error carries a human-readable message and is
// matched with errors.Is at the transport boundary; none of them is fatal to
// the process.
var (
	// ErrInvalidInput covers malformed or out-of-range amounts, slot counts
	// and ids, rejected before any mutation.
	ErrInvalidInput = errors.New("invalid input data")

	// ErrGameNotFound is returned when no active or settled game matches.
	ErrGameNotFound = errors.New("your entered game id is not available")

	// ErrGameUnavailable means the game exists but is in the wrong state for
	// the requested action, or every slot is taken or reserved.
	ErrGameUnavailable = errors.New("your requested game is not available or completed")

	// ErrAlreadyJoined rejects a second bet by the same user in one game.
	ErrAlreadyJoined = errors.New("you are not allowed to join more than one time per duels game")

	// ErrNotCreator guards creator-only actions (cancel, bot call).
	ErrNotCreator = errors.New("you are not allowed to perform this action for this game")

	// ErrLocked signals a concurrent operation holds the guard. Transient;
	// the caller may simply retry.
	ErrLocked = errors.New("this action is temporarily unavailable, please try again")

	// ErrInsufficientFunds is surfaced from the ledger debit.
	ErrInsufficientFunds = errors.New("you don't have enough balance for this action")

	// ErrTooManyGames caps how many unfilled games one creator may hold.
	ErrTooManyGames = errors.New("you are not allowed to have more than 6 open duels games")
)

// Transient reports whether an error is a retryable concurrency condition
// rather than a real game-state failure.
func Transient(err error) bool {
	return errors.Is(err, ErrLocked)
}
