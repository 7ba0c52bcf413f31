package duel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/duelhouse/duelsrv/internal/duelid"
	"github.com/duelhouse/duelsrv/internal/fair"
)

// Config holds the engine's tunable limits and transition delays.
type Config struct {
	MinAmount int64
	MaxAmount int64

	// CountdownDelay runs between a game filling and the fairness fetch.
	CountdownDelay time.Duration
	// RevealDelay paces the gap between obtaining the public seed and rolling.
	RevealDelay time.Duration
	// CompleteDelayPerBet is multiplied by the bet count to pace the
	// per-participant reveal animation before settlement.
	CompleteDelayPerBet time.Duration
	// RetryInterval is the backoff between fairness source attempts.
	RetryInterval time.Duration
}

// DefaultConfig returns the production delays and stake bounds.
func DefaultConfig() Config {
	return Config{
		MinAmount:           1000,
		MaxAmount:           10000000,
		CountdownDelay:      4 * time.Second,
		RevealDelay:         time.Second,
		CompleteDelayPerBet: 5 * time.Second,
		RetryInterval:       15 * time.Second,
	}
}

// Engine drives duel games from creation to settlement.
//
// All in-memory game mutation happens under a single mutex that is never held
// across I/O; snapshots and persistence payloads are cloned under the lock.
// Races that span I/O suspension points (a debit in flight while another join
// inspects the slot count) are excluded by the Guard.
type Engine struct {
	cfg      Config
	mu       sync.Mutex
	registry *Registry
	guard    *Guard
	sched    *Scheduler
	clock    quartz.Clock
	store    Store
	ledger   Ledger
	pub      Publisher
	blocks   BlockSource
	logger   zerolog.Logger
}

// NewEngine wires the engine with its collaborators. Tests substitute fakes
// for the store, ledger, publisher and block source, and a quartz mock clock.
func NewEngine(cfg Config, store Store, ledger Ledger, pub Publisher, blocks BlockSource, clock quartz.Clock, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		registry: NewRegistry(),
		guard:    NewGuard(),
		sched:    NewScheduler(clock),
		clock:    clock,
		store:    store,
		ledger:   ledger,
		pub:      pub,
		blocks:   blocks,
		logger:   logger.With().Str("component", "duel-engine").Logger(),
	}
}

// Registry exposes the active-game registry, mainly for tests.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Scheduler exposes the transition scheduler, mainly for tests.
func (e *Engine) Scheduler() *Scheduler {
	return e.sched
}

// Snapshot is the sanitized payload sent to clients on connect: every active
// game plus the recent history.
type Snapshot struct {
	Games   []*GameView `json:"games"`
	History []*GameView `json:"history"`
}

// Data builds the current snapshot.
func (e *Engine) Data() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Games:   SanitizeAll(e.registry.ListActive()),
		History: e.registry.ListHistory(),
	}
}

// GetGame resolves a game by id, falling back to the store for settled games.
func (e *Engine) GetGame(ctx context.Context, gameID string) (*GameView, error) {
	if err := duelid.Validate(gameID); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	e.mu.Lock()
	if g, ok := e.registry.Get(gameID); ok {
		snap := Sanitize(g)
		e.mu.Unlock()
		return snap, nil
	}
	e.mu.Unlock()

	g, err := e.store.LoadGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("load game: %w", err)
	}
	if g == nil {
		return nil, ErrGameNotFound
	}
	return Sanitize(g), nil
}

// Create opens a new game with the acting user's stake as the first bet.
func (e *Engine) Create(ctx context.Context, user User, amount int64, slotCount int) (*GameView, error) {
	if user.ID == "" || amount <= 0 {
		return nil, ErrInvalidInput
	}
	if slotCount < MinSlots || slotCount > MaxSlots {
		return nil, fmt.Errorf("%w: a duel needs between %d and %d players", ErrInvalidInput, MinSlots, MaxSlots)
	}
	if amount < e.cfg.MinAmount {
		return nil, fmt.Errorf("%w: the minimum bet per game is %d", ErrInvalidInput, e.cfg.MinAmount)
	}
	if amount > e.cfg.MaxAmount {
		return nil, fmt.Errorf("%w: the maximum bet per game is %d", ErrInvalidInput, e.cfg.MaxAmount)
	}

	if !e.guard.AcquireUser(user.ID) {
		return nil, ErrLocked
	}
	defer e.guard.ReleaseUser(user.ID)

	if e.registry.CountByCreator(user.ID) >= MaxOpenGames {
		return nil, ErrTooManyGames
	}

	commitment, err := fair.Commit()
	if err != nil {
		return nil, fmt.Errorf("commit fairness seed: %w", err)
	}

	if err := e.ledger.Debit(ctx, user.ID, amount); err != nil {
		return nil, err
	}
	e.recordTx(ctx, TxKindBet, user.ID, amount)

	now := e.clock.Now()
	owner := user
	g := &Game{
		ID:        duelid.New(),
		Amount:    amount,
		SlotCount: slotCount,
		State:     StateCreated,
		Fair: Fairness{
			ServerSeed:     commitment.ServerSeed,
			ServerSeedHash: commitment.ServerSeedHash,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	g.Bets = append(g.Bets, &Bet{
		ID:        duelid.New(),
		GameID:    g.ID,
		User:      &owner,
		Amount:    amount,
		Roll:      -1,
		Payout:    -1,
		CreatedAt: now,
	})

	if err := e.store.SaveGame(ctx, g); err != nil {
		e.refund(ctx, &owner, amount)
		return nil, fmt.Errorf("persist game: %w", err)
	}

	e.mu.Lock()
	e.registry.Add(g)
	snap := Sanitize(g)
	e.mu.Unlock()

	e.logger.Info().
		Str("game_id", g.ID).
		Str("user_id", user.ID).
		Int64("amount", amount).
		Int("slots", slotCount).
		Msg("Duel created")

	e.pub.Publish(Topic, snap)
	return snap, nil
}

// Join appends the acting user's stake to an open game.
func (e *Engine) Join(ctx context.Context, user User, gameID string) (*GameView, error) {
	if user.ID == "" {
		return nil, ErrInvalidInput
	}
	if err := duelid.Validate(gameID); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	// Validate and reserve the slot in one locked section so two joins
	// racing for the last slot see each other's reservation.
	e.mu.Lock()
	g, ok := e.registry.Get(gameID)
	if !ok {
		e.mu.Unlock()
		return nil, ErrGameUnavailable
	}
	if g.State != StateCreated || e.guard.GameBusy(gameID) ||
		len(g.Bets)+e.guard.JoinsInFlight(gameID) >= g.SlotCount {
		e.mu.Unlock()
		return nil, ErrGameUnavailable
	}
	if g.HasBetBy(user.ID) {
		e.mu.Unlock()
		return nil, ErrAlreadyJoined
	}
	amount := g.Amount
	e.guard.ReserveJoin(gameID)
	e.mu.Unlock()
	defer e.guard.ReleaseJoin(gameID)

	if err := e.ledger.Debit(ctx, user.ID, amount); err != nil {
		return nil, err
	}
	e.recordTx(ctx, TxKindBet, user.ID, amount)

	owner := user
	bet := &Bet{
		ID:        duelid.New(),
		GameID:    gameID,
		User:      &owner,
		Amount:    amount,
		Roll:      -1,
		Payout:    -1,
		CreatedAt: e.clock.Now(),
	}

	// The game may have been canceled while the debit was in flight.
	e.mu.Lock()
	g, ok = e.registry.Get(gameID)
	if !ok || g.State != StateCreated {
		e.mu.Unlock()
		e.refund(ctx, &owner, amount)
		return nil, ErrGameUnavailable
	}
	g.Bets = append(g.Bets, bet)
	g.UpdatedAt = e.clock.Now()
	persisted := g.Clone()
	e.mu.Unlock()

	if err := e.store.SaveGame(ctx, persisted); err != nil {
		e.mu.Lock()
		e.removeBet(g, bet.ID)
		e.mu.Unlock()
		e.refund(ctx, &owner, amount)
		return nil, fmt.Errorf("persist game: %w", err)
	}

	e.logger.Info().
		Str("game_id", gameID).
		Str("user_id", user.ID).
		Int("bets", len(persisted.Bets)).
		Msg("Player joined duel")

	e.mu.Lock()
	snap := Sanitize(g)
	e.mu.Unlock()
	e.pub.Publish(Topic, snap)

	e.checkFill(ctx, gameID)
	return snap, nil
}

// CallBots fills every remaining slot with bot-owned stakes. Creator only.
func (e *Engine) CallBots(ctx context.Context, user User, gameID string) (*GameView, error) {
	if user.ID == "" {
		return nil, ErrInvalidInput
	}
	if err := duelid.Validate(gameID); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	e.mu.Lock()
	g, ok := e.registry.Get(gameID)
	if !ok || g.State != StateCreated || g.Full() {
		e.mu.Unlock()
		return nil, ErrGameUnavailable
	}
	if !g.CreatedBy(user.ID) {
		e.mu.Unlock()
		return nil, ErrNotCreator
	}
	// A join holding a reservation will land its own bet; filling around it
	// would overfill the game, so bot calls wait in-flight joins out.
	if e.guard.JoinsInFlight(gameID) > 0 || !e.guard.AcquireGame(gameID) {
		e.mu.Unlock()
		return nil, ErrLocked
	}
	defer e.guard.ReleaseGame(gameID)

	now := e.clock.Now()
	for len(g.Bets) < g.SlotCount {
		g.Bets = append(g.Bets, &Bet{
			ID:        duelid.New(),
			GameID:    gameID,
			Bot:       true,
			Amount:    g.Amount,
			Roll:      -1,
			Payout:    -1,
			CreatedAt: now,
		})
	}
	g.UpdatedAt = now
	persisted := g.Clone()
	e.mu.Unlock()

	if err := e.store.SaveGame(ctx, persisted); err != nil {
		e.mu.Lock()
		e.trimBots(g)
		e.mu.Unlock()
		return nil, fmt.Errorf("persist game: %w", err)
	}

	e.logger.Info().
		Str("game_id", gameID).
		Int("bets", len(persisted.Bets)).
		Msg("Bots called, game filled")

	e.mu.Lock()
	snap := Sanitize(g)
	e.mu.Unlock()
	e.pub.Publish(Topic, snap)

	e.checkFill(ctx, gameID)
	return snap, nil
}

// Cancel refunds and closes a game that has not started its countdown.
// Creator only.
func (e *Engine) Cancel(ctx context.Context, user User, gameID string) (*GameView, error) {
	if user.ID == "" {
		return nil, ErrInvalidInput
	}
	if err := duelid.Validate(gameID); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	e.mu.Lock()
	g, ok := e.registry.Get(gameID)
	if !ok || g.State != StateCreated {
		e.mu.Unlock()
		return nil, ErrGameUnavailable
	}
	if !g.CreatedBy(user.ID) {
		e.mu.Unlock()
		return nil, ErrNotCreator
	}
	// A full game is about to start and a reserved slot is a join mid-debit;
	// neither may be yanked away.
	if g.Full() || e.guard.JoinsInFlight(gameID) > 0 {
		e.mu.Unlock()
		return nil, ErrGameUnavailable
	}
	if !e.guard.AcquireGame(gameID) {
		e.mu.Unlock()
		return nil, ErrLocked
	}
	defer e.guard.ReleaseGame(gameID)

	// Take the game out of circulation before any refund I/O so nothing can
	// join or advance it meanwhile.
	g.State = StateCanceled
	g.UpdatedAt = e.clock.Now()
	e.sched.Cancel(gameID)
	e.registry.Remove(gameID)
	persisted := g.Clone()
	snap := Sanitize(g)
	e.mu.Unlock()

	for _, b := range persisted.Bets {
		e.refund(ctx, b.User, b.Amount)
	}

	if err := e.store.SaveGame(ctx, persisted); err != nil {
		e.logger.Error().Err(err).Str("game_id", gameID).Msg("failed to persist canceled game")
	}

	e.logger.Info().
		Str("game_id", gameID).
		Str("user_id", user.ID).
		Msg("Duel canceled")

	e.pub.Publish(Topic, snap)
	return snap, nil
}

// refund returns a stake to its owner and records the ledger entry. Bots have
// no owner and nothing to refund. Failures are logged, never propagated; the
// operation boundary recovers.
func (e *Engine) refund(ctx context.Context, user *User, amount int64) {
	if user == nil {
		return
	}
	if err := e.ledger.Credit(ctx, user.ID, amount); err != nil {
		e.logger.Error().Err(err).
			Str("user_id", user.ID).
			Int64("amount", amount).
			Msg("failed to refund stake")
		return
	}
	e.recordTx(ctx, TxKindRefund, user.ID, amount)
}

func (e *Engine) recordTx(ctx context.Context, kind, userID string, amount int64) {
	if err := e.ledger.RecordTransaction(ctx, kind, userID, amount); err != nil {
		e.logger.Error().Err(err).
			Str("kind", kind).
			Str("user_id", userID).
			Msg("failed to record ledger transaction")
	}
}

// removeBet drops a bet that failed to persist. Caller holds e.mu.
func (e *Engine) removeBet(g *Game, betID string) {
	for i, b := range g.Bets {
		if b.ID == betID {
			g.Bets = append(g.Bets[:i], g.Bets[i+1:]...)
			return
		}
	}
}

// trimBots drops bot bets that failed to persist. Caller holds e.mu.
func (e *Engine) trimBots(g *Game) {
	kept := g.Bets[:0]
	for _, b := range g.Bets {
		if !b.Bot {
			kept = append(kept, b)
		}
	}
	g.Bets = kept
}

// checkFill transitions a freshly filled game into countdown and schedules
// the validate step. Shared by Join, CallBots and startup recovery.
func (e *Engine) checkFill(ctx context.Context, gameID string) {
	e.mu.Lock()
	g, ok := e.registry.Get(gameID)
	if !ok || !g.Full() || g.State != StateCreated {
		e.mu.Unlock()
		return
	}
	g.State = StateCountdown
	g.UpdatedAt = e.clock.Now()
	persisted := g.Clone()
	snap := Sanitize(g)
	e.mu.Unlock()

	if err := e.store.SaveGame(ctx, persisted); err != nil {
		e.logger.Error().Err(err).Str("game_id", gameID).Msg("failed to persist countdown state")
	}

	e.logger.Info().Str("game_id", gameID).Msg("Duel filled, countdown started")
	e.pub.Publish(Topic, snap)

	e.sched.After(gameID, e.cfg.CountdownDelay, func() {
		e.validate(gameID)
	})
}
