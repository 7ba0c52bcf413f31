package duel

import (
	"context"
	"time"

	"github.com/duelhouse/duelsrv/internal/fair"
)

// headTimeout bounds a single fairness source request.
const headTimeout = 10 * time.Second

// validate fetches the public seed from the external randomness source and
// advances the game towards rolling. Runs in the background off a scheduler
// timer; failures are never surfaced to a caller, the step retries on a fixed
// interval indefinitely.
func (e *Engine) validate(gameID string) {
	ctx := context.Background()

	e.mu.Lock()
	g, ok := e.registry.Get(gameID)
	if !ok || g.State.Terminal() {
		e.mu.Unlock()
		return
	}
	g.State = StatePending
	g.UpdatedAt = e.clock.Now()
	persisted := g.Clone()
	snap := Sanitize(g)
	e.mu.Unlock()

	if err := e.store.SaveGame(ctx, persisted); err != nil {
		e.logger.Error().Err(err).Str("game_id", gameID).Msg("failed to persist pending state")
	}
	e.pub.Publish(Topic, snap)

	headCtx, cancel := context.WithTimeout(ctx, headTimeout)
	blockID, blockNum, err := e.blocks.Head(headCtx)
	cancel()
	if err != nil {
		e.logger.Warn().Err(err).
			Str("game_id", gameID).
			Dur("retry_in", e.cfg.RetryInterval).
			Msg("fairness source unreachable, will retry")
		e.sched.After(gameID, e.cfg.RetryInterval, func() {
			e.validate(gameID)
		})
		return
	}

	e.mu.Lock()
	g, ok = e.registry.Get(gameID)
	if !ok || g.State != StatePending {
		e.mu.Unlock()
		return
	}
	g.Fair.PublicSeed = blockID
	g.Fair.BlockNum = blockNum
	g.UpdatedAt = e.clock.Now()
	persisted = g.Clone()
	e.mu.Unlock()

	if err := e.store.SaveGame(ctx, persisted); err != nil {
		e.logger.Error().Err(err).Str("game_id", gameID).Msg("failed to persist public seed")
	}

	e.logger.Info().
		Str("game_id", gameID).
		Int64("block_num", blockNum).
		Msg("Public seed obtained")

	e.sched.After(gameID, e.cfg.RevealDelay, func() {
		e.roll(gameID)
	})
}

// roll derives every bet's roll from the committed seeds, picks the winner
// and schedules settlement after the reveal animation window.
func (e *Engine) roll(gameID string) {
	ctx := context.Background()

	e.mu.Lock()
	g, ok := e.registry.Get(gameID)
	if !ok || g.State != StatePending || g.Fair.PublicSeed == "" {
		e.mu.Unlock()
		return
	}

	for i, b := range g.Bets {
		b.Roll = fair.Derive(g.ID, g.Fair.ServerSeed, g.Fair.PublicSeed, i)
	}

	winner := PickWinner(g.Bets)
	winner.Payout = WinnerPayout(g.Amount, g.SlotCount)
	g.WinnerBetID = winner.ID
	g.State = StateRolling
	g.UpdatedAt = e.clock.Now()

	delay := time.Duration(len(g.Bets)) * e.cfg.CompleteDelayPerBet
	persisted := g.Clone()
	snap := Sanitize(g)
	e.mu.Unlock()

	if err := e.store.SaveGame(ctx, persisted); err != nil {
		e.logger.Error().Err(err).Str("game_id", gameID).Msg("failed to persist roll")
	}

	e.logger.Info().
		Str("game_id", gameID).
		Str("winner_bet_id", winner.ID).
		Int("roll", winner.Roll).
		Msg("Duel rolled")

	e.pub.Publish(Topic, snap)

	e.sched.After(gameID, delay, func() {
		e.complete(gameID)
	})
}

// complete settles a rolled game: the winner is paid the raked pot, losing
// bets settle at zero, and the game moves from the active set to history.
// The state transition happens once under the lock, so settlement cannot
// execute twice.
func (e *Engine) complete(gameID string) {
	ctx := context.Background()

	e.mu.Lock()
	g, ok := e.registry.Get(gameID)
	if !ok || g.State != StateRolling {
		e.mu.Unlock()
		return
	}
	g.State = StateCompleted
	g.UpdatedAt = e.clock.Now()

	var winner *Bet
	for _, b := range g.Bets {
		if b.ID == g.WinnerBetID {
			winner = b
		} else {
			b.Payout = 0
		}
	}
	e.registry.Remove(gameID)
	persisted := g.Clone()
	snap := Sanitize(g)
	e.registry.PushHistory(snap)
	e.mu.Unlock()

	if winner != nil && winner.User != nil {
		if err := e.ledger.Credit(ctx, winner.User.ID, winner.Payout); err != nil {
			e.logger.Error().Err(err).
				Str("game_id", gameID).
				Str("user_id", winner.User.ID).
				Int64("payout", winner.Payout).
				Msg("failed to credit winner payout")
		} else {
			e.recordTx(ctx, TxKindWin, winner.User.ID, winner.Payout)
		}
	}

	if err := e.store.SaveGame(ctx, persisted); err != nil {
		e.logger.Error().Err(err).Str("game_id", gameID).Msg("failed to persist completed game")
	}

	e.logger.Info().
		Str("game_id", gameID).
		Str("winner_bet_id", g.WinnerBetID).
		Msg("Duel completed")

	e.pub.Publish(Topic, snap)
}

// Resume rebuilds the engine after a restart: history is reloaded, games
// persisted in a non-terminal state are re-admitted and their timers re-armed
// from the persisted state and timestamp, and games that crashed between
// filling and starting their countdown are force-canceled with refunds.
func (e *Engine) Resume(ctx context.Context) error {
	history, err := e.store.LoadHistory(ctx, HistorySize)
	if err != nil {
		return err
	}
	e.registry.SeedHistory(SanitizeAll(history))

	games, err := e.store.LoadActive(ctx)
	if err != nil {
		return err
	}

	now := e.clock.Now()
	for _, g := range games {
		switch {
		case g.State == StateCreated && g.Full():
			// Orphaned: filled but the countdown transition never landed.
			e.forceCancel(ctx, g)

		case g.State == StateCreated:
			e.registry.Add(g)

		case g.State == StateCountdown:
			e.registry.Add(g)
			remaining := e.cfg.CountdownDelay - now.Sub(g.UpdatedAt)
			gameID := g.ID
			e.sched.After(gameID, remaining, func() { e.validate(gameID) })
			e.logger.Info().Str("game_id", g.ID).Dur("remaining", remaining).Msg("Resumed countdown")

		case g.State == StatePending:
			e.registry.Add(g)
			gameID := g.ID
			e.sched.After(gameID, 0, func() { e.validate(gameID) })
			e.logger.Info().Str("game_id", g.ID).Msg("Resumed pending validate")

		case g.State == StateRolling:
			e.registry.Add(g)
			remaining := time.Duration(len(g.Bets))*e.cfg.CompleteDelayPerBet - now.Sub(g.UpdatedAt)
			gameID := g.ID
			e.sched.After(gameID, remaining, func() { e.complete(gameID) })
			e.logger.Info().Str("game_id", g.ID).Dur("remaining", remaining).Msg("Resumed completion timer")
		}
	}

	e.logger.Info().
		Int("active", len(e.registry.ListActive())).
		Int("history", len(e.registry.ListHistory())).
		Msg("Duel engine resumed")
	return nil
}

// forceCancel closes an orphaned game found during recovery, refunding every
// human stake.
func (e *Engine) forceCancel(ctx context.Context, g *Game) {
	g.State = StateCanceled
	g.UpdatedAt = e.clock.Now()

	for _, b := range g.Bets {
		e.refund(ctx, b.User, b.Amount)
	}
	if err := e.store.SaveGame(ctx, g); err != nil {
		e.logger.Error().Err(err).Str("game_id", g.ID).Msg("failed to persist force-canceled game")
	}

	e.logger.Warn().Str("game_id", g.ID).Msg("Force-canceled orphaned game during recovery")
}
