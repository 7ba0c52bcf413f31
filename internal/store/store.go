package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/duelhouse/duelsrv/internal/duel"
)

// Store is the Postgres-backed implementation of the engine's persistence and
// ledger contracts. Games are written whole: the game row and its bets are
// upserted in a single transaction so a crash never leaves a half-saved game.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// New wraps a connection pool.
func New(pool *pgxpool.Pool, logger zerolog.Logger) *Store {
	return &Store{
		pool:   pool,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// SaveGame upserts a game and all of its bets.
func (s *Store) SaveGame(ctx context.Context, g *duel.Game) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save game: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO duels_games (id, amount, slot_count, state, server_seed, server_seed_hash,
		                         public_seed, block_num, winner_bet_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			public_seed = EXCLUDED.public_seed,
			block_num = EXCLUDED.block_num,
			winner_bet_id = EXCLUDED.winner_bet_id,
			updated_at = EXCLUDED.updated_at`,
		g.ID, g.Amount, g.SlotCount, g.State, g.Fair.ServerSeed, g.Fair.ServerSeedHash,
		g.Fair.PublicSeed, g.Fair.BlockNum, g.WinnerBetID, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert game %s: %w", g.ID, err)
	}

	for i, b := range g.Bets {
		var userID *string
		username, avatar, rank := "", "", ""
		anonymous := false
		if b.User != nil {
			userID = &b.User.ID
			username = b.User.Username
			avatar = b.User.Avatar
			rank = b.User.Rank
			anonymous = b.User.Anonymous
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO duels_bets (id, game_id, position, user_id, username, avatar, rank,
			                        anonymous, bot, amount, roll, payout, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (id) DO UPDATE SET
				roll = EXCLUDED.roll,
				payout = EXCLUDED.payout`,
			b.ID, g.ID, i, userID, username, avatar, rank,
			anonymous, b.Bot, b.Amount, b.Roll, b.Payout, b.CreatedAt)
		if err != nil {
			return fmt.Errorf("upsert bet %s: %w", b.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save game: %w", err)
	}
	return nil
}

const gameColumns = `id, amount, slot_count, state, server_seed, server_seed_hash,
	public_seed, block_num, winner_bet_id, created_at, updated_at`

// LoadGame returns the game with its bets in join order, or nil when unknown.
func (s *Store) LoadGame(ctx context.Context, id string) (*duel.Game, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+gameColumns+` FROM duels_games WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("query game %s: %w", id, err)
	}
	games, err := s.collectGames(ctx, rows)
	if err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return nil, nil
	}
	return games[0], nil
}

// LoadActive returns every game in a non-terminal state, oldest first.
func (s *Store) LoadActive(ctx context.Context) ([]*duel.Game, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+gameColumns+` FROM duels_games
		 WHERE state NOT IN ($1, $2) ORDER BY created_at`,
		duel.StateCompleted, duel.StateCanceled)
	if err != nil {
		return nil, fmt.Errorf("query active games: %w", err)
	}
	return s.collectGames(ctx, rows)
}

// LoadHistory returns the most recently completed games, newest first.
func (s *Store) LoadHistory(ctx context.Context, limit int) ([]*duel.Game, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+gameColumns+` FROM duels_games
		 WHERE state = $1 ORDER BY updated_at DESC LIMIT $2`,
		duel.StateCompleted, limit)
	if err != nil {
		return nil, fmt.Errorf("query game history: %w", err)
	}
	return s.collectGames(ctx, rows)
}

func (s *Store) collectGames(ctx context.Context, rows pgx.Rows) ([]*duel.Game, error) {
	games, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*duel.Game, error) {
		var g duel.Game
		err := row.Scan(&g.ID, &g.Amount, &g.SlotCount, &g.State,
			&g.Fair.ServerSeed, &g.Fair.ServerSeedHash, &g.Fair.PublicSeed,
			&g.Fair.BlockNum, &g.WinnerBetID, &g.CreatedAt, &g.UpdatedAt)
		return &g, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan games: %w", err)
	}

	for _, g := range games {
		if err := s.loadBets(ctx, g); err != nil {
			return nil, err
		}
	}
	return games, nil
}

func (s *Store) loadBets(ctx context.Context, g *duel.Game) error {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, username, avatar, rank, anonymous, bot, amount, roll, payout, created_at
		FROM duels_bets WHERE game_id = $1 ORDER BY position`, g.ID)
	if err != nil {
		return fmt.Errorf("query bets for %s: %w", g.ID, err)
	}

	g.Bets, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (*duel.Bet, error) {
		b := duel.Bet{GameID: g.ID}
		var userID *string
		var username, avatar, rank string
		var anonymous bool
		err := row.Scan(&b.ID, &userID, &username, &avatar, &rank, &anonymous,
			&b.Bot, &b.Amount, &b.Roll, &b.Payout, &b.CreatedAt)
		if err != nil {
			return nil, err
		}
		if userID != nil {
			b.User = &duel.User{ID: *userID, Username: username, Avatar: avatar, Rank: rank, Anonymous: anonymous}
		}
		return &b, nil
	})
	if err != nil {
		return fmt.Errorf("scan bets for %s: %w", g.ID, err)
	}
	return nil
}

// Debit withdraws a stake. The balance check and the withdrawal are one
// conditional update, so two concurrent debits can never overdraw.
func (s *Store) Debit(ctx context.Context, userID string, amount int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET balance = balance - $2, updated_at = NOW()
		WHERE id = $1 AND balance >= $2`, userID, amount)
	if err != nil {
		return fmt.Errorf("debit %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return duel.ErrInsufficientFunds
	}
	return nil
}

// Credit deposits a payout or refund.
func (s *Store) Credit(ctx context.Context, userID string, amount int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1`, userID, amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("credit %s: user not found", userID)
	}
	return nil
}

// RecordTransaction appends to the append-only transaction log.
func (s *Store) RecordTransaction(ctx context.Context, kind, userID string, amount int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO duels_transactions (kind, user_id, amount) VALUES ($1, $2, $3)`,
		kind, userID, amount)
	if err != nil {
		return fmt.Errorf("record %s transaction: %w", kind, err)
	}
	return nil
}

// UpsertUser refreshes a user's profile on login, creating the row with a zero
// balance when first seen.
func (s *Store) UpsertUser(ctx context.Context, u duel.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, avatar, rank, anonymous)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			avatar = EXCLUDED.avatar,
			rank = EXCLUDED.rank,
			anonymous = EXCLUDED.anonymous,
			updated_at = NOW()`,
		u.ID, u.Username, u.Avatar, u.Rank, u.Anonymous)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	return nil
}

// Balance returns a user's current balance.
func (s *Store) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM users WHERE id = $1`, userID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("query balance for %s: %w", userID, err)
	}
	return balance, nil
}
