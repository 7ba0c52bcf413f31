package main

import (
	"fmt"

	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/duelhouse/duelsrv/cmd/duelsrv/shared"
	"github.com/duelhouse/duelsrv/internal/chain"
	"github.com/duelhouse/duelsrv/internal/duel"
	"github.com/duelhouse/duelsrv/internal/server"
	"github.com/duelhouse/duelsrv/internal/store"
)

// ServeCmd runs the duel server.
type ServeCmd struct {
	Config         string `kong:"default='duelsrv.hcl',help='Path to HCL config file'"`
	Debug          bool   `kong:"help='Enable debug logging'"`
	SkipMigrations bool   `kong:"help='Skip running database migrations on startup'"`
}

func (c *ServeCmd) Run() error {
	logger := shared.SetupLogger(c.Debug)

	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	ctx := shared.SetupSignalHandlerWithLogger(logger)

	if !c.SkipMigrations {
		if err := store.Migrate(cfg.Server.DatabaseURL); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	pool, err := store.Connect(ctx, cfg.Server.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	st := store.New(pool, logger)
	blocks := chain.NewClient(cfg.Server.ChainAPIURL, logger)

	srv := server.NewServer(cfg.Server.Addr, nil, st, logger)

	engineCfg := duel.DefaultConfig()
	engineCfg.MinAmount = cfg.Duels.MinAmount
	engineCfg.MaxAmount = cfg.Duels.MaxAmount
	engine := duel.NewEngine(engineCfg, st, st, srv, blocks, quartz.NewReal(), logger)
	srv.SetDuelService(engine)

	if err := engine.Resume(ctx); err != nil {
		return fmt.Errorf("resume games: %w", err)
	}

	logger.Info().
		Str("addr", cfg.Server.Addr).
		Str("chain_api", cfg.Server.ChainAPIURL).
		Int64("min_amount", cfg.Duels.MinAmount).
		Int64("max_amount", cfg.Duels.MaxAmount).
		Msg("Starting duel server")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("Shutting down server...")
		return srv.Stop()
	})
	return g.Wait()
}

// MigrateCmd runs database migrations and exits.
type MigrateCmd struct {
	Config string `kong:"default='duelsrv.hcl',help='Path to HCL config file'"`
}

func (c *MigrateCmd) Run() error {
	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := store.Migrate(cfg.Server.DatabaseURL); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	fmt.Println("migrations applied")
	return nil
}
