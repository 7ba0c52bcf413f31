package duel

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
)

// memStore is an in-memory Store fake.
type memStore struct {
	mu        sync.Mutex
	games     map[string]*Game
	completed []string // save order of completed games
	failSave  bool
}

func newMemStore() *memStore {
	return &memStore{games: make(map[string]*Game)}
}

func (s *memStore) SaveGame(_ context.Context, g *Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return errors.New("store unavailable")
	}
	if g.State == StateCompleted {
		if prev, ok := s.games[g.ID]; !ok || prev.State != StateCompleted {
			s.completed = append(s.completed, g.ID)
		}
	}
	s.games[g.ID] = g.Clone()
	return nil
}

func (s *memStore) LoadGame(_ context.Context, id string) (*Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return nil, nil
	}
	return g.Clone(), nil
}

func (s *memStore) LoadActive(_ context.Context) ([]*Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Game
	for _, g := range s.games {
		if !g.State.Terminal() {
			out = append(out, g.Clone())
		}
	}
	return out, nil
}

func (s *memStore) LoadHistory(_ context.Context, limit int) ([]*Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Game
	for i := len(s.completed) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.games[s.completed[i]].Clone())
	}
	return out, nil
}

func (s *memStore) get(id string) *Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.games[id]
}

type ledgerTx struct {
	kind   string
	userID string
	amount int64
}

// memLedger is an in-memory Ledger fake. An optional debit gate lets tests
// hold a debit mid-flight to exercise guard behavior.
type memLedger struct {
	mu        sync.Mutex
	balances  map[string]int64
	txs       []ledgerTx
	debitGate chan struct{}
}

func newMemLedger(balances map[string]int64) *memLedger {
	if balances == nil {
		balances = make(map[string]int64)
	}
	return &memLedger{balances: balances}
}

func (l *memLedger) Debit(_ context.Context, userID string, amount int64) error {
	if l.debitGate != nil {
		<-l.debitGate
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[userID] < amount {
		return ErrInsufficientFunds
	}
	l.balances[userID] -= amount
	return nil
}

func (l *memLedger) Credit(_ context.Context, userID string, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] += amount
	return nil
}

func (l *memLedger) RecordTransaction(_ context.Context, kind, userID string, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.txs = append(l.txs, ledgerTx{kind: kind, userID: userID, amount: amount})
	return nil
}

func (l *memLedger) balance(userID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

func (l *memLedger) transactions(kind string) []ledgerTx {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []ledgerTx
	for _, tx := range l.txs {
		if tx.kind == kind {
			out = append(out, tx)
		}
	}
	return out
}

// capturePublisher records every broadcast snapshot.
type capturePublisher struct {
	mu    sync.Mutex
	views []*GameView
}

func (p *capturePublisher) Publish(_ string, v *GameView) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.views = append(p.views, v)
}

func (p *capturePublisher) last() *GameView {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.views) == 0 {
		return nil
	}
	return p.views[len(p.views)-1]
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.views)
}

// fakeBlocks is a BlockSource fake with a configurable number of failures.
type fakeBlocks struct {
	mu       sync.Mutex
	failures int
	calls    int
	blockID  string
	blockNum int64
}

func newFakeBlocks() *fakeBlocks {
	return &fakeBlocks{blockID: "000004d2deadbeef", blockNum: 1234}
}

func (b *fakeBlocks) Head(context.Context) (string, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.failures > 0 {
		b.failures--
		return "", 0, errors.New("chain api unreachable")
	}
	return b.blockID, b.blockNum, nil
}

func (b *fakeBlocks) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// fixture bundles an engine with all its fakes and a mock clock.
type fixture struct {
	engine *Engine
	store  *memStore
	ledger *memLedger
	pub    *capturePublisher
	blocks *fakeBlocks
	clock  *quartz.Mock
}

func newFixture(t *testing.T, balances map[string]int64) *fixture {
	t.Helper()
	f := &fixture{
		store:  newMemStore(),
		ledger: newMemLedger(balances),
		pub:    &capturePublisher{},
		blocks: newFakeBlocks(),
		clock:  quartz.NewMock(t),
	}
	f.engine = NewEngine(DefaultConfig(), f.store, f.ledger, f.pub, f.blocks, f.clock, zerolog.Nop())
	return f
}

var (
	alice = User{ID: "alice", Username: "Alice", Rank: "gold"}
	bob   = User{ID: "bob", Username: "Bob", Rank: "silver"}
	carol = User{ID: "carol", Username: "Carol", Rank: "bronze"}
)
