package main

import (
	"fmt"

	"github.com/duelhouse/duelsrv/internal/fair"
)

// VerifyCmd replays a completed duel from its disclosed seeds so anyone can
// check that the published rolls were honest.
type VerifyCmd struct {
	GameID         string `kong:"arg,help='Game id'"`
	ServerSeed     string `kong:"arg,help='Server seed disclosed at completion'"`
	PublicSeed     string `kong:"arg,help='Public seed (chain head block id)'"`
	Bets           int    `kong:"arg,help='Number of bets in the game'"`
	ServerSeedHash string `kong:"help='Hash published at creation, checked against the seed when given'"`
}

func (c *VerifyCmd) Run() error {
	if c.Bets < 1 {
		return fmt.Errorf("a game has at least one bet")
	}

	if c.ServerSeedHash != "" {
		if !fair.VerifyCommitment(c.ServerSeed, c.ServerSeedHash) {
			return fmt.Errorf("server seed does not match the published hash")
		}
		fmt.Println("commitment: OK")
	} else {
		fmt.Printf("commitment hash: %s\n", fair.HashSeed(c.ServerSeed))
	}

	rolls := fair.DeriveAll(c.GameID, c.ServerSeed, c.PublicSeed, c.Bets)
	winner := 0
	for i, roll := range rolls {
		fmt.Printf("bet %d: roll %d\n", i, roll)
		if roll > rolls[winner] {
			winner = i
		}
	}
	fmt.Printf("winner: bet %d\n", winner)
	return nil
}
