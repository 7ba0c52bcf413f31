// Package fair implements the commit-reveal scheme behind every duel outcome.
//
// A secret server seed is generated when a game is created and only its SHA-256
// hash is published. Once the game fills, a public seed is taken from an
// external block source that nobody involved controls. Rolls are derived
// deterministically from both seeds, so after the server seed is revealed at
// completion any participant can recompute the result.
package fair

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// RollRange is the exclusive upper bound for derived rolls.
const RollRange = 10000

const seedBytes = 24

// Commitment pairs a secret server seed with its published hash.
type Commitment struct {
	ServerSeed     string
	ServerSeedHash string
}

// Commit generates a fresh server seed and the hash that is published in its
// place. The hash never changes for the lifetime of a game.
func Commit() (Commitment, error) {
	raw := make([]byte, seedBytes)
	if _, err := rand.Read(raw); err != nil {
		return Commitment{}, fmt.Errorf("generate server seed: %w", err)
	}
	seed := hex.EncodeToString(raw)
	return Commitment{ServerSeed: seed, ServerSeedHash: HashSeed(seed)}, nil
}

// HashSeed returns the hex SHA-256 of a server seed string.
func HashSeed(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// Derive computes the roll for the bet at the given join index. It is a pure
// function: identical inputs always produce the identical roll, across
// invocations and across process restarts.
func Derive(gameID, serverSeed, publicSeed string, index int) int {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s-%s-%s-%d", gameID, serverSeed, publicSeed, index))
	return int(binary.BigEndian.Uint32(sum[:4]) % RollRange)
}

// VerifyCommitment reports whether a revealed server seed matches the hash
// that was published at game creation.
func VerifyCommitment(serverSeed, serverSeedHash string) bool {
	return HashSeed(serverSeed) == serverSeedHash
}

// DeriveAll computes rolls for every join index up to count. Used by the audit
// tooling to replay a completed game.
func DeriveAll(gameID, serverSeed, publicSeed string, count int) []int {
	rolls := make([]int, count)
	for i := range rolls {
		rolls[i] = Derive(gameID, serverSeed, publicSeed, i)
	}
	return rolls
}
