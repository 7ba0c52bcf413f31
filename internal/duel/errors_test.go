package duel

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransient(t *testing.T) {
	assert.True(t, Transient(ErrLocked))
	assert.True(t, Transient(fmt.Errorf("wrapped: %w", ErrLocked)))

	assert.False(t, Transient(ErrGameUnavailable))
	assert.False(t, Transient(ErrInsufficientFunds))
	assert.False(t, Transient(nil))
}
