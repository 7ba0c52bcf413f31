package duelid

import (
	"bytes"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	id := New()
	assert.Len(t, id, Length)
	assert.NoError(t, Validate(id))
}

func TestNewUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 200 {
		id := New()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestSortsByTime(t *testing.T) {
	random := bytes.NewReader(bytes.Repeat([]byte{0xff}, 160))

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := range 10 {
		id, err := NewAt(base.Add(time.Duration(i)*time.Second), random)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	assert.True(t, sort.StringsAreSorted(ids), "ids should sort by timestamp: %v", ids)
}

func TestNewAtDeterministic(t *testing.T) {
	at := time.UnixMilli(1700000000000)

	a, err := NewAt(at, bytes.NewReader(make([]byte, 10)))
	require.NoError(t, err)
	b, err := NewAt(at, bytes.NewReader(make([]byte, 10)))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NoError(t, Validate(a))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"valid", "01h5n0et5q6mt3v7ms1234abcd", false},
		{"too short", "01h5n0et5q", true},
		{"too long", "01h5n0et5q6mt3v7ms1234abcdef", true},
		{"first char out of range", "81h5n0et5q6mt3v7ms1234abcd", true},
		{"forbidden letter", "01h5n0et5q6mt3v7ms1234abci", true},
		{"uppercase", "01H5N0ET5Q6MT3V7MS1234ABCD", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
