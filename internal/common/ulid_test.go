package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewULID_UniqueAndOrdered(t *testing.T) {
	prev := ""
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id, err := NewULID()
		require.NoError(t, err)
		require.Len(t, id, 26)

		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}

		require.Greater(t, id, prev)
		prev = id
	}
}
