package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNowIsUTC(t *testing.T) {
	t.Parallel()

	before := time.Now()
	got := New().Now()
	require.Equal(t, time.UTC, got.Location())
	require.False(t, got.Before(before.Add(-time.Second)))
}
