package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	for _, s := range Statuses() {
		got, err := ParseStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
		assert.True(t, got.Valid())
	}

	for _, raw := range []string{"", "shipped", "PENDING", "pendente"} {
		_, err := ParseStatus(raw)
		assert.Error(t, err, "status %q must be rejected", raw)
		assert.False(t, Status(raw).Valid())
	}
}

func TestDefaultStatus(t *testing.T) {
	assert.Equal(t, StatusPreparing, DefaultStatus)
	assert.True(t, DefaultStatus.Valid())
}

func TestOrderEstimatedReady(t *testing.T) {
	created := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	order := Order{ID: "o-1", CreatedAt: created}
	assert.Equal(t, created.Add(50*time.Minute), order.EstimatedReady())
}
