package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNullDecimal(t *testing.T) {
	d, err := ParseNullDecimal(nil)
	require.NoError(t, err)
	assert.False(t, d.Valid)

	price := "3150.123456789012345678"
	d, err = ParseNullDecimal(&price)
	require.NoError(t, err)
	require.True(t, d.Valid)
	assert.Equal(t, price, d.Decimal.String())

	bad := "3,150"
	_, err = ParseNullDecimal(&bad)
	assert.Error(t, err)
}

func TestStoreWithoutPool(t *testing.T) {
	var s *Store
	assert.ErrorIs(t, s.InsertTick(context.Background(), TickRecord{}), ErrNotConfigured)

	_, err := NewStore(nil).ListRecentTicks(context.Background(), 5)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "00001_create_ticks.sql", entries[0].Name())
}
