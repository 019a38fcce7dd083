package shmem

import (
	"path/filepath"
	"testing"

	"tradecore/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "algo-1.bin")

	sequence := []model.Candlestick{
		{Timestamp: 1000, Open: decimal.NewFromFloat(10), Close: decimal.NewFromFloat(11), High: decimal.NewFromFloat(12), Low: decimal.NewFromFloat(9), Volume: decimal.NewFromFloat(5)},
		{Timestamp: 2000, Open: decimal.NewFromFloat(11), Close: decimal.NewFromFloat(13), High: decimal.NewFromFloat(14), Low: decimal.NewFromFloat(10), Volume: decimal.NewFromFloat(7)},
	}

	require.NoError(t, Write(path, sequence))

	got, err := Read(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, sequence[0].Close.Equal(got[0].Close))
	assert.True(t, sequence[1].Volume.Equal(got[1].Volume))
}

func TestWriteRead_EmptySequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "algo-2.bin")

	require.NoError(t, Write(path, []model.Candlestick{}))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Empty(t, got)
}
