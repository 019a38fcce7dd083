package sandbox

import (
	"testing"

	"tradecore/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSource_StripsQuotelessComments(t *testing.T) {
	source := "# just a note\ndef decide(seq):\n    return seq[-1].c"
	filtered, err := CheckSource(source, DefaultDenyTokens)
	require.NoError(t, err)
	assert.NotContains(t, filtered, "just a note")
}

func TestCheckSource_KeepsCommentsWithSingleQuote(t *testing.T) {
	source := "# don't import os\ndef decide(seq):\n    return 1"
	_, err := CheckSource(source, DefaultDenyTokens)
	require.Error(t, err)
}

func TestCheckSource_RejectsDenyToken(t *testing.T) {
	source := "import os\ndef decide(seq):\n    return 1"
	_, err := CheckSource(source, DefaultDenyTokens)
	require.Error(t, err)
}

func TestCheckSource_AllowsCleanScript(t *testing.T) {
	source := "def decide(seq):\n    return seq[-1].c - seq[-2].c"
	_, err := CheckSource(source, DefaultDenyTokens)
	require.NoError(t, err)
}

func TestPrepare_PrependsAllowedImports(t *testing.T) {
	source := "def decide(seq):\n    return 1"
	prepared, err := Prepare(source, DefaultDenyTokens, DefaultAllowedImports)
	require.NoError(t, err)
	assert.Contains(t, prepared, "import math")
	assert.Contains(t, prepared, "import numpy")
	assert.Contains(t, prepared, "import pandas")
}

func candles(closes ...float64) []model.Candlestick {
	out := make([]model.Candlestick, 0, len(closes))
	for _, c := range closes {
		out = append(out, model.Candlestick{Close: decimal.NewFromFloat(c)})
	}
	return out
}

func TestExprRuntime_SimpleDelta(t *testing.T) {
	rt := NewExprRuntime()
	fn, err := rt.Load("def decide(seq):\n    return seq[-1].c - seq[-2].c")
	require.NoError(t, err)

	result, err := fn(candles(10, 12))
	require.NoError(t, err)
	assert.Equal(t, 2.0, result)
}

func TestExprRuntime_Average(t *testing.T) {
	rt := NewExprRuntime()
	fn, err := rt.Load("def decide(seq):\n    return seq[-1].c - avg(seq, c)")
	require.NoError(t, err)

	result, err := fn(candles(10, 20, 30))
	require.NoError(t, err)
	assert.Equal(t, 10.0, result)
}

func TestExprRuntime_NoFunction(t *testing.T) {
	rt := NewExprRuntime()
	_, err := rt.Load("x = 1\ny = 2")
	require.Error(t, err)
}

func TestExprRuntime_IndexOutOfRange(t *testing.T) {
	rt := NewExprRuntime()
	fn, err := rt.Load("def decide(seq):\n    return seq[-5].c")
	require.NoError(t, err)

	_, err = fn(candles(10, 12))
	require.Error(t, err)
}
