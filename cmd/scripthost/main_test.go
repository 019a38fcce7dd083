package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/config"
	"tradecore/internal/core"
	"tradecore/internal/model"
	"tradecore/internal/sandbox"
)

type fakeRuntime struct {
	loaded string
	fn     sandbox.ScriptFunc
	err    error
}

func (f *fakeRuntime) Load(source string) (sandbox.ScriptFunc, error) {
	f.loaded = source
	if f.err != nil {
		return nil, f.err
	}
	return f.fn, nil
}

func newTestHost(t *testing.T, rerunSec int, runtime sandbox.Runtime) (*host, string) {
	t.Helper()
	dir := t.TempDir()
	paths := config.PathsConfig{TradingAlgosDir: dir, ShmemDir: dir, SocketsDir: dir}

	h := &host{
		id: "algo-1",
		cfg: config.Config{Paths: paths, ScriptHost: config.ScriptHostConfig{
			DenyTokens:     sandbox.DefaultDenyTokens,
			AllowedImports: sandbox.DefaultAllowedImports,
		}},
		rerunSec: rerunSec,
		runtime:  runtime,
		logger:   noopLogger{},
		counter:  rerunSec,
	}
	return h, dir
}

func writeScript(t *testing.T, dir, id, source string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".py"), []byte(source), 0o644))
}

func TestShouldRun_GatesWhenPeriodAboveFiveAndCounterPositive(t *testing.T) {
	h, _ := newTestHost(t, 10, nil)
	assert.False(t, h.shouldRun())
}

func TestShouldRun_RunsWhenCounterExpired(t *testing.T) {
	h, _ := newTestHost(t, 10, nil)
	h.counter = 0
	assert.True(t, h.shouldRun())
	assert.Equal(t, 10, h.counter)
}

func TestShouldRun_AlwaysRunsWhenPeriodAtOrBelowFive(t *testing.T) {
	h, _ := newTestHost(t, 5, nil)
	assert.True(t, h.shouldRun())
	assert.True(t, h.shouldRun())
}

func TestExecute_GatedTickReturnsNilWithoutTouchingScript(t *testing.T) {
	h, dir := newTestHost(t, 10, nil)
	_ = dir // no script file written; a gated tick must never try to read it

	value, err := h.execute()
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestExecute_UnreadableScriptIsFatal(t *testing.T) {
	h, _ := newTestHost(t, 5, nil)

	_, err := h.execute()
	require.Error(t, err)
}

func TestExecute_DeniedTokenIsFatal(t *testing.T) {
	h, dir := newTestHost(t, 5, nil)
	writeScript(t, dir, h.id, "def func(c):\n    import os\n    return 1")

	value, err := h.execute()
	require.Error(t, err)
	assert.Nil(t, value)
}

func TestExecute_InvokesLoadedFunctionWithWorkingSequence(t *testing.T) {
	fake := &fakeRuntime{fn: func(seq []model.Candlestick) (float64, error) {
		return float64(len(seq)), nil
	}}
	h, dir := newTestHost(t, 5, fake)
	writeScript(t, dir, h.id, "def func(c):\n    return len(c)")
	h.sequence = []model.Candlestick{{}, {}, {}}

	value, err := h.execute()
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, float64(3), *value)
}

func TestExecute_LoadFailureIsFatal(t *testing.T) {
	fake := &fakeRuntime{err: errors.New("boom")}
	h, dir := newTestHost(t, 5, fake)
	writeScript(t, dir, h.id, "def func(c):\n    return 1")

	value, err := h.execute()
	require.Error(t, err)
	assert.Nil(t, value)
}

func TestExecute_InvocationFailureIsFatal(t *testing.T) {
	fake := &fakeRuntime{fn: func(seq []model.Candlestick) (float64, error) {
		return 0, errors.New("boom")
	}}
	h, dir := newTestHost(t, 5, fake)
	writeScript(t, dir, h.id, "def func(c):\n    return 1")

	value, err := h.execute()
	require.Error(t, err)
	assert.Nil(t, value)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) Fatal(string, ...interface{}) {}
func (l noopLogger) WithField(string, interface{}) core.ILogger       { return l }
func (l noopLogger) WithFields(map[string]interface{}) core.ILogger { return l }

var _ core.ILogger = noopLogger{}
