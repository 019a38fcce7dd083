package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleRegistry_InsertGetRemove(t *testing.T) {
	r := newHandleRegistry()
	ra := &runningAlgorithm{id: "algo-1"}

	require.NoError(t, r.insert("algo-1", ra))
	assert.True(t, r.active("algo-1"))

	got, ok := r.get("algo-1")
	require.True(t, ok)
	assert.Same(t, ra, got)

	r.remove("algo-1")
	assert.False(t, r.active("algo-1"))
}

func TestHandleRegistry_DuplicateInsertRejected(t *testing.T) {
	r := newHandleRegistry()
	ra := &runningAlgorithm{id: "algo-1"}

	require.NoError(t, r.insert("algo-1", ra))
	err := r.insert("algo-1", ra)
	require.Error(t, err)
}

func TestNewClientOrderID_Length(t *testing.T) {
	id, err := newClientOrderID()
	require.NoError(t, err)
	assert.Len(t, id, orderIDLength)
}

func TestNewClientOrderID_Alphanumeric(t *testing.T) {
	id, err := newClientOrderID()
	require.NoError(t, err)
	for _, c := range id {
		assert.Contains(t, orderIDAlphabet, string(c))
	}
}
