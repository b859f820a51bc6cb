package diagnostics

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestAbsentBeforePut(t *testing.T) {
	s := NewStore()
	_, ok := s.Latest("file:///a.py")
	assert.False(t, ok)
	assert.Equal(t, uint64(0), s.Generation("file:///a.py"))
}

func TestPutIsLastWriteWins(t *testing.T) {
	s := NewStore()
	assert.Equal(t, uint64(1), s.Put("file:///a.py", json.RawMessage(`{"v":1}`)))
	assert.Equal(t, uint64(2), s.Put("file:///a.py", json.RawMessage(`{"v":2}`)))
	s.Put("file:///b.py", json.RawMessage(`{"v":9}`))

	got, ok := s.Latest("file:///a.py")
	require.True(t, ok)
	assert.JSONEq(t, `{"v":2}`, string(got))
	assert.Equal(t, uint64(1), s.Generation("file:///b.py"))
}

func TestPutCopiesPayload(t *testing.T) {
	s := NewStore()
	buf := []byte(`{"v":1}`)
	s.Put("x", buf)
	buf[5] = '7'

	got, _ := s.Latest("x")
	assert.JSONEq(t, `{"v":1}`, string(got))
}

func TestWaitReturnsImmediatelyWhenNewer(t *testing.T) {
	s := NewStore()
	s.Put("x", json.RawMessage(`1`))

	payload, gen, err := s.Wait(context.Background(), "x", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)
	assert.Equal(t, "1", string(payload))
}

func TestWaitBlocksUntilNewerGeneration(t *testing.T) {
	s := NewStore()
	s.Put("x", json.RawMessage(`1`))

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.Put("y", json.RawMessage(`"other subject"`))
		time.Sleep(20 * time.Millisecond)
		s.Put("x", json.RawMessage(`2`))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	payload, gen, err := s.Wait(ctx, "x", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen)
	assert.Equal(t, "2", string(payload))
}

func TestWaitHonoursContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, _, err := s.Wait(ctx, "x", 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
