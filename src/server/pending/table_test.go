package pending

import (
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agents-ide/src/internal/errors"
)

func await(t *testing.T, c *Call) (json.RawMessage, error) {
	t.Helper()
	select {
	case <-c.Done():
		return c.Result()
	case <-time.After(time.Second):
		t.Fatalf("call %d never completed", c.ID)
		return nil, nil
	}
}

func TestResolveCompletesOnce(t *testing.T) {
	table := NewTable(nil)
	call, err := table.Register(1, "textDocument/hover", time.Second)
	require.NoError(t, err)

	assert.True(t, table.Resolve(1, json.RawMessage(`{"first":true}`)))
	assert.False(t, table.Resolve(1, json.RawMessage(`{"second":true}`)))
	assert.False(t, table.Fail(1, stderrors.New("late")))

	result, err := await(t, call)
	require.NoError(t, err)
	assert.JSONEq(t, `{"first":true}`, string(result))
	assert.Equal(t, 0, table.Len())
}

func TestRegisterRejectsDuplicateID(t *testing.T) {
	table := NewTable(nil)
	_, err := table.Register(7, "a", time.Second)
	require.NoError(t, err)
	_, err = table.Register(7, "b", time.Second)
	assert.Error(t, err)
}

func TestUnknownIDIsDiscarded(t *testing.T) {
	table := NewTable(nil)
	other, err := table.Register(2, "other", time.Second)
	require.NoError(t, err)

	assert.False(t, table.Resolve(99, json.RawMessage(`null`)))
	assert.False(t, table.Fail(99, stderrors.New("x")))
	assert.Equal(t, 1, table.Len())

	select {
	case <-other.Done():
		t.Fatal("unrelated call completed")
	default:
	}
}

func TestExpireThenLateResponse(t *testing.T) {
	table := NewTable(nil)
	call, err := table.Register(5, "test/never", 100*time.Millisecond)
	require.NoError(t, err)
	sibling, err := table.Register(6, "test/echo", time.Second)
	require.NoError(t, err)

	assert.True(t, table.Expire(5))
	_, err = await(t, call)
	var te *errors.TimeoutError
	require.True(t, stderrors.As(err, &te))
	assert.Equal(t, int64(5), te.ID)
	assert.Equal(t, "test/never", te.Method)
	assert.Equal(t, 100*time.Millisecond, te.Timeout)

	assert.False(t, table.Resolve(5, json.RawMessage(`"late"`)))
	_, err = call.Result()
	assert.True(t, errors.IsTimeoutError(err), "late response must not resurrect the call")

	assert.True(t, table.Resolve(6, json.RawMessage(`"ok"`)))
	result, err := await(t, sibling)
	require.NoError(t, err)
	assert.Equal(t, `"ok"`, string(result))
}

func TestFailFillsProtocolErrorMethod(t *testing.T) {
	table := NewTable(nil)
	call, err := table.Register(3, "textDocument/rename", time.Second)
	require.NoError(t, err)

	table.Fail(3, errors.NewProtocolError(3, errors.InvalidParams, "bad name", nil))
	_, err = await(t, call)
	var pe *errors.ProtocolError
	require.True(t, stderrors.As(err, &pe))
	assert.Equal(t, "textDocument/rename", pe.Method)
}

func TestDrainAllFailsEverything(t *testing.T) {
	table := NewTable(nil)
	var calls []*Call
	for id := int64(1); id <= 5; id++ {
		c, err := table.Register(id, "m", time.Second)
		require.NoError(t, err)
		calls = append(calls, c)
	}

	cause := errors.NewProcessExitError("srv", nil, nil)
	assert.Equal(t, 5, table.DrainAll(cause))
	assert.Equal(t, 0, table.Len())

	for _, c := range calls {
		_, err := await(t, c)
		assert.True(t, errors.IsProcessExitError(err))
	}

	// Still usable after a plain drain
	_, err := table.Register(6, "m", time.Second)
	assert.NoError(t, err)
}

func TestCloseRejectsLaterRegistrations(t *testing.T) {
	table := NewTable(nil)
	call, err := table.Register(1, "m", time.Second)
	require.NoError(t, err)

	table.Close(errors.ErrSessionStopped)
	_, err = await(t, call)
	assert.ErrorIs(t, err, errors.ErrSessionStopped)

	_, err = table.Register(2, "m", time.Second)
	assert.ErrorIs(t, err, errors.ErrSessionStopped)

	table.Close(stderrors.New("second close"))
	assert.ErrorIs(t, table.Err(), errors.ErrSessionStopped)
}

func TestConcurrentCompletionSingleWinner(t *testing.T) {
	table := NewTable(nil)
	call, err := table.Register(1, "m", time.Second)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var won bool
			switch i % 3 {
			case 0:
				won = table.Resolve(1, json.RawMessage(`1`))
			case 1:
				won = table.Fail(1, stderrors.New("x"))
			default:
				won = table.Expire(1)
			}
			if won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	<-call.Done()
}
