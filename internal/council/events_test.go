package council

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter_Emit(t *testing.T) {
	t.Run("accepts the full stage sequence in order", func(t *testing.T) {
		e := NewEmitter(0)

		sequence := []EventType{
			EventStage1Start,
			EventStage1Complete,
			EventStage2Start,
			EventStage2Complete,
			EventStage3Start,
			EventStage3Complete,
			EventComplete,
		}

		for _, typ := range sequence {
			require.NoError(t, e.Emit(Event{Type: typ}), "emitting %s", typ)
		}
		e.Close()

		var got []EventType
		for ev := range e.Events() {
			got = append(got, ev.Type)
		}
		assert.Equal(t, sequence, got)
	})

	t.Run("rejects out-of-order transitions", func(t *testing.T) {
		e := NewEmitter(0)
		defer e.Close()

		require.Error(t, e.Emit(Event{Type: EventStage2Start}))
		require.NoError(t, e.Emit(Event{Type: EventStage1Start}))
		require.Error(t, e.Emit(Event{Type: EventStage3Start}))
		require.Error(t, e.Emit(Event{Type: EventStage1Start}))
	})

	t.Run("rejects unknown event types", func(t *testing.T) {
		e := NewEmitter(0)
		defer e.Close()

		require.Error(t, e.Emit(Event{Type: EventType("bogus")}))
	})

	t.Run("error is reachable from any running state", func(t *testing.T) {
		e := NewEmitter(0)
		defer e.Close()

		require.NoError(t, e.Emit(Event{Type: EventStage1Start}))
		require.NoError(t, e.Emit(Event{Type: EventStage1Complete}))
		require.NoError(t, e.Emit(Event{Type: EventStage2Start}))
		require.NoError(t, e.Emit(Event{Type: EventError, Message: "boom"}))

		// The round is terminal after an error
		require.Error(t, e.Emit(Event{Type: EventStage2Complete}))
		require.Error(t, e.Emit(Event{Type: EventError}))
	})

	t.Run("complete is terminal", func(t *testing.T) {
		e := NewEmitter(0)
		defer e.Close()

		for _, typ := range []EventType{
			EventStage1Start, EventStage1Complete,
			EventStage2Start, EventStage2Complete,
			EventStage3Start, EventStage3Complete,
			EventComplete,
		} {
			require.NoError(t, e.Emit(Event{Type: typ}))
		}

		require.Error(t, e.Emit(Event{Type: EventError}))
	})

	t.Run("title_complete bypasses the stage machine", func(t *testing.T) {
		e := NewEmitter(0)
		defer e.Close()

		require.NoError(t, e.Emit(Event{Type: EventStage1Start}))
		require.NoError(t, e.Emit(Event{Type: EventTitleComplete}))
		require.NoError(t, e.Emit(Event{Type: EventStage1Complete}))
	})

	t.Run("full buffer drops instead of blocking", func(t *testing.T) {
		e := NewEmitter(1)
		defer e.Close()

		require.NoError(t, e.Emit(Event{Type: EventStage1Start}))
		// Buffer full, nobody draining: the emit must not block
		require.NoError(t, e.Emit(Event{Type: EventStage1Complete}))
	})

	t.Run("emit after close fails", func(t *testing.T) {
		e := NewEmitter(0)
		e.Close()
		require.Error(t, e.Emit(Event{Type: EventStage1Start}))
	})
}

func TestEmitter_Close(t *testing.T) {
	t.Run("idempotent", func(t *testing.T) {
		e := NewEmitter(0)
		e.Close()
		e.Close()
	})

	t.Run("closes the event channel", func(t *testing.T) {
		e := NewEmitter(0)
		e.Close()
		_, open := <-e.Events()
		assert.False(t, open)
	})
}

func TestEmitter_Nil(t *testing.T) {
	// Non-streaming callers pass a nil emitter
	var e *Emitter
	require.NoError(t, e.Emit(Event{Type: EventStage1Start}))
	e.Close()
}
