package audit

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSink struct{ err error }

func (f failingSink) Emit(Event) error { return f.err }

func TestFileSink_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "api.log")
	sink, err := NewFileSink(path)
	require.NoError(t, err)

	at := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, sink.Emit(Event{Time: at, Name: TrainStarted, Fields: map[string]any{"rows": 17}}))
	require.NoError(t, sink.Emit(Event{Time: at, Name: TrainCompleted, Fields: map[string]any{"selected": "ensemble"}}))
	require.NoError(t, sink.Close())

	text, err := ReadAll(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(text), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"event":"train.started"`)

	events, err := ReadEvents(path)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, TrainStarted, events[0].Name)
	assert.True(t, at.Equal(events[0].Time))
	assert.Equal(t, float64(17), events[0].Fields["rows"])
	assert.Equal(t, "ensemble", events[1].Fields["selected"])
}

func TestFileSink_ReopenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.log")

	for i := 0; i < 2; i++ {
		sink, err := NewFileSink(path)
		require.NoError(t, err)
		require.NoError(t, sink.Emit(Event{Name: PredictCompleted}))
		require.NoError(t, sink.Close())
	}

	events, err := ReadEvents(path)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.False(t, events[0].Time.IsZero())
}

func TestFileSink_Closed(t *testing.T) {
	sink, err := NewFileSink(filepath.Join(t.TempDir(), "api.log"))
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	assert.NoError(t, sink.Close())

	assert.Error(t, sink.Emit(Event{Name: TrainStarted}))
}

func TestFileSink_ConcurrentEmit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.log")
	sink, err := NewFileSink(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				assert.NoError(t, sink.Emit(Event{Name: PredictCompleted, Fields: map[string]any{"worker": i}}))
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, sink.Close())

	events, err := ReadEvents(path)
	require.NoError(t, err)
	assert.Len(t, events, 200)
}

func TestReadAll_Missing(t *testing.T) {
	text, err := ReadAll(filepath.Join(t.TempDir(), "absent.log"))
	require.NoError(t, err)
	assert.Empty(t, text)

	events, err := ReadEvents(filepath.Join(t.TempDir(), "absent.log"))
	require.NoError(t, err)
	assert.Nil(t, events)
}

func TestReadEvents_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.log")
	require.NoError(t, os.WriteFile(path, []byte("{\"event\":\"train.started\"}\nnot json\n"), 0o600))

	_, err := ReadEvents(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestMultiSink(t *testing.T) {
	mem := &MemorySink{}
	boom := errors.New("boom")
	multi := MultiSink{mem, LogSink{}, failingSink{err: boom}}

	err := multi.Emit(Event{Name: CandidateDegraded})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{CandidateDegraded}, mem.Names())

	assert.NoError(t, MultiSink{mem}.Emit(Event{Name: TrainFailed}))
	assert.Len(t, mem.Events(), 2)
}
