package logs

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, maxLines int) *Service {
	t.Helper()
	return NewService(filepath.Join(t.TempDir(), "app.log"), maxLines)
}

func TestAppendAndTail(t *testing.T) {
	svc := newTestService(t, 100)

	svc.Append(Entry{Level: "INFO", Message: "first"})
	svc.Append(Entry{Level: "STREAM", Message: "second", Data: map[string]any{"channel": 1}})

	entries := svc.Tail(300)
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Message)
	assert.Equal(t, "STREAM", entries[1].Level)
	assert.EqualValues(t, 1, entries[1].Data["channel"])
	assert.NotEmpty(t, entries[0].Time)
}

func TestTailLimit(t *testing.T) {
	svc := newTestService(t, 100)
	for i := 0; i < 10; i++ {
		svc.Append(Entry{Level: "INFO", Message: "m"})
	}
	assert.Len(t, svc.Tail(3), 3)
	assert.Len(t, svc.Tail(0), 10)
}

func TestTailMissingFile(t *testing.T) {
	svc := newTestService(t, 100)
	assert.Empty(t, svc.Tail(10))
}

func TestTailRawLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte("not json at all\n"), 0o644))

	svc := NewService(path, 100)
	entries := svc.Tail(10)
	require.Len(t, entries, 1)
	assert.Equal(t, "RAW", entries[0].Level)
	assert.Equal(t, "not json at all", entries[0].Message)
}

func TestRollingTruncation(t *testing.T) {
	svc := newTestService(t, 10)

	for i := 0; i < 15; i++ {
		svc.Append(Entry{Level: "INFO", Message: "line"})
	}

	// Reaching the cap drops the oldest half before appending.
	entries := svc.Tail(0)
	assert.Less(t, len(entries), 11)
	assert.GreaterOrEqual(t, len(entries), 5)
}

func TestClear(t *testing.T) {
	svc := newTestService(t, 100)
	svc.Append(Entry{Level: "INFO", Message: "m"})
	svc.Clear()
	assert.Empty(t, svc.Tail(10))

	svc.Append(Entry{Level: "INFO", Message: "after"})
	assert.Len(t, svc.Tail(10), 1)
}

func TestSubscribe(t *testing.T) {
	svc := newTestService(t, 100)

	ch, unsub := svc.Subscribe()
	defer unsub()

	svc.Append(Entry{Level: "ERROR", Message: "boom"})

	select {
	case e := <-ch:
		assert.Equal(t, "boom", e.Message)
	case <-time.After(time.Second):
		t.Fatal("no live entry received")
	}
}

func TestTeeHandler(t *testing.T) {
	svc := newTestService(t, 100)
	logger := slog.New(NewTeeHandler(slog.NewJSONHandler(io.Discard, nil), svc))

	logger.With("component", "test").Info("hello", "n", 7)

	entries := svc.Tail(10)
	require.Len(t, entries, 1)
	assert.Equal(t, "INFO", entries[0].Level)
	assert.Equal(t, "hello", entries[0].Message)
	assert.Equal(t, "test", entries[0].Data["component"])
	assert.EqualValues(t, 7, entries[0].Data["n"])
}
