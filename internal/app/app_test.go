package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flushq/internal/storage"
	logx "flushq/pkg/logx"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "flushq.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestAppRunsCommandsAndJournals(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")
	journal := filepath.Join(dir, "journal")
	cfgPath := writeConfig(t, dir, fmt.Sprintf(`
engine:
  flush_every: "0s"
handler:
  mode: single
  commands:
    - ["sh", "-c", "cat >> \"$0\"; echo >> \"$0\"", %q]
logging:
  level: error
storage:
  driver: file
  path: %q
`, out, journal))

	a, err := New(cfgPath)
	require.NoError(t, err)
	assert.False(t, a.Engine().TimerRunning())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))

	n, err := a.EnqueueLines(ctx, strings.NewReader("first\n\nsecond\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	wctx, wcancel := context.WithTimeout(ctx, 5*time.Second)
	defer wcancel()
	require.NoError(t, a.Engine().Wait(wctx))
	assert.Len(t, a.Engine().Succeeded(), 2)

	require.NoError(t, a.Stop(context.Background(), StopInputDone))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"first", "second"}, strings.Fields(string(b)))

	st, err := storage.Open(storage.Config{Driver: "file", Path: journal}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	recs, err := st.List(context.Background(), "succeeded")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestAppCronSchedule(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, `
engine:
  fire_and_forget: false
  flush_every: "@every 1s"
handler:
  commands:
    - ["true"]
logging:
  level: error
`)
	a, err := New(cfgPath)
	require.NoError(t, err)
	require.NotNil(t, a.trigger)
	assert.False(t, a.Engine().TimerRunning(), "cron drives flushes, not the engine timer")

	require.NoError(t, a.Start(context.Background()))
	defer a.Stop(context.Background(), StopUnknown)

	a.Engine().Enqueue("x")
	require.Eventually(t, func() bool { return a.trigger.Fires() >= 1 }, 3*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, a.Engine().Stats().Flushes, uint64(2))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	_, err := New(writeConfig(t, dir, "handler:\n  mode: nope\n"))
	assert.Error(t, err)

	_, err = New(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
