package transaction

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"w24fs/internal/protocol"
	"w24fs/internal/query"
	"w24fs/internal/types"
)

func newManager(t *testing.T) (*Manager, string) {
	t.Helper()
	home := t.TempDir()
	eng, err := query.NewEngine(home, filepath.Join(home, "w24project"))
	require.NoError(t, err)
	tm := NewManager(eng)
	tm.Start()
	t.Cleanup(tm.Stop)
	return tm, home
}

func submit(t *testing.T, tm *Manager, line string) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := tm.Submit(ctx, 1, protocol.Parse(line))
	require.NoError(t, err)
	return resp.Frames
}

func TestManagerCommands(t *testing.T) {
	tm, home := newManager(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, "notes.txt"), []byte(strings.Repeat("n", 500)), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(home, "docs"), 0o755))

	assert.Equal(t, []string{"docs\nw24project\n", protocol.EndOfData}, submit(t, tm, "dirlist -a"))
	assert.Equal(t, []string{query.MsgFileNotFound}, submit(t, tm, "w24fn missing.txt"))
	assert.Equal(t, []string{query.MsgInvalidSizeRange}, submit(t, tm, "w24fz 600 400"))
	assert.Equal(t, []string{protocol.MsgBadSizeFormat}, submit(t, tm, "w24fz x"))
	assert.Equal(t, []string{protocol.MsgBadExtensionCount}, submit(t, tm, "w24ft"))
	assert.Equal(t, []string{protocol.MsgInvalidCommand}, submit(t, tm, "what"))

	frames := submit(t, tm, "w24fz 400 600")
	require.Len(t, frames, 1)
	assert.Regexp(t, `^temp-[0-9a-f-]{36}\.tar\.gz$`, frames[0])
	_, err := os.Stat(filepath.Join(home, "w24project", frames[0]))
	assert.NoError(t, err)
}

func TestManagerResponseFlags(t *testing.T) {
	tm, _ := newManager(t)
	ctx := context.Background()

	resp, err := tm.Submit(ctx, 7, protocol.Parse("w24fdb"))
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Error(t, resp.Error)
	assert.NotEmpty(t, resp.ReqID)

	resp, err = tm.Submit(ctx, 7, protocol.Parse("dirlist -t"))
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestSubmitAfterStop(t *testing.T) {
	home := t.TempDir()
	eng, err := query.NewEngine(home, t.TempDir())
	require.NoError(t, err)
	tm := NewManager(eng)
	// no dispatcher and no buffer, so only the stop signal can unblock Submit
	tm.Requests = make(chan types.RequestContext)
	tm.Stop()

	_, err = tm.Submit(context.Background(), 1, protocol.Parse("dirlist -t"))
	assert.Error(t, err)
}

func TestListAlphaFailureStillSendsSentinel(t *testing.T) {
	home := filepath.Join(t.TempDir(), "home")
	require.NoError(t, os.Mkdir(home, 0o755))
	eng, err := query.NewEngine(home, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(home))

	tm := NewManager(eng)
	tm.Start()
	t.Cleanup(tm.Stop)

	frames := submit(t, tm, "dirlist -a")
	assert.Equal(t, []string{query.MsgOpenDir, protocol.EndOfData}, frames)

	frames = submit(t, tm, "dirlist -t")
	assert.Equal(t, []string{query.MsgOpenDir}, frames)
}
