package query

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"w24fs/internal/archive"
	"w24fs/internal/fsys"
	"w24fs/internal/protocol"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	home := t.TempDir()
	e, err := NewEngine(home, filepath.Join(home, "w24project"))
	require.NoError(t, err)
	e.Location = time.UTC
	return e
}

func put(t *testing.T, root, name string, size int, mtime time.Time) string {
	t.Helper()
	p := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(strings.Repeat("x", size)), 0o644))
	if !mtime.IsZero() {
		require.NoError(t, os.Chtimes(p, mtime, mtime))
	}
	return p
}

func archiveNames(t *testing.T, res Result) []string {
	t.Helper()
	require.NotEmpty(t, res.Archive)
	names, _, err := archive.Contents(res.Archive)
	require.NoError(t, err)
	sort.Strings(names)
	return names
}

func assertNoLeftovers(t *testing.T, e *Engine) {
	t.Helper()
	entries, err := os.ReadDir(e.WorkDir)
	require.NoError(t, err)
	for _, ent := range entries {
		assert.True(t, strings.HasPrefix(ent.Name(), "temp-") && strings.HasSuffix(ent.Name(), ".tar.gz"),
			"unexpected leftover %s", ent.Name())
	}
}

func TestListAlpha(t *testing.T) {
	e := newTestEngine(t)
	for _, d := range []string{"beta", "Alpha", "gamma"} {
		require.NoError(t, os.Mkdir(filepath.Join(e.Home, d), 0o755))
	}
	put(t, e.Home, "zfile.txt", 1, time.Time{})

	res, err := e.ListAlpha()
	require.NoError(t, err)
	require.Len(t, res.Frames, 2)
	assert.Equal(t, "Alpha\nbeta\ngamma\nw24project\n", res.Frames[0])
	assert.Equal(t, protocol.EndOfData, res.Frames[1])
}

func TestListAlphaEmptyStillTerminates(t *testing.T) {
	home := t.TempDir()
	e, err := NewEngine(home, t.TempDir())
	require.NoError(t, err)

	res, err := e.ListAlpha()
	require.NoError(t, err)
	assert.Equal(t, []string{"", protocol.EndOfData}, res.Frames)
}

type fakeFS struct {
	entries []fsys.Entry
	err     error
}

func (f fakeFS) ReadDir(string) ([]fsys.Entry, error) {
	return append([]fsys.Entry(nil), f.entries...), f.err
}
func (f fakeFS) Stat(string) (fsys.Entry, error) { return fsys.Entry{}, os.ErrNotExist }
func (f fakeFS) Walk(string, []string, func(fsys.Entry) error) error {
	return f.err
}

func TestListByTimeStable(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e := newTestEngine(t)
	e.FS = fakeFS{entries: []fsys.Entry{
		{Name: "c", IsDir: true, ChangeTime: base.Add(2 * time.Hour)},
		{Name: "a", IsDir: true, ChangeTime: base.Add(time.Hour)},
		{Name: "file", Regular: true, ChangeTime: base},
		{Name: "b", IsDir: true, ChangeTime: base.Add(time.Hour)},
		{Name: "d", IsDir: true, ChangeTime: base},
	}}

	res, err := e.ListByTime()
	require.NoError(t, err)
	assert.Equal(t, []string{"d\na\nb\nc\n"}, res.Frames)
}

func TestListReadError(t *testing.T) {
	e := newTestEngine(t)
	e.FS = fakeFS{err: errors.New("permission denied")}

	_, err := e.ListAlpha()
	require.Error(t, err)
	assert.Equal(t, MsgOpenDir, Message(err))

	_, err = e.SizeRange("r", 0, 10)
	assert.Equal(t, MsgOpenDir, Message(err))

	_, err = e.ModifiedAfter("r", "2024-01-01")
	assert.Equal(t, MsgSearch, Message(err))
}

func TestFileInfo(t *testing.T) {
	e := newTestEngine(t)
	p := put(t, e.Home, "notes.txt", 500, time.Time{})
	require.NoError(t, os.Chmod(p, 0o640))

	res, err := e.FileInfo("notes.txt")
	require.NoError(t, err)
	require.Len(t, res.Frames, 1)
	assert.Regexp(t, `^notes\.txt Size: 500 bytes, Created: \d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}, Permissions: 640$`, res.Frames[0])
	assert.Empty(t, res.Archive)
}

func TestFileInfoMissing(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.FileInfo("missing.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{MsgFileNotFound}, res.Frames)

	res, err = e.FileInfo("../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, []string{MsgFileNotFound}, res.Frames)
	assertNoLeftovers(t, e)
}

func TestSizeRangeScenario(t *testing.T) {
	e := newTestEngine(t)
	put(t, e.Home, "notes.txt", 500, time.Time{})
	put(t, e.Home, "photo.png", 5000, time.Time{})
	put(t, e.Home, "nested/small.txt", 450, time.Time{})

	res, err := e.SizeRange("req1", 400, 600)
	require.NoError(t, err)
	assert.Equal(t, []string{"temp-req1.tar.gz"}, res.Frames)
	assert.Equal(t, []string{"notes.txt"}, archiveNames(t, res))
	assertNoLeftovers(t, e)

	res, err = e.SizeRange("req2", 10, 20)
	require.NoError(t, err)
	assert.Equal(t, []string{MsgNoFileFound}, res.Frames)
	assert.Empty(t, res.Archive)
	_, statErr := os.Stat(e.ArchivePath("req2"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSizeRangeInclusiveBounds(t *testing.T) {
	e := newTestEngine(t)
	put(t, e.Home, "lo.bin", 100, time.Time{})
	put(t, e.Home, "hi.bin", 200, time.Time{})
	put(t, e.Home, "over.bin", 201, time.Time{})

	res, err := e.SizeRange("r", 100, 200)
	require.NoError(t, err)
	assert.Equal(t, []string{"hi.bin", "lo.bin"}, archiveNames(t, res))
}

func TestSizeRangeRejects(t *testing.T) {
	e := newTestEngine(t)
	put(t, e.Home, "any.bin", 5, time.Time{})
	for _, r := range [][2]int64{{10, 5}, {-1, 5}, {0, -1}} {
		_, err := e.SizeRange("r", r[0], r[1])
		assert.ErrorIs(t, err, ErrInvalidSizeRange)
		assert.Equal(t, MsgInvalidSizeRange, Message(err))
	}
	assertNoLeftovers(t, e)
}

func TestDatePartition(t *testing.T) {
	e := newTestEngine(t)
	cutoff := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	put(t, e.Home, "old.txt", 1, cutoff.Add(-48*time.Hour))
	put(t, e.Home, "exact.txt", 1, cutoff)
	put(t, e.Home, "deep/new.txt", 1, cutoff.Add(time.Hour))

	before, err := e.ModifiedBefore("b", "2024-03-01")
	require.NoError(t, err)
	after, err := e.ModifiedAfter("a", "2024-03-01 00:00:00")
	require.NoError(t, err)

	assert.Equal(t, []string{"exact.txt", "old.txt"}, archiveNames(t, before))
	assert.Equal(t, []string{"new.txt"}, archiveNames(t, after))
	assertNoLeftovers(t, e)
}

func TestDateSkipsDuplicateNamesAndWorkDir(t *testing.T) {
	e := newTestEngine(t)
	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	put(t, e.Home, "a/same.txt", 1, old)
	put(t, e.Home, "b/same.txt", 2, old)
	put(t, e.WorkDir, "temp-stale.tar.gz", 3, old)

	res, err := e.ModifiedBefore("r", "2021-01-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"same.txt"}, archiveNames(t, res))
	assert.Equal(t, 1, res.Files)
}

func TestDateErrors(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.ModifiedBefore("r", "  ")
	assert.ErrorIs(t, err, ErrNoDate)
	assert.Equal(t, MsgNoDate, Message(err))

	_, err = e.ModifiedAfter("r", "yesterday")
	assert.ErrorIs(t, err, ErrBadDate)
	assert.True(t, IsArgumentError(err))
}

func TestDateNoMatches(t *testing.T) {
	e := newTestEngine(t)
	put(t, e.Home, "recent.txt", 1, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	res, err := e.ModifiedBefore("r", "2000-01-01")
	require.NoError(t, err)
	assert.Equal(t, []string{MsgNoFileFound}, res.Frames)
}

func TestExtensionSet(t *testing.T) {
	e := newTestEngine(t)
	put(t, e.Home, "a.txt", 1, time.Time{})
	put(t, e.Home, "src/pkg/b.go", 1, time.Time{})
	put(t, e.Home, "c.text", 1, time.Time{})
	put(t, e.Home, "txt", 1, time.Time{})

	res, err := e.ExtensionSet("r", []string{"txt", "go"})
	require.NoError(t, err)
	assert.Equal(t, []string{"temp-r.tar.gz"}, res.Frames)
	assert.Equal(t, []string{"a.txt", "src/pkg/b.go"}, archiveNames(t, res))
	assertNoLeftovers(t, e)
}

func TestExtensionSetCount(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.ExtensionSet("r", nil)
	assert.ErrorIs(t, err, ErrExtensionCount)
	_, err = e.ExtensionSet("r", []string{"a", "b", "c", "d"})
	assert.ErrorIs(t, err, ErrExtensionCount)
	assert.Equal(t, MsgExtensionCount, Message(err))
}

func TestExtensionSetNoMatches(t *testing.T) {
	e := newTestEngine(t)
	put(t, e.Home, "a.txt", 1, time.Time{})
	res, err := e.ExtensionSet("r", []string{"pdf"})
	require.NoError(t, err)
	assert.Equal(t, []string{MsgNoFileFound}, res.Frames)
	assertNoLeftovers(t, e)
}

func TestConcurrentArchivesDoNotCollide(t *testing.T) {
	e := newTestEngine(t)
	put(t, e.Home, "a.txt", 10, time.Time{})

	ids := []string{"one", "two", "three", "four"}
	errs := make(chan error, len(ids))
	for _, id := range ids {
		go func(id string) {
			_, err := e.SizeRange(id, 0, 100)
			errs <- err
		}(id)
	}
	for range ids {
		require.NoError(t, <-errs)
	}
	for _, id := range ids {
		names, _, err := archive.Contents(e.ArchivePath(id))
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt"}, names)
	}
	assertNoLeftovers(t, e)
}
