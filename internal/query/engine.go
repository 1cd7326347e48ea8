// Package query implements the file queries a node answers: directory
// listings, single-file metadata, and the size/date/extension selections that
// end in an archive.
package query

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/exp/slices"

	"w24fs/internal/archive"
	"w24fs/internal/fsys"
	"w24fs/internal/logger"
	"w24fs/internal/protocol"
)

// Response texts.
const (
	MsgFileNotFound     = "File not found"
	MsgNoFileFound      = "No file found"
	MsgInvalidSizeRange = "Invalid size range"
	MsgNoDate           = protocol.MsgNoDate
	MsgBadDate          = "Invalid date format"
	MsgExtensionCount   = protocol.MsgBadExtensionCount

	MsgOpenDir    = "Error opening directory"
	MsgStagingDir = "Error creating temporary directory"
	MsgCopy       = "Error copying files"
	MsgSearch     = "Error searching files"
	MsgArchive    = "Error creating tar file"
)

const infoTimeLayout = "2006-01-02 15:04:05"

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// Result is what an operation hands back to the dispatcher.
type Result struct {
	Frames  []string
	Archive string // absolute path when an archive was produced
	Files   int
	Bytes   int64
}

func text(s string) Result { return Result{Frames: []string{s}} }

// Engine answers queries against one home tree. Archives, staging
// directories and path lists live in WorkDir, which the recursive searches
// never descend into.
type Engine struct {
	Home     string
	WorkDir  string
	FS       fsys.FS
	Location *time.Location
}

// NewEngine prepares WorkDir and returns an engine reading the local disk.
func NewEngine(home, workDir string) (*Engine, error) {
	home, err := filepath.Abs(home)
	if err != nil {
		return nil, err
	}
	workDir, err = filepath.Abs(workDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create workdir: %w", err)
	}
	return &Engine{
		Home:     home,
		WorkDir:  workDir,
		FS:       fsys.OS{},
		Location: time.Local,
	}, nil
}

// ArchivePath is where the archive for reqID is written.
func (e *Engine) ArchivePath(reqID string) string {
	return filepath.Join(e.WorkDir, "temp-"+reqID+".tar.gz")
}

// ListAlpha lists the home directory's subdirectories, case-insensitively
// sorted, followed by the EndOfData sentinel frame.
func (e *Engine) ListAlpha() (Result, error) {
	dirs, err := e.subdirs()
	if err != nil {
		return Result{}, err
	}
	slices.SortStableFunc(dirs, func(a, b fsys.Entry) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return Result{Frames: []string{joinNames(dirs), protocol.EndOfData}}, nil
}

// ListByTime lists the home directory's subdirectories oldest first.
func (e *Engine) ListByTime() (Result, error) {
	dirs, err := e.subdirs()
	if err != nil {
		return Result{}, err
	}
	slices.SortStableFunc(dirs, func(a, b fsys.Entry) int {
		return a.ChangeTime.Compare(b.ChangeTime)
	})
	return text(joinNames(dirs)), nil
}

func (e *Engine) subdirs() ([]fsys.Entry, error) {
	entries, err := e.FS.ReadDir(e.Home)
	if err != nil {
		return nil, fail(MsgOpenDir, err)
	}
	dirs := entries[:0]
	for _, ent := range entries {
		if ent.IsDir && ent.Name != "." && ent.Name != ".." {
			dirs = append(dirs, ent)
		}
	}
	return dirs, nil
}

func joinNames(entries []fsys.Entry) string {
	var b strings.Builder
	for _, ent := range entries {
		b.WriteString(ent.Name)
		b.WriteByte('\n')
	}
	return b.String()
}

// FileInfo reports size, creation time and permission bits of Home/name.
func (e *Engine) FileInfo(name string) (Result, error) {
	path := filepath.Join(e.Home, name)
	if !fsys.Within(e.Home, path) {
		return text(MsgFileNotFound), nil
	}
	ent, err := e.FS.Stat(path)
	if err != nil {
		return text(MsgFileNotFound), nil
	}
	return text(fmt.Sprintf("%s Size: %d bytes, Created: %s, Permissions: %o",
		name, ent.Size, ent.ChangeTime.In(e.Location).Format(infoTimeLayout), ent.Mode.Perm())), nil
}

// SizeRange archives the regular files directly in Home whose size is within
// [lo, hi].
func (e *Engine) SizeRange(reqID string, lo, hi int64) (Result, error) {
	if lo < 0 || hi < 0 || lo > hi {
		return Result{}, ErrInvalidSizeRange
	}
	entries, err := e.FS.ReadDir(e.Home)
	if err != nil {
		return Result{}, fail(MsgOpenDir, err)
	}
	var matches []fsys.Entry
	for _, ent := range entries {
		if ent.Regular && ent.Size >= lo && ent.Size <= hi {
			matches = append(matches, ent)
		}
	}
	return e.stageAndArchive(reqID, "w24fz-", matches)
}

// ModifiedBefore archives every regular file under Home modified at or
// before date.
func (e *Engine) ModifiedBefore(reqID, date string) (Result, error) {
	cutoff, err := e.parseDate(date)
	if err != nil {
		return Result{}, err
	}
	matches, err := e.search(func(ent fsys.Entry) bool { return !ent.ModTime.After(cutoff) })
	if err != nil {
		return Result{}, err
	}
	return e.stageAndArchive(reqID, "w24fdb-", matches)
}

// ModifiedAfter archives every regular file under Home modified strictly
// after date.
func (e *Engine) ModifiedAfter(reqID, date string) (Result, error) {
	cutoff, err := e.parseDate(date)
	if err != nil {
		return Result{}, err
	}
	matches, err := e.search(func(ent fsys.Entry) bool { return ent.ModTime.After(cutoff) })
	if err != nil {
		return Result{}, err
	}
	return e.stageAndArchive(reqID, "w24fda-", matches)
}

// ExtensionSet archives every regular file under Home whose name ends in one
// of exts. Matches are archived by path so directory depth is preserved.
func (e *Engine) ExtensionSet(reqID string, exts []string) (Result, error) {
	if len(exts) == 0 || len(exts) > protocol.MaxExtensions {
		return Result{}, ErrExtensionCount
	}
	suffixes := make([]string, len(exts))
	for i, ext := range exts {
		suffixes[i] = "." + strings.TrimPrefix(ext, ".")
	}
	matches, err := e.search(func(ent fsys.Entry) bool {
		for _, s := range suffixes {
			if strings.HasSuffix(ent.Name, s) {
				return true
			}
		}
		return false
	})
	if err != nil {
		return Result{}, err
	}
	if len(matches) == 0 {
		return text(MsgNoFileFound), nil
	}

	list, err := os.CreateTemp(e.WorkDir, "w24ft-*.list")
	if err != nil {
		return Result{}, fail(MsgStagingDir, err)
	}
	defer os.Remove(list.Name())
	for _, m := range matches {
		if _, err := fmt.Fprintln(list, m.Path); err != nil {
			list.Close()
			return Result{}, fail(MsgStagingDir, err)
		}
	}
	if err := list.Close(); err != nil {
		return Result{}, fail(MsgStagingDir, err)
	}

	dst := e.ArchivePath(reqID)
	st, err := archive.WriteList(dst, e.Home, list.Name())
	if err != nil {
		return Result{}, fail(MsgArchive, err)
	}
	return archived(dst, st), nil
}

func (e *Engine) parseDate(date string) (time.Time, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return time.Time{}, ErrNoDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, date, e.Location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadDate, date)
}

// search walks Home, skipping WorkDir, and keeps regular files accepted by keep.
func (e *Engine) search(keep func(fsys.Entry) bool) ([]fsys.Entry, error) {
	var matches []fsys.Entry
	err := e.FS.Walk(e.Home, []string{e.WorkDir}, func(ent fsys.Entry) error {
		if ent.Regular && keep(ent) {
			matches = append(matches, ent)
		}
		return nil
	})
	if err != nil {
		return nil, fail(MsgSearch, err)
	}
	return matches, nil
}

// stageAndArchive copies matches into a fresh staging directory, archives
// it, and removes the staging directory. Later files with a name already
// staged are skipped.
func (e *Engine) stageAndArchive(reqID, prefix string, matches []fsys.Entry) (Result, error) {
	if len(matches) == 0 {
		return text(MsgNoFileFound), nil
	}
	staging, err := os.MkdirTemp(e.WorkDir, prefix)
	if err != nil {
		return Result{}, fail(MsgStagingDir, err)
	}
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			logger.Error("remove staging %s: %v", staging, err)
		}
	}()

	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if _, dup := seen[m.Name]; dup {
			continue
		}
		seen[m.Name] = struct{}{}
		if err := copyFile(m.Path, filepath.Join(staging, m.Name)); err != nil {
			return Result{}, fail(MsgCopy, err)
		}
	}

	dst := e.ArchivePath(reqID)
	st, err := archive.WriteDir(dst, staging)
	if err != nil {
		return Result{}, fail(MsgArchive, err)
	}
	return archived(dst, st), nil
}

func archived(dst string, st archive.Stats) Result {
	return Result{
		Frames:  []string{filepath.Base(dst)},
		Archive: dst,
		Files:   st.Files,
		Bytes:   st.Size,
	}
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, fi.Mode().Perm()|0o600)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	// keep the source mtime so the archive reflects what was matched
	return os.Chtimes(dst, fi.ModTime(), fi.ModTime())
}

// IsArgumentError reports whether err came from bad client input rather than
// a node-side failure.
func IsArgumentError(err error) bool {
	return errors.Is(err, ErrInvalidSizeRange) || errors.Is(err, ErrNoDate) ||
		errors.Is(err, ErrBadDate) || errors.Is(err, ErrExtensionCount)
}
