// Package fsys is the filesystem collaborator the query engine reads through:
// single-level listings, stat, and a recursive walk that tolerates unreadable
// subtrees.
package fsys

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Entry is a read-only snapshot of one directory entry.
type Entry struct {
	Name       string
	Path       string // absolute
	IsDir      bool
	Regular    bool
	Size       int64
	Mode       fs.FileMode
	ModTime    time.Time
	ChangeTime time.Time // inode change time, the closest thing to creation time on Linux
}

// FS is the filesystem surface the query engine depends on.
type FS interface {
	ReadDir(dir string) ([]Entry, error)
	Stat(path string) (Entry, error)
	// Walk visits every entry below root in lexical order. Directories whose
	// path is listed in skip are not entered.
	Walk(root string, skip []string, fn func(Entry) error) error
}

// OS reads the local filesystem.
type OS struct{}

func (OS) ReadDir(dir string) ([]Entry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(des))
	for _, de := range des {
		path := filepath.Join(dir, de.Name())
		// os.ReadDir does not follow symlinks; Stat does, so a link to a
		// directory lists as one.
		fi, err := os.Stat(path)
		if err != nil {
			continue
		}
		out = append(out, fromInfo(path, fi))
	}
	return out, nil
}

func (OS) Stat(path string) (Entry, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Entry{}, err
	}
	return fromInfo(path, fi), nil
}

func (OS) Walk(root string, skip []string, fn func(Entry) error) error {
	skipSet := make(map[string]struct{}, len(skip))
	for _, s := range skip {
		if s != "" {
			skipSet[filepath.Clean(s)] = struct{}{}
		}
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// find(1) semantics: report nothing, keep going
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if _, ok := skipSet[filepath.Clean(path)]; ok {
				return fs.SkipDir
			}
		}
		if path == root {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		return fn(fromInfo(path, fi))
	})
}

// Within reports whether path is root or lies below it.
func Within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func fromInfo(path string, fi fs.FileInfo) Entry {
	return Entry{
		Name:       fi.Name(),
		Path:       path,
		IsDir:      fi.IsDir(),
		Regular:    fi.Mode().IsRegular(),
		Size:       fi.Size(),
		Mode:       fi.Mode(),
		ModTime:    fi.ModTime(),
		ChangeTime: changeTime(fi),
	}
}
