//go:build !linux

package fsys

import (
	"io/fs"
	"time"
)

func changeTime(fi fs.FileInfo) time.Time {
	return fi.ModTime()
}
