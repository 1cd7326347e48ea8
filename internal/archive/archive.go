// Package archive produces the gzip-compressed tarballs handed back to
// clients. Each archive ends with a .w24/MANIFEST.json member listing every file
// with its size, modification time and BLAKE3 digest.
package archive

import (
	"archive/tar"
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/zeebo/blake3"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ManifestName is the preferred name of the trailing manifest member. When a
// archived file already uses it, the manifest gets a "_" prefix per clash.
// Readers find the manifest through the manifestPAXKey record, not the name.
const ManifestName = ".w24/MANIFEST.json"

const manifestPAXKey = "W24.manifest"

var ErrNoMembers = errors.New("archive: nothing to archive")

// Stats summarises a written archive.
type Stats struct {
	Files int
	Bytes int64 // uncompressed payload bytes
	Size  int64 // archive size on disk
}

type member struct {
	name string // slash-separated name inside the archive
	path string // source on disk
}

// WriteDir archives every regular file below root into dst. Member names are
// relative to root.
func WriteDir(dst, root string) (Stats, error) {
	var members []member
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		members = append(members, member{name: filepath.ToSlash(rel), path: path})
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("scan %s: %w", root, err)
	}
	return write(dst, members)
}

// WriteList archives the files named one per line in listPath. Names below
// base are stored relative to it; anything else keeps its absolute path
// without the leading separator, the way tar(1) does.
func WriteList(dst, base, listPath string) (Stats, error) {
	f, err := os.Open(listPath)
	if err != nil {
		return Stats{}, fmt.Errorf("open path list: %w", err)
	}
	defer f.Close()

	var members []member
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		path := strings.TrimSpace(sc.Text())
		if path == "" {
			continue
		}
		members = append(members, member{name: memberName(base, path), path: path})
	}
	if err := sc.Err(); err != nil {
		return Stats{}, fmt.Errorf("read path list: %w", err)
	}
	return write(dst, members)
}

func memberName(base, path string) string {
	if base != "" {
		if rel, err := filepath.Rel(base, path); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(rel)
		}
	}
	return strings.TrimPrefix(filepath.ToSlash(path), "/")
}

func write(dst string, members []member) (st Stats, err error) {
	if len(members) == 0 {
		return Stats{}, ErrNoMembers
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Stats{}, fmt.Errorf("remove stale archive: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Stats{}, fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
		}
	}()

	gz, err := gzip.NewWriterLevel(out, gzip.DefaultCompression)
	if err != nil {
		return Stats{}, err
	}
	tw := tar.NewWriter(gz)

	files := make([]interface{}, 0, len(members))
	for _, m := range members {
		entry, n, err := addFile(tw, m)
		if err != nil {
			return Stats{}, fmt.Errorf("add %s: %w", m.path, err)
		}
		files = append(files, entry)
		st.Files++
		st.Bytes += n
	}

	if err := addManifest(tw, manifestName(members), files); err != nil {
		return Stats{}, err
	}
	if err := tw.Close(); err != nil {
		return Stats{}, err
	}
	if err := gz.Close(); err != nil {
		return Stats{}, err
	}
	if fi, err := out.Stat(); err == nil {
		st.Size = fi.Size()
	}
	return st, nil
}

func addFile(tw *tar.Writer, m member) (map[string]interface{}, int64, error) {
	f, err := os.Open(m.path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	if !fi.Mode().IsRegular() {
		return nil, 0, fmt.Errorf("not a regular file")
	}
	hdr, err := tar.FileInfoHeader(fi, "")
	if err != nil {
		return nil, 0, err
	}
	hdr.Name = m.name
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, 0, err
	}

	h := blake3.New()
	n, err := io.CopyN(io.MultiWriter(tw, h), f, fi.Size())
	if err != nil {
		return nil, n, err
	}
	return map[string]interface{}{
		"name":   m.name,
		"size":   n,
		"mtime":  fi.ModTime().UTC().Format(time.RFC3339),
		"blake3": hex.EncodeToString(h.Sum(nil)),
	}, n, nil
}

func manifestName(members []member) string {
	taken := make(map[string]struct{}, len(members))
	for _, m := range members {
		taken[m.name] = struct{}{}
	}
	name := ManifestName
	for {
		if _, clash := taken[name]; !clash {
			return name
		}
		name = "_" + name
	}
}

func addManifest(tw *tar.Writer, name string, files []interface{}) error {
	s, err := structpb.NewStruct(map[string]interface{}{
		"created": time.Now().UTC().Format(time.RFC3339),
		"count":   len(files),
		"files":   files,
	})
	if err != nil {
		return fmt.Errorf("build manifest: %w", err)
	}
	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	hdr := &tar.Header{
		Name:       name,
		Mode:       0o644,
		Size:       int64(len(data)),
		ModTime:    time.Now(),
		Typeflag:   tar.TypeReg,
		Format:     tar.FormatPAX,
		PAXRecords: map[string]string{manifestPAXKey: "1"},
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = tw.Write(data)
	return err
}
