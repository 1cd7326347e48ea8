package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Contents returns the member names of an archive (manifest excluded) and
// the decoded manifest. The manifest is recognised by its PAX record, so a
// user file that shares its name is listed like any other member.
func Contents(path string) ([]string, *structpb.Struct, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, nil, fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	var names []string
	var manifest *structpb.Struct
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("tar: %w", err)
		}
		if hdr.PAXRecords[manifestPAXKey] == "" {
			names = append(names, hdr.Name)
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, nil, err
		}
		manifest = &structpb.Struct{}
		if err := protojson.Unmarshal(data, manifest); err != nil {
			return nil, nil, fmt.Errorf("manifest: %w", err)
		}
	}
	return names, manifest, nil
}
