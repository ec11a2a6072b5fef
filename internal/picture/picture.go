// Package picture handles the hex-encoded camera payloads submarines
// send and writes the decoded images out as PNG files.
package picture

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"time"
)

// DecodeHex converts a hex-encoded payload to raw bytes.
func DecodeHex(s string) ([]byte, error) {
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("picture: decode hex: %w", err)
	}
	return data, nil
}

// Sink writes images beneath a single directory.
type Sink struct {
	Dir string
}

// NewSink creates the directory if needed.
func NewSink(dir string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("picture: create dir %s: %w", dir, err)
	}
	return &Sink{Dir: dir}, nil
}

// Save validates that data is a PNG image and writes it to
// sub_<id>_<timestamp>.png. The written path is returned.
func (s *Sink) Save(id string, data []byte) (string, error) {
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("picture: not a valid png: %w", err)
	}
	name := fmt.Sprintf("sub_%s_%d.png", sanitize(id), time.Now().UnixMilli())
	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("picture: write %s: %w", path, err)
	}
	return path, nil
}

// sanitize strips path separators and other characters that would make
// an identifier unsafe as a file name component.
func sanitize(id string) string {
	out := make([]rune, 0, len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
