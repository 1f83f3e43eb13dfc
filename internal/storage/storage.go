package storage

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store writes uploaded images to a local directory served as static files.
type Store struct {
	Dir           string
	PublicBaseURL string
}

// NewStore creates the uploads directory if needed.
func NewStore(dir, publicBaseURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &Store{Dir: dir, PublicBaseURL: strings.TrimSuffix(publicBaseURL, "/")}, nil
}

// SaveBase64Image decodes a base64-encoded image (optionally carrying a
// data-URI prefix) and writes it to <dir>/<key>.png, returning the public URL.
func (s *Store) SaveBase64Image(key, data string) (string, error) {
	if idx := strings.Index(data, ","); idx >= 0 && strings.HasPrefix(data, "data:") {
		data = data[idx+1:]
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	name := key + ".png"
	if err := os.WriteFile(filepath.Join(s.Dir, name), raw, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}

	return s.PublicBaseURL + "/uploads/" + name, nil
}
