// Package firmware locates and loads controller firmware images.
package firmware

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// RootPrefix marks a name as an absolute filesystem path.
const RootPrefix = "{root}"

// ErrNoImage is returned when no image name is given and no default is
// configured.
var ErrNoImage = errors.New("firmware: no target image defined")

// Source returns firmware image bytes by name.
type Source interface {
	Get(name string) ([]byte, error)
}

// FileSource reads images from disk. Names starting with "{root}" are read
// from the absolute path that follows; other names resolve under Root.
// An empty name selects Default.
type FileSource struct {
	Root    string
	Default string
}

// Resolve maps a requested name to a file path and reports whether it was
// given as an absolute path.
func (s FileSource) Resolve(name string) (string, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = s.Default
	}
	if name == "" {
		return "", false, ErrNoImage
	}

	if rest, ok := strings.CutPrefix(name, RootPrefix); ok {
		return filepath.Clean(rest), true, nil
	}

	clean := filepath.Clean("/" + name)
	return filepath.Join(s.Root, clean), false, nil
}

func (s FileSource) Get(name string) ([]byte, error) {
	path, abs, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("firmware: can't find %s: %w", path, err)
		}
		kind := "request"
		if abs {
			kind = "read"
		}
		return nil, fmt.Errorf("firmware: can't %s %s: %w", kind, path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("firmware: %s is empty", path)
	}
	return data, nil
}

// Static serves a single in-memory image for every name.
type Static []byte

func (s Static) Get(string) ([]byte, error) {
	if len(s) == 0 {
		return nil, ErrNoImage
	}
	return []byte(s), nil
}
