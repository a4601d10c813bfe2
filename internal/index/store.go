package index

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/plugin-index/plugin-index/pkg/registry"
)

// Load reads a previously written index. A missing file is an empty index.
func Load(path string) (registry.Index, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return registry.Index{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read index: %w", err)
	}
	var idx registry.Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("could not parse index %s: %w", path, err)
	}
	if idx == nil {
		idx = registry.Index{}
	}
	return idx, nil
}

// Encode renders the index with a four space indent and a trailing newline.
func Encode(idx registry.Index) ([]byte, error) {
	if idx == nil {
		idx = registry.Index{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(idx); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Write(path string, idx registry.Index) ([]byte, error) {
	data, err := Encode(idx)
	if err != nil {
		return nil, fmt.Errorf("could not encode index: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return nil, fmt.Errorf("could not write index: %w", err)
	}
	return data, nil
}

// writeFileAtomic replaces path only after the full content is on disk.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
