package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/plugin-index/plugin-index/pkg/registry"
)

type tomlListing struct {
	Plugins []registry.Source `toml:"plugins"`
}

// LoadListing reads the plugin sources to index. Files ending in .toml use
// [[plugins]] tables, everything else is read as a JSON array.
func LoadListing(path string) ([]registry.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read listing: %w", err)
	}

	var sources []registry.Source
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		var l tomlListing
		if err := toml.Unmarshal(data, &l); err != nil {
			return nil, fmt.Errorf("could not parse listing %s: %w", path, err)
		}
		sources = l.Plugins
	} else if err := json.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("could not parse listing %s: %w", path, err)
	}

	for i, s := range sources {
		// unsupported hosts are reported per source by the fetcher
		if !s.IsGitHub() {
			continue
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("listing entry %d: %w", i, err)
		}
	}
	return sources, nil
}

// DedupeSources collapses entries with the same name. The surviving entry
// keeps the position of the first occurrence and the values of the last.
// The names of dropped entries are returned.
func DedupeSources(sources []registry.Source) ([]registry.Source, []string) {
	pos := make(map[string]int, len(sources))
	out := make([]registry.Source, 0, len(sources))
	var duplicates []string
	for _, s := range sources {
		if i, ok := pos[s.Name]; ok {
			out[i] = s
			duplicates = append(duplicates, s.Name)
			continue
		}
		pos[s.Name] = len(out)
		out = append(out, s)
	}
	return out, duplicates
}
