package plugin

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/plugin-index/plugin-index/pkg/registry"
	"github.com/tidwall/gjson"
)

const ManifestFileName = "plugin.json"

var utf8BOM = []byte("\xef\xbb\xbf")

// parseManifest returns the normalized "plugin" object of a plugin.json file.
func parseManifest(data []byte) (*registry.Record, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !gjson.ValidBytes(data) {
		return nil, errors.New("manifest is not valid JSON")
	}
	p := gjson.GetBytes(data, "plugin")
	if !p.Exists() {
		return nil, errors.New(`manifest has no "plugin" key`)
	}
	if !p.IsObject() {
		return nil, errors.New(`manifest "plugin" key is not an object`)
	}
	var rec registry.Record
	if err := json.Unmarshal([]byte(p.Raw), &rec); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &rec, nil
}
