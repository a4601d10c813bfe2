package plugin

import (
	"testing"

	"github.com/plugin-index/plugin-index/pkg/registry"
	"github.com/stretchr/testify/require"
)

func TestParseManifest(t *testing.T) {
	rec, err := parseManifest([]byte(`{
		"pluginmetadataversion": 2,
		"plugin": {
			"name": "Snippets",
			"author": "Acme",
			"type": ["ui"],
			"api": "python3",
			"description": "Run snippets",
			"license": {"name": "MIT", "text": "..."},
			"version": "1.0.0"
		}
	}`))
	require.NoError(t, err)
	require.Equal(t, "Snippets", rec.Name)
	require.Equal(t, registry.StringList{"python3"}, rec.API)
	require.Equal(t, registry.StringList{}, rec.Platforms)
	require.JSONEq(t, `{}`, string(rec.InstallInstructions))
	require.EqualValues(t, 0, rec.MinimumBinaryNinjaVersion)
	require.Equal(t, "1.0.0", rec.Version())
	require.NotContains(t, rec.Extra, "pluginmetadataversion")
}

func TestParseManifestWithBOM(t *testing.T) {
	rec, err := parseManifest([]byte("\xef\xbb\xbf" + `{"plugin": {"name": "bom"}}`))
	require.NoError(t, err)
	require.Equal(t, "bom", rec.Name)
}

func TestParseManifestErrors(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{input: `{"plugin": `, expected: "not valid JSON"},
		{input: `{"name": "x"}`, expected: `no "plugin" key`},
		{input: `{"plugin": "x"}`, expected: "not an object"},
		{input: `{"plugin": {"api": 5}}`, expected: "invalid manifest"},
	}
	for _, testCase := range testCases {
		_, err := parseManifest([]byte(testCase.input))
		require.ErrorContains(t, err, testCase.expected, testCase.input)
	}
}
