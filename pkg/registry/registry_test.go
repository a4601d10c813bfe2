package registry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func decodeRecord(t *testing.T, data string) *Record {
	var r Record
	require.NoError(t, json.Unmarshal([]byte(data), &r))
	return &r
}

func TestPathFromFullName(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{input: "Vector35/binja-tool_2", expected: "vectorbinjatool"},
		{input: "acme/plugin", expected: "acmeplugin"},
		{input: "x/123", expected: "x"},
	}
	for _, testCase := range testCases {
		require.Equal(t, testCase.expected, PathFromFullName(testCase.input))
	}
}

func TestRecordAPIIsAlwaysAList(t *testing.T) {
	r := decodeRecord(t, `{"name": "p", "api": "v2"}`)
	require.Equal(t, StringList{"v2"}, r.API)

	r = decodeRecord(t, `{"name": "p", "api": ["python2", "python3"]}`)
	require.Equal(t, StringList{"python2", "python3"}, r.API)

	out, err := json.Marshal(decodeRecord(t, `{"api": "v2"}`))
	require.NoError(t, err)
	require.JSONEq(t, `["v2"]`, string(mustField(t, out, "api")))
}

func mustField(t *testing.T, data []byte, key string) json.RawMessage {
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	v, ok := fields[key]
	require.True(t, ok, "missing key %s", key)
	return v
}

func TestRecordDefaults(t *testing.T) {
	r := decodeRecord(t, `{"name": "p", "api": ["python3"]}`)
	require.EqualValues(t, 0, r.MinimumBinaryNinjaVersion)
	require.Equal(t, StringList{}, r.Platforms)
	require.JSONEq(t, `{}`, string(r.InstallInstructions))

	out, err := json.Marshal(r)
	require.NoError(t, err)
	require.JSONEq(t, `0`, string(mustField(t, out, "minimumBinaryNinjaVersion")))
	require.JSONEq(t, `[]`, string(mustField(t, out, "platforms")))
	require.JSONEq(t, `{}`, string(mustField(t, out, "installinstructions")))
}

func TestRecordMinimumVersion(t *testing.T) {
	testCases := []struct {
		input    string
		expected int64
	}{
		{input: `1528`, expected: 1528},
		{input: `"1528"`, expected: 0},
		{input: `3.5`, expected: 0},
		{input: `3.0`, expected: 0},
		{input: `null`, expected: 0},
	}
	for _, testCase := range testCases {
		r := decodeRecord(t, `{"minimumBinaryNinjaVersion": `+testCase.input+`}`)
		require.Equal(t, testCase.expected, r.MinimumBinaryNinjaVersion, testCase.input)
	}
}

func TestRecordKeepsUnknownManifestKeys(t *testing.T) {
	input := `{
		"name": "Snippets",
		"version": "1.2.0",
		"longdescription": "<b>bold</b> & more",
		"dependencies": {"pip": ["requests"]},
		"license": {"name": "MIT", "text": "..."},
		"type": ["ui", "helper"],
		"api": ["python3"],
		"lastUpdated": 1000,
		"projectData": {"full_name": "acme/snippets", "stargazers_count": 3}
	}`
	r := decodeRecord(t, input)
	require.Equal(t, "1.2.0", r.Version())
	require.Equal(t, "MIT", r.LicenseName())
	require.Equal(t, "acme/snippets", r.FullName())
	require.EqualValues(t, 1000, r.LastUpdated)
	require.Len(t, r.Extra, 3)

	out, err := json.Marshal(r)
	require.NoError(t, err)
	require.Contains(t, string(out), `"longdescription":"<b>bold</b> & more"`)
	require.JSONEq(t, `{"pip": ["requests"]}`, string(mustField(t, out, "dependencies")))

	// decoding the encoded record again must not change it
	again, err := json.Marshal(decodeRecord(t, string(out)))
	require.NoError(t, err)
	require.Equal(t, string(out), string(again))
}

func TestRecordNonStringTextFields(t *testing.T) {
	r := decodeRecord(t, `{"name": "Snippets", "author": ["Alice", "Bob"], "description": 42}`)
	require.Equal(t, "Snippets", r.Name)
	require.Equal(t, "Alice, Bob", r.Author)
	require.Equal(t, "42", r.Description)

	out, err := json.Marshal(r)
	require.NoError(t, err)
	require.JSONEq(t, `["Alice", "Bob"]`, string(mustField(t, out, "author")))
	require.JSONEq(t, `42`, string(mustField(t, out, "description")))
	require.JSONEq(t, `"Snippets"`, string(mustField(t, out, "name")))

	again, err := json.Marshal(decodeRecord(t, string(out)))
	require.NoError(t, err)
	require.Equal(t, string(out), string(again))
}

func TestLicenseName(t *testing.T) {
	require.Equal(t, "GPL-3.0", decodeRecord(t, `{"license": "GPL-3.0"}`).LicenseName())
	require.Equal(t, "MIT", decodeRecord(t, `{"license": {"name": "MIT"}}`).LicenseName())
	require.Equal(t, "", decodeRecord(t, `{}`).LicenseName())
}

func TestSourceValidate(t *testing.T) {
	require.NoError(t, Source{Name: "owner/repo", Tag: "v1"}.Validate())
	require.ErrorContains(t, Source{Name: "repo", Tag: "v1"}.Validate(), "owner/repo")
	require.ErrorContains(t, Source{Name: "owner/repo/x", Tag: "v1"}.Validate(), "owner/repo")
	require.ErrorContains(t, Source{Name: "owner/repo"}.Validate(), "tag is missing")
}

func TestSourceIsGitHub(t *testing.T) {
	require.True(t, Source{Name: "o/r"}.IsGitHub())
	require.True(t, Source{Name: "o/r", Site: "https://github.com/"}.IsGitHub())
	require.False(t, Source{Name: "o/r", Site: "https://gitlab.com"}.IsGitHub())
}

func TestIndexByFullName(t *testing.T) {
	idx := Index{
		decodeRecord(t, `{"projectData": {"full_name": "acme/plugin"}, "lastUpdated": 1000}`),
		nil,
		decodeRecord(t, `{"name": "no project data"}`),
	}
	byName := idx.ByFullName()
	require.Len(t, byName, 1)
	require.EqualValues(t, 1000, byName["acme/plugin"].LastUpdated)
}
