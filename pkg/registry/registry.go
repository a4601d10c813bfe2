package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Source is one entry of the listing: a GitHub repository and the tag to index.
type Source struct {
	Name string `json:"name" toml:"name"`
	Tag  string `json:"tag" toml:"tag"`
	Site string `json:"site,omitempty" toml:"site,omitempty"`
}

func (s Source) String() string {
	return fmt.Sprintf("%s@%s", s.Name, s.Tag)
}

// IsGitHub reports whether the source is hosted on github.com.
func (s Source) IsGitHub() bool {
	switch strings.TrimSuffix(strings.ToLower(s.Site), "/") {
	case "", "github", "github.com", "https://github.com", "http://github.com":
		return true
	}
	return false
}

func (s Source) Validate() error {
	owner, repo, found := strings.Cut(s.Name, "/")
	if !found || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return fmt.Errorf("source %q: name must be of the form owner/repo", s.Name)
	}
	if s.Tag == "" {
		return fmt.Errorf("source %s: tag is missing", s.Name)
	}
	return nil
}

// StringList decodes from a JSON array of strings or from a single string.
type StringList []string

func (l *StringList) UnmarshalJSON(b []byte) error {
	if string(bytes.TrimSpace(b)) == "null" {
		*l = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*l = StringList{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	*l = list
	return nil
}

const (
	keyName                = "name"
	keyAuthor              = "author"
	keyDescription         = "description"
	keyLicense             = "license"
	keyType                = "type"
	keyAPI                 = "api"
	keyPlatforms           = "platforms"
	keyMinimumVersion      = "minimumBinaryNinjaVersion"
	keyInstallInstructions = "installinstructions"
	keyLastUpdated         = "lastUpdated"
	keyProjectURL          = "projectUrl"
	keyAuthorURL           = "authorUrl"
	keyPackageURL          = "packageUrl"
	keyPath                = "path"
	keyCommit              = "commit"
	keyProjectData         = "projectData"
	keyVersion             = "version"
)

// Record is the indexed metadata of one plugin: the "plugin" object of its
// manifest plus the fields derived from GitHub.
type Record struct {
	Name                      string
	Author                    string
	Description               string
	License                   json.RawMessage
	Type                      StringList
	API                       StringList
	Platforms                 StringList
	MinimumBinaryNinjaVersion int64
	InstallInstructions       json.RawMessage

	LastUpdated int64
	ProjectURL  string
	AuthorURL   string
	PackageURL  string
	Path        string
	Commit      string
	ProjectData json.RawMessage

	// Extra holds manifest keys without a dedicated field, passed through as-is.
	Extra map[string]json.RawMessage
}

// Normalize fills in the defaults for optional manifest fields.
func (r *Record) Normalize() {
	if r.API == nil {
		r.API = StringList{}
	}
	if r.Type == nil {
		r.Type = StringList{}
	}
	if r.Platforms == nil {
		r.Platforms = StringList{}
	}
	if len(r.InstallInstructions) == 0 {
		r.InstallInstructions = json.RawMessage("{}")
	}
}

// FullName returns the canonical owner/repo name reported by GitHub.
func (r *Record) FullName() string {
	return gjson.GetBytes(r.ProjectData, "full_name").String()
}

// LicenseName accepts both {"name": ...} objects and plain strings.
func (r *Record) LicenseName() string {
	lic := gjson.ParseBytes(r.License)
	if lic.Type == gjson.String {
		return lic.String()
	}
	return lic.Get("name").String()
}

// Version returns the manifest version, if any.
func (r *Record) Version() string {
	raw, ok := r.Extra[keyVersion]
	if !ok {
		return ""
	}
	return gjson.ParseBytes(raw).String()
}

var pathRe = regexp.MustCompile(`[^a-z]`)

// PathFromFullName turns "Vector35/binja-tool_2" into "vectorbinjatool".
func PathFromFullName(fullName string) string {
	return pathRe.ReplaceAllString(strings.ToLower(fullName), "")
}

func rawOrNil(v json.RawMessage) json.RawMessage {
	if string(bytes.TrimSpace(v)) == "null" {
		return nil
	}
	return v
}

// parseMinimumVersion only accepts integral JSON numbers, everything else is 0.
func parseMinimumVersion(v json.RawMessage) int64 {
	res := gjson.ParseBytes(v)
	if res.Type != gjson.Number {
		return 0
	}
	n, err := strconv.ParseInt(res.Raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseTimestamp(v json.RawMessage) (int64, error) {
	res := gjson.ParseBytes(v)
	switch res.Type {
	case gjson.Number:
		return res.Int(), nil
	case gjson.Null:
		return 0, nil
	}
	return 0, fmt.Errorf("expected a number, got %s", res.Raw)
}

// textValue renders any JSON value as display text. Lists are joined with ", ".
func textValue(v json.RawMessage) string {
	res := gjson.ParseBytes(v)
	if !res.IsArray() {
		return res.String()
	}
	parts := make([]string, 0, len(res.Array()))
	for _, e := range res.Array() {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, ", ")
}

// textField decodes a manifest text field. Values that are not strings are
// kept verbatim in Extra and written back unchanged.
func (r *Record) textField(k string, v json.RawMessage) string {
	res := gjson.ParseBytes(v)
	if res.Type == gjson.String || res.Type == gjson.Null {
		return res.String()
	}
	if r.Extra == nil {
		r.Extra = make(map[string]json.RawMessage)
	}
	r.Extra[k] = v
	return textValue(v)
}

func (r *Record) setText(fields map[string]any, k, v string) {
	if _, raw := r.Extra[k]; raw {
		return
	}
	fields[k] = v
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	*r = Record{}
	for k, v := range fields {
		var err error
		switch k {
		case keyName:
			r.Name = r.textField(k, v)
		case keyAuthor:
			r.Author = r.textField(k, v)
		case keyDescription:
			r.Description = r.textField(k, v)
		case keyLicense:
			r.License = rawOrNil(v)
		case keyType:
			err = json.Unmarshal(v, &r.Type)
		case keyAPI:
			err = json.Unmarshal(v, &r.API)
		case keyPlatforms:
			err = json.Unmarshal(v, &r.Platforms)
		case keyMinimumVersion:
			r.MinimumBinaryNinjaVersion = parseMinimumVersion(v)
		case keyInstallInstructions:
			r.InstallInstructions = rawOrNil(v)
		case keyLastUpdated:
			r.LastUpdated, err = parseTimestamp(v)
		case keyProjectURL:
			err = json.Unmarshal(v, &r.ProjectURL)
		case keyAuthorURL:
			err = json.Unmarshal(v, &r.AuthorURL)
		case keyPackageURL:
			err = json.Unmarshal(v, &r.PackageURL)
		case keyPath:
			err = json.Unmarshal(v, &r.Path)
		case keyCommit:
			err = json.Unmarshal(v, &r.Commit)
		case keyProjectData:
			r.ProjectData = rawOrNil(v)
		default:
			if r.Extra == nil {
				r.Extra = make(map[string]json.RawMessage)
			}
			r.Extra[k] = v
		}
		if err != nil {
			return fmt.Errorf("invalid %s: %w", k, err)
		}
	}
	r.Normalize()
	return nil
}

// MarshalJSON writes the record with sorted keys and without HTML escaping so
// the index stays diffable.
func (r Record) MarshalJSON() ([]byte, error) {
	r.Normalize()
	fields := make(map[string]any, len(r.Extra)+16)
	for k, v := range r.Extra {
		fields[k] = v
	}
	r.setText(fields, keyName, r.Name)
	r.setText(fields, keyAuthor, r.Author)
	r.setText(fields, keyDescription, r.Description)
	if r.License != nil {
		fields[keyLicense] = r.License
	}
	fields[keyType] = []string(r.Type)
	fields[keyAPI] = []string(r.API)
	fields[keyPlatforms] = []string(r.Platforms)
	fields[keyMinimumVersion] = r.MinimumBinaryNinjaVersion
	fields[keyInstallInstructions] = r.InstallInstructions
	fields[keyLastUpdated] = r.LastUpdated
	fields[keyProjectURL] = r.ProjectURL
	fields[keyAuthorURL] = r.AuthorURL
	fields[keyPackageURL] = r.PackageURL
	fields[keyPath] = r.Path
	fields[keyCommit] = r.Commit
	if r.ProjectData != nil {
		fields[keyProjectData] = r.ProjectData
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Index is the ordered list of records persisted as plugins.json.
type Index []*Record

// ByFullName maps the canonical GitHub name to its record. Entries without
// project data are skipped.
func (idx Index) ByFullName() map[string]*Record {
	ret := make(map[string]*Record, len(idx))
	for _, r := range idx {
		if r == nil {
			continue
		}
		if name := r.FullName(); name != "" {
			ret[name] = r
		}
	}
	return ret
}
