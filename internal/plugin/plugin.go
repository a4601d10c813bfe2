package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v59/github"
	"github.com/patrickmn/go-cache"
	"github.com/plugin-index/plugin-index/pkg/registry"
	"github.com/tidwall/gjson"
)

const DefaultWebURL = "https://github.com/"

// Stage names the step of a fetch that failed.
type Stage string

const (
	StageSource   Stage = "source"
	StageRelease  Stage = "release"
	StageTag      Stage = "tag"
	StageProject  Stage = "project"
	StageManifest Stage = "manifest"
)

type FetchError struct {
	Source string
	Stage  Stage
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s: %s: unable to get %s: %v", e.Source, e.Stage, e.URL, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Stage, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type cacheKeyPrefix string

const (
	cacheKeyPrefixProject cacheKeyPrefix = "project"
	cacheKeyPrefixTag     cacheKeyPrefix = "tag"
)

func getCacheKey(p cacheKeyPrefix, parts ...string) string {
	return fmt.Sprintf("%s/%s", p, strings.ToLower(strings.Join(parts, "/")))
}

// Fetcher rebuilds plugin records from GitHub. It is safe for concurrent use.
type Fetcher struct {
	ghClient *github.Client
	webURL   string
	cache    *cache.Cache
}

func NewFetcher(ghClient *github.Client) *Fetcher {
	return &Fetcher{
		ghClient: ghClient,
		webURL:   DefaultWebURL,
		cache:    cache.New(30*time.Minute, time.Hour),
	}
}

func (f *Fetcher) apiURL(format string, a ...any) string {
	u, err := f.ghClient.BaseURL.Parse(fmt.Sprintf(format, a...))
	if err != nil {
		return fmt.Sprintf(format, a...)
	}
	return u.String()
}

func (f *Fetcher) getTag(ctx context.Context, owner, repo, tag string) (*github.RepositoryTag, error) {
	key := getCacheKey(cacheKeyPrefixTag, owner, repo, tag)
	if v, ok := f.cache.Get(key); ok {
		return v.(*github.RepositoryTag), nil
	}
	t, err := findGitHubTag(ctx, f.ghClient, owner, repo, tag)
	if err != nil {
		return nil, err
	}
	f.cache.Set(key, t, cache.DefaultExpiration)
	return t, nil
}

func (f *Fetcher) getProject(ctx context.Context, owner, repo string) (json.RawMessage, error) {
	key := getCacheKey(cacheKeyPrefixProject, owner, repo)
	if v, ok := f.cache.Get(key); ok {
		return v.(json.RawMessage), nil
	}
	raw, err := getGitHubRepositoryJSON(ctx, f.ghClient, owner, repo)
	if err != nil {
		return nil, err
	}
	f.cache.Set(key, raw, cache.DefaultExpiration)
	return raw, nil
}

// Fetch reconstructs the record of src from scratch. Every failure is
// returned as a *FetchError naming the stage that failed.
func (f *Fetcher) Fetch(ctx context.Context, src registry.Source) (*registry.Record, error) {
	if !src.IsGitHub() {
		return nil, &FetchError{Source: src.Name, Stage: StageSource, Err: fmt.Errorf("unsupported site %q, only GitHub projects are supported", src.Site)}
	}
	owner, repo := getOwnerRepo(src.Name)
	if owner == "" || repo == "" {
		return nil, &FetchError{Source: src.Name, Stage: StageSource, Err: fmt.Errorf("invalid name %q", src.Name)}
	}

	release, err := getGitHubReleaseByTag(ctx, f.ghClient, owner, repo, src.Tag)
	if err != nil {
		return nil, &FetchError{Source: src.Name, Stage: StageRelease, URL: f.apiURL("repos/%s/%s/releases/tags/%s", owner, repo, url.PathEscape(src.Tag)), Err: err}
	}

	tag, err := f.getTag(ctx, owner, repo, src.Tag)
	if err != nil {
		return nil, &FetchError{Source: src.Name, Stage: StageTag, URL: f.apiURL("repos/%s/%s/tags", owner, repo), Err: err}
	}

	projectURL := f.apiURL("repos/%s/%s", owner, repo)
	projectData, err := f.getProject(ctx, owner, repo)
	if err != nil {
		return nil, &FetchError{Source: src.Name, Stage: StageProject, URL: projectURL, Err: err}
	}
	fullName := gjson.GetBytes(projectData, "full_name").String()
	if fullName == "" {
		return nil, &FetchError{Source: src.Name, Stage: StageProject, URL: projectURL, Err: fmt.Errorf("project data has no full_name")}
	}

	manifestURL := f.apiURL("repos/%s/%s/contents/%s?ref=%s", owner, repo, ManifestFileName, url.QueryEscape(src.Tag))
	content, err := getGitHubFileContent(ctx, f.ghClient, owner, repo, ManifestFileName, src.Tag)
	if err != nil {
		return nil, &FetchError{Source: src.Name, Stage: StageManifest, URL: manifestURL, Err: err}
	}
	rec, err := parseManifest(content)
	if err != nil {
		return nil, &FetchError{Source: src.Name, Stage: StageManifest, Err: err}
	}

	rec.LastUpdated = release.GetPublishedAt().Unix()
	rec.ProjectURL = f.webURL + owner + "/" + repo
	rec.AuthorURL = f.webURL + owner
	rec.PackageURL = tag.GetZipballURL()
	rec.Path = registry.PathFromFullName(fullName)
	rec.Commit = tag.GetCommit().GetSHA()
	rec.ProjectData = projectData
	rec.Normalize()
	return rec, nil
}
