package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v59/github"
)

func getOwnerRepo(fullRepo string) (string, string) {
	owner, repo, found := strings.Cut(fullRepo, "/")
	if !found {
		return "", ""
	}

	return owner, repo
}

func getGitHubReleaseByTag(ctx context.Context, ghClient *github.Client, owner, repo, tag string) (*github.RepositoryRelease, error) {
	release, _, err := ghClient.Repositories.GetReleaseByTag(ctx, owner, repo, tag)
	if err != nil {
		return nil, err
	}
	if release.PublishedAt == nil {
		return nil, fmt.Errorf("release %s has no publish date", tag)
	}
	return release, nil
}

// findGitHubTag walks the tag list page by page until it finds the tag.
func findGitHubTag(ctx context.Context, ghClient *github.Client, owner, repo, tag string) (*github.RepositoryTag, error) {
	opts := &github.ListOptions{Page: 1, PerPage: 100}
	for {
		tags, resp, err := ghClient.Repositories.ListTags(ctx, owner, repo, opts)
		if err != nil {
			return nil, err
		}
		for _, t := range tags {
			if t.GetName() == tag {
				return t, nil
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return nil, fmt.Errorf("unable to associate tag %s with a commit for plugin %s/%s", tag, owner, repo)
}

// getGitHubRepositoryJSON returns the repository metadata exactly as GitHub sent it.
func getGitHubRepositoryJSON(ctx context.Context, ghClient *github.Client, owner, repo string) (json.RawMessage, error) {
	req, err := ghClient.NewRequest(http.MethodGet, fmt.Sprintf("repos/%s/%s", owner, repo), nil)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if _, err := ghClient.Do(ctx, req, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func getGitHubFileContent(ctx context.Context, ghClient *github.Client, owner, repo, path, ref string) ([]byte, error) {
	fileContent, _, _, err := ghClient.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return nil, err
	}
	if fileContent == nil {
		return nil, fmt.Errorf("%s is not a file", path)
	}
	content, err := fileContent.GetContent()
	if err != nil {
		return nil, fmt.Errorf("could not decode %s: %w", path, err)
	}
	return []byte(content), nil
}
