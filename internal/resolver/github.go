package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	scerrors "github.com/rtrevinnoc/siliconcompiler/pkg/errors"
)

// GithubResolver downloads release assets. The source names the owner,
// repository, release tag and asset:
//
//	github://<owner>/<repository>/<version>/<artifact>
//
// Public assets download straight from the release page. The
// github+private scheme looks the asset up through the API with an
// access token from the environment.
type GithubResolver struct {
	*HTTPResolver
}

// NewGithub builds a resolver for github:// and github+private://
// sources.
func NewGithub(name string, root Root, source, reference string) (*GithubResolver, error) {
	httpResolver, err := NewHTTP(name, root, source, reference)
	if err != nil {
		return nil, err
	}
	r := &GithubResolver{HTTPResolver: httpResolver}
	if _, err := r.releaseParts(); err != nil {
		return nil, err
	}
	r.downloadURL = r.assetURL
	return r, nil
}

type releaseAsset struct {
	Owner      string
	Repository string
	Release    string
	Artifact   string
}

func (r *GithubResolver) releaseParts() (releaseAsset, error) {
	parsed, err := r.sourceURL()
	if err != nil {
		return releaseAsset{}, err
	}

	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	malformed := parsed.Host == "" || len(parts) != 3
	for _, part := range parts {
		if part == "" {
			malformed = true
		}
	}
	if malformed {
		return releaseAsset{}, scerrors.NewResolveError(r.name,
			fmt.Sprintf("'%s' is not in the proper form: github://<owner>/<repository>/<version>/<artifact>", r.source), nil)
	}

	return releaseAsset{
		Owner:      parsed.Host,
		Repository: parts[0],
		Release:    parts[1],
		Artifact:   parts[2],
	}, nil
}

func (r *GithubResolver) assetURL(ctx context.Context) (string, error) {
	asset, err := r.releaseParts()
	if err != nil {
		return "", err
	}

	repository := asset.Owner + "/" + asset.Repository
	if asset.Artifact == asset.Release+".zip" || asset.Artifact == asset.Release+".tar.gz" {
		return fmt.Sprintf("https://github.com/%s/archive/refs/tags/%s",
			repository, asset.Artifact), nil
	}

	parsed, err := r.sourceURL()
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "github+private" {
		token, err := r.githubToken()
		if err != nil {
			return "", err
		}
		return r.apiAssetURL(ctx, asset, token)
	}

	return fmt.Sprintf("https://github.com/%s/releases/download/%s/%s",
		repository, asset.Release, asset.Artifact), nil
}

func (r *GithubResolver) githubToken() (string, error) {
	if token := tokenFromEnv(r.name); token != "" {
		return token, nil
	}
	clean := tokenSanitizer.Replace(strings.ToUpper(r.name))
	return "", scerrors.NewResolveError(r.name,
		fmt.Sprintf("unable to determine authorization token for github, set one of: GITHUB_%s_TOKEN, GITHUB_TOKEN, GIT_TOKEN", clean), nil)
}

type githubRelease struct {
	Assets []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"assets"`
}

// apiAssetURL locates the asset through the release API and prepares
// the authenticated download headers.
func (r *GithubResolver) apiAssetURL(ctx context.Context, asset releaseAsset, token string) (string, error) {
	api := fmt.Sprintf("https://api.github.com/repos/%s/%s/releases/tags/%s",
		asset.Owner, asset.Repository, asset.Release)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", scerrors.NewResolveError(r.name,
			fmt.Sprintf("unable to query release %s/%s", asset.Repository, asset.Release), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", scerrors.NewResolveError(r.name,
			fmt.Sprintf("unable to query release %s/%s: %s", asset.Repository, asset.Release, resp.Status), nil)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", err
	}

	for _, entry := range release.Assets {
		if entry.Name == asset.Artifact {
			// Asset downloads go through the API endpoint and need
			// these headers on the follow-up request.
			r.SetHeader("Authorization", "Bearer "+token)
			r.SetHeader("Accept", "application/octet-stream")
			return entry.URL, nil
		}
	}

	return "", scerrors.NewResolveError(r.name,
		fmt.Sprintf("unable to find release asset: %s/%s/%s/%s",
			asset.Owner, asset.Repository, asset.Release, asset.Artifact), nil)
}
