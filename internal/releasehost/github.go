// Package releasehost creates release records on a source-control host.
package releasehost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"releaseweaver/internal/release"
)

const (
	DefaultAPIURL = "https://api.github.com"
	apiVersion    = "2022-11-28"
)

// GitHub creates releases through the GitHub REST API.
type GitHub struct {
	apiURL string
	owner  string
	repo   string
	token  string
	client *http.Client
	logger *slog.Logger
}

// Option configures a GitHub client.
type Option func(*GitHub)

// WithAPIURL points the client at a GitHub Enterprise or test server.
func WithAPIURL(u string) Option {
	return func(g *GitHub) { g.apiURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *GitHub) {
		if c != nil {
			g.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *GitHub) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGitHub returns a client for the repository "owner/name".
func NewGitHub(repository, token string, opts ...Option) (*GitHub, error) {
	owner, repo, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return nil, fmt.Errorf("repository must be owner/name, got %q", repository)
	}
	g := &GitHub{
		apiURL: DefaultAPIURL,
		owner:  owner,
		repo:   repo,
		token:  token,
		client: &http.Client{Timeout: 5 * time.Minute},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

type createReleaseBody struct {
	TagName    string `json:"tag_name"`
	Name       string `json:"name"`
	Body       string `json:"body"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

type releaseResponse struct {
	ID        int64  `json:"id"`
	HTMLURL   string `json:"html_url"`
	UploadURL string `json:"upload_url"`
}

type apiError struct {
	Message string `json:"message"`
	Errors  []struct {
		Resource string `json:"resource"`
		Code     string `json:"code"`
		Field    string `json:"field"`
	} `json:"errors"`
}

// CreateRelease creates a published release for req.Tag and uploads the
// artifacts as assets. An existing release for the tag is a conflict.
func (g *GitHub) CreateRelease(ctx context.Context, req release.ReleaseRequest) (release.ReleaseRecord, error) {
	if err := g.ensureAbsent(ctx, req.Tag); err != nil {
		return release.ReleaseRecord{}, err
	}

	payload, err := json.Marshal(createReleaseBody{TagName: req.Tag, Name: req.Title, Body: req.Body})
	if err != nil {
		return release.ReleaseRecord{}, err
	}
	resp, err := g.do(ctx, http.MethodPost, g.repoURL("releases"), "application/json", bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return release.ReleaseRecord{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
	case http.StatusUnprocessableEntity:
		apiErr := decodeAPIError(resp.Body)
		if apiErr.alreadyExists() {
			return release.ReleaseRecord{}, release.ConflictError("create-release", "release already exists")
		}
		return release.ReleaseRecord{}, fmt.Errorf("create release: %s", apiErr.Message)
	default:
		return release.ReleaseRecord{}, statusError("create release", resp)
	}

	var created releaseResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return release.ReleaseRecord{}, fmt.Errorf("decode release: %w", err)
	}
	rec := release.ReleaseRecord{ID: strconv.FormatInt(created.ID, 10), Tag: req.Tag, URL: created.HTMLURL}
	g.logger.Info("release created", "repository", g.owner+"/"+g.repo, "tag", req.Tag, "id", rec.ID)

	for _, a := range req.Artifacts {
		if err := g.upload(ctx, created.UploadURL, a); err != nil {
			return rec, fmt.Errorf("release %s created but asset upload failed: %w", req.Tag, err)
		}
	}
	return rec, nil
}

func (g *GitHub) ensureAbsent(ctx context.Context, tag string) error {
	resp, err := g.do(ctx, http.MethodGet, g.repoURL("releases", "tags", tag), "", nil, 0)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return release.ConflictError("create-release", "release already exists")
	case http.StatusNotFound:
		return nil
	default:
		return statusError("look up release", resp)
	}
}

func (g *GitHub) upload(ctx context.Context, uploadURL string, a release.Artifact) error {
	base, _, _ := strings.Cut(uploadURL, "{")
	if base == "" {
		return fmt.Errorf("release has no upload url")
	}
	name := path.Base(a.Path)
	u := base + "?name=" + url.QueryEscape(name)

	f, err := os.Open(a.Path)
	if err != nil {
		return fmt.Errorf("open asset: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat asset: %w", err)
	}

	resp, err := g.do(ctx, http.MethodPost, u, "application/octet-stream", f, info.Size())
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return statusError("upload "+name, resp)
	}
	g.logger.Debug("asset uploaded", "name", name, "size", info.Size())
	return nil
}

func (g *GitHub) do(ctx context.Context, method, u, contentType string, body io.Reader, size int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.ContentLength = size
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", "releaseweaver")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	return resp, nil
}

func (g *GitHub) repoURL(parts ...string) string {
	escaped := make([]string, 0, len(parts)+3)
	escaped = append(escaped, "repos", url.PathEscape(g.owner), url.PathEscape(g.repo))
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return g.apiURL + "/" + strings.Join(escaped, "/")
}

func decodeAPIError(r io.Reader) apiError {
	var e apiError
	_ = json.NewDecoder(io.LimitReader(r, 1<<20)).Decode(&e)
	return e
}

func (e apiError) alreadyExists() bool {
	for _, fe := range e.Errors {
		if fe.Code == "already_exists" {
			return true
		}
	}
	return false
}

var errUnexpectedStatus = errors.New("unexpected status")

// statusError maps an unexpected response to an error. 401 and 403 are
// credential rejections.
func statusError(op string, resp *http.Response) error {
	apiErr := decodeAPIError(resp.Body)
	cause := fmt.Errorf("%w %d: %s", errUnexpectedStatus, resp.StatusCode, apiErr.Message)
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return release.AuthError(op, cause)
	default:
		return fmt.Errorf("%s: %w", op, cause)
	}
}
