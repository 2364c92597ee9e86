package pipe

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"meetingd/internal/cache"
	"meetingd/internal/fetch"
)

// Default GitHub endpoints.
const (
	DefaultAPIURL = "https://api.github.com"
	DefaultRawURL = "https://raw.githubusercontent.com"
)

// Repository is the subset of the repository payload the resolver uses.
type Repository struct {
	Name            string    `json:"name"`
	FullName        string    `json:"full_name"`
	HTMLURL         string    `json:"html_url"`
	Description     string    `json:"description"`
	StargazersCount int       `json:"stargazers_count"`
	UpdatedAt       time.Time `json:"updated_at"`
	Owner           struct {
		Login   string `json:"login"`
		HTMLURL string `json:"html_url"`
	} `json:"owner"`
}

// ContentEntry is one item of a directory listing.
type ContentEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
}

type fileContent struct {
	Name     string `json:"name"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// Release is the latest published release.
type Release struct {
	TagName string `json:"tag_name"`
}

// Client reads repository metadata from the GitHub REST API. Every request
// goes through the cache, and payloads that fail schema validation are
// never stored.
type Client struct {
	http   *fetch.Client
	cache  *cache.Cache
	ttl    time.Duration
	apiURL string
	rawURL string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIURL overrides the REST API base URL.
func WithAPIURL(u string) ClientOption {
	return func(c *Client) { c.apiURL = strings.TrimRight(u, "/") }
}

// WithRawURL overrides the raw file host used for main file URLs.
func WithRawURL(u string) ClientOption {
	return func(c *Client) { c.rawURL = strings.TrimRight(u, "/") }
}

// WithTTL sets how long responses are served from the cache.
func WithTTL(d time.Duration) ClientOption {
	return func(c *Client) { c.ttl = d }
}

// NewClient creates a Client.
func NewClient(httpClient *fetch.Client, c *cache.Cache, opts ...ClientOption) *Client {
	cl := &Client{
		http:   httpClient,
		cache:  c,
		ttl:    cache.DefaultTTL,
		apiURL: DefaultAPIURL,
		rawURL: DefaultRawURL,
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

func (c *Client) repoURL(fullName string) string {
	return c.apiURL + "/repos/" + fullName
}

func (c *Client) contentsURL(fullName, path, ref string) string {
	return c.repoURL(fullName) + "/contents/" + escapePath(path) + "?ref=" + url.QueryEscape(ref)
}

func (c *Client) readmeURL(fullName string) string {
	return c.repoURL(fullName) + "/readme"
}

func (c *Client) releaseURL(fullName string) string {
	return c.repoURL(fullName) + "/releases/latest"
}

// RawURL is the download URL of a file on a branch. It is not fetched.
func (c *Client) RawURL(fullName, branch, path string) string {
	return c.rawURL + "/" + fullName + "/" + branch + "/" + escapePath(path)
}

func escapePath(p string) string {
	segs := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

// get fetches u through the cache and decodes it into out after checking
// it against schema.
func (c *Client) get(ctx context.Context, u string, schema *jsonschema.Schema, out any) error {
	entry, err := c.cache.Fetch(ctx, u, c.ttl, func(ctx context.Context) ([]byte, error) {
		body, err := c.http.Get(ctx, u)
		if err != nil {
			return nil, err
		}
		if err := validate(schema, u, body); err != nil {
			return nil, err
		}
		return body, nil
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(entry.Value, out); err != nil {
		return &ParseError{URL: u, Err: err}
	}
	return nil
}

// Repository returns repository metadata.
func (c *Client) Repository(ctx context.Context, fullName string) (Repository, error) {
	var repo Repository
	err := c.get(ctx, c.repoURL(fullName), repositorySchema, &repo)
	return repo, err
}

// Contents lists a directory on a branch.
func (c *Client) Contents(ctx context.Context, fullName, path, ref string) ([]ContentEntry, error) {
	var entries []ContentEntry
	err := c.get(ctx, c.contentsURL(fullName, path, ref), contentsSchema, &entries)
	return entries, err
}

// File returns the decoded content of a file on a branch.
func (c *Client) File(ctx context.Context, fullName, path, ref string) (string, error) {
	u := c.contentsURL(fullName, path, ref)
	return c.file(ctx, u)
}

// Readme returns the decoded repository README.
func (c *Client) Readme(ctx context.Context, fullName string) (string, error) {
	return c.file(ctx, c.readmeURL(fullName))
}

func (c *Client) file(ctx context.Context, u string) (string, error) {
	var f fileContent
	if err := c.get(ctx, u, fileSchema, &f); err != nil {
		return "", err
	}
	// GitHub wraps base64 content at 60 columns.
	data, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(f.Content), ""))
	if err != nil {
		return "", &ParseError{URL: u, Err: fmt.Errorf("decode content: %w", err)}
	}
	return string(data), nil
}

// LatestRelease returns the most recent published release.
func (c *Client) LatestRelease(ctx context.Context, fullName string) (Release, error) {
	var rel Release
	err := c.get(ctx, c.releaseURL(fullName), releaseSchema, &rel)
	return rel, err
}

// Invalidate drops every cached response the resolver may have stored for
// ref. For a subdirectory that includes the files named in its cached
// directory listing.
func (c *Client) Invalidate(ctx context.Context, ref Ref) error {
	keys := []string{
		c.repoURL(ref.FullName()),
		c.readmeURL(ref.FullName()),
		c.releaseURL(ref.FullName()),
	}
	if ref.IsSubdirectory() {
		listing := c.contentsURL(ref.FullName(), ref.SubPath, ref.Branch)
		keys = append(keys, listing)
		if entry, ok := c.cache.Get(ctx, listing); ok {
			var entries []ContentEntry
			if json.Unmarshal(entry.Value, &entries) == nil {
				for _, e := range entries {
					keys = append(keys, c.contentsURL(ref.FullName(), ref.SubPath+"/"+e.Name, ref.Branch))
				}
			}
		}
	}
	for _, k := range keys {
		if err := c.cache.Invalidate(ctx, k); err != nil {
			return err
		}
	}
	return nil
}
