// Package pipe resolves references to pipes, add-on packages hosted in
// GitHub repositories, into descriptors shown in the pipe catalog.
package pipe

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"meetingd/internal/fetch"
	"meetingd/internal/logging"
	"meetingd/internal/markdown"
	"meetingd/internal/metrics"
)

// DefaultExtensions are the main file extensions a subdirectory pipe may use.
var DefaultExtensions = []string{".js", ".ts"}

// DefaultConcurrency bounds ResolveAll.
const DefaultConcurrency = 4

// Descriptor describes a resolved pipe.
type Descriptor struct {
	Name             string    `json:"name"`
	StarCount        int       `json:"star_count"`
	LatestVersion    string    `json:"latest_version"`
	Author           string    `json:"author"`
	AuthorProfileURL string    `json:"author_profile_url"`
	SourceURL        string    `json:"source_url"`
	LastUpdated      time.Time `json:"last_updated"`
	ShortDescription string    `json:"short_description"`
	FullDescription  string    `json:"full_description"`
	// MainFileURL is set for subdirectory pipes only.
	MainFileURL string `json:"main_file_url,omitempty"`
}

// Resolver builds descriptors from repository references.
type Resolver struct {
	client      *Client
	extensions  []string
	concurrency int
	logger      *logging.Logger
	metrics     *metrics.Set
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithExtensions replaces DefaultExtensions. Order sets the preference for
// the index file.
func WithExtensions(exts ...string) ResolverOption {
	return func(r *Resolver) {
		r.extensions = nil
		for _, e := range exts {
			if e == "" {
				continue
			}
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			r.extensions = append(r.extensions, e)
		}
	}
}

// WithConcurrency bounds the number of references ResolveAll resolves at
// once.
func WithConcurrency(n int) ResolverOption {
	return func(r *Resolver) { r.concurrency = n }
}

func WithResolverLogger(l *logging.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

func WithResolverMetrics(m *metrics.Set) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a Resolver.
func NewResolver(client *Client, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		client:      client,
		extensions:  DefaultExtensions,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	if len(r.extensions) == 0 {
		r.extensions = DefaultExtensions
	}
	if r.concurrency <= 0 {
		r.concurrency = DefaultConcurrency
	}
	if r.logger == nil {
		r.logger = logging.Discard()
	}
	r.logger = r.logger.WithComponent("pipe")
	if r.metrics == nil {
		r.metrics = metrics.Discard()
	}
	return r
}

// Client returns the underlying GitHub client.
func (r *Resolver) Client() *Client { return r.client }

// Resolve parses raw and builds its descriptor.
func (r *Resolver) Resolve(ctx context.Context, raw string) (Descriptor, error) {
	ref, err := ParseRef(raw)
	if err != nil {
		return Descriptor{}, err
	}
	d, err := r.ResolveRef(ctx, ref)
	r.metrics.PipeResolutions.Inc()
	if err != nil {
		r.metrics.PipeResolutionFailures.Inc()
		if fetch.IsRateLimited(err) {
			r.metrics.PipeRateLimited.Inc()
		}
		r.logger.Warn("pipe resolution failed", "ref", raw, "error", err)
		return Descriptor{}, err
	}
	return d, nil
}

// ResolveRef builds the descriptor of a parsed reference.
func (r *Resolver) ResolveRef(ctx context.Context, ref Ref) (Descriptor, error) {
	repo, err := r.client.Repository(ctx, ref.FullName())
	if err != nil {
		return Descriptor{}, fmt.Errorf("repository %s: %w", ref.FullName(), err)
	}

	d := Descriptor{
		Name:             repo.Name,
		StarCount:        repo.StargazersCount,
		Author:           repo.Owner.Login,
		AuthorProfileURL: repo.Owner.HTMLURL,
		SourceURL:        repo.HTMLURL,
		LastUpdated:      repo.UpdatedAt,
		ShortDescription: repo.Description,
	}

	if ref.IsSubdirectory() {
		if err := r.resolveSubdirectory(ctx, ref, &d); err != nil {
			return Descriptor{}, err
		}
	} else {
		readme, err := r.client.Readme(ctx, ref.FullName())
		if err != nil {
			r.logger.Debug("readme unavailable", "repo", ref.FullName(), "error", err)
		}
		d.FullDescription = markdown.Normalize(readme)
	}

	rel, err := r.client.LatestRelease(ctx, ref.FullName())
	if err != nil {
		r.logger.Debug("latest release unavailable", "repo", ref.FullName(), "error", err)
	}
	d.LatestVersion = rel.TagName

	if d.ShortDescription == "" {
		d.ShortDescription = markdown.FirstParagraph(d.FullDescription)
	}
	return d, nil
}

func (r *Resolver) resolveSubdirectory(ctx context.Context, ref Ref, d *Descriptor) error {
	entries, err := r.client.Contents(ctx, ref.FullName(), ref.SubPath, ref.Branch)
	if err != nil {
		return fmt.Errorf("contents %s/%s: %w", ref.FullName(), ref.SubPath, err)
	}

	var candidates []ContentEntry
	var readme *ContentEntry
	for i, e := range entries {
		if e.Type != "" && e.Type != "file" {
			continue
		}
		if readme == nil && strings.EqualFold(e.Name, "readme.md") {
			readme = &entries[i]
		}
		if r.recognized(e.Name) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 || readme == nil {
		listing := r.client.contentsURL(ref.FullName(), ref.SubPath, ref.Branch)
		return &ParseError{URL: listing, Err: ErrNotValidPackage}
	}

	content, err := r.client.File(ctx, ref.FullName(), ref.SubPath+"/"+readme.Name, ref.Branch)
	if err != nil {
		return fmt.Errorf("readme %s/%s: %w", ref.FullName(), ref.SubPath, err)
	}

	entry := r.mainFile(candidates)
	d.Name = ref.Name()
	d.SourceURL = d.SourceURL + "/tree/" + ref.Branch + "/" + ref.SubPath
	d.FullDescription = markdown.Normalize(content)
	d.MainFileURL = r.client.RawURL(ref.FullName(), ref.Branch, ref.SubPath+"/"+entry.Name)
	return nil
}

func (r *Resolver) recognized(name string) bool {
	return slices.ContainsFunc(r.extensions, func(ext string) bool {
		return strings.HasSuffix(name, ext)
	})
}

// mainFile prefers index{ext} in extension order, then the first candidate.
func (r *Resolver) mainFile(candidates []ContentEntry) ContentEntry {
	for _, ext := range r.extensions {
		if i := slices.IndexFunc(candidates, func(e ContentEntry) bool { return e.Name == "index"+ext }); i >= 0 {
			return candidates[i]
		}
	}
	return candidates[0]
}

// Outcome is the result of resolving one reference in a batch.
type Outcome struct {
	Ref        string
	Descriptor Descriptor
	Err        error
}

// ResolveAll resolves refs concurrently. One failure does not affect the
// others; the result has one Outcome per ref, in input order.
func (r *Resolver) ResolveAll(ctx context.Context, refs []string) []Outcome {
	out := make([]Outcome, len(refs))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, raw := range refs {
		i, raw := i, raw
		g.Go(func() error {
			d, err := r.Resolve(ctx, raw)
			out[i] = Outcome{Ref: raw, Descriptor: d, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Descriptors returns the descriptors of the successful outcomes.
func Descriptors(outcomes []Outcome) []Descriptor {
	var ds []Descriptor
	for _, o := range outcomes {
		if o.Err == nil {
			ds = append(ds, o.Descriptor)
		}
	}
	return ds
}
