package pipe

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"meetingd/internal/store"
)

// DefaultURLs seed an empty catalog.
var DefaultURLs = []string{
	"https://github.com/mediar-ai/screenpipe/tree/main/examples/typescript/pipe-phi3.5-engineering-team-logs",
}

// Catalog is the persisted list of pipe references the user follows.
type Catalog struct {
	kv       store.KV
	resolver *Resolver
	defaults []string

	mu sync.Mutex
}

// NewCatalog creates a Catalog. A nil defaults selects DefaultURLs.
func NewCatalog(kv store.KV, resolver *Resolver, defaults []string) *Catalog {
	if defaults == nil {
		defaults = DefaultURLs
	}
	return &Catalog{kv: kv, resolver: resolver, defaults: defaults}
}

// URLs returns the catalog's references; the defaults until the catalog is
// first written.
func (c *Catalog) URLs(ctx context.Context) ([]string, error) {
	raw, ok, err := c.kv.Get(ctx, store.KeyPipeURLs)
	if err != nil {
		return nil, fmt.Errorf("load pipe catalog: %w", err)
	}
	if !ok {
		return slices.Clone(c.defaults), nil
	}
	var urls []string
	if err := json.Unmarshal(raw, &urls); err != nil {
		return nil, fmt.Errorf("decode pipe catalog: %w", err)
	}
	return urls, nil
}

func (c *Catalog) save(ctx context.Context, urls []string) error {
	raw, err := json.Marshal(urls)
	if err != nil {
		return fmt.Errorf("encode pipe catalog: %w", err)
	}
	if err := c.kv.Set(ctx, store.KeyPipeURLs, raw); err != nil {
		return fmt.Errorf("save pipe catalog: %w", err)
	}
	return nil
}

// List resolves every reference in the catalog.
func (c *Catalog) List(ctx context.Context) ([]Outcome, error) {
	urls, err := c.URLs(ctx)
	if err != nil {
		return nil, err
	}
	return c.resolver.ResolveAll(ctx, urls), nil
}

// Add resolves raw and appends it. It fails with ErrDuplicateURL if raw is
// already listed and with ErrDuplicateName if a listed pipe resolves to the
// same name.
func (c *Catalog) Add(ctx context.Context, raw string) (Descriptor, error) {
	if _, err := ParseRef(raw); err != nil {
		return Descriptor{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	urls, err := c.URLs(ctx)
	if err != nil {
		return Descriptor{}, err
	}
	if slices.Contains(urls, raw) {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrDuplicateURL, raw)
	}

	d, err := c.resolver.Resolve(ctx, raw)
	if err != nil {
		return Descriptor{}, err
	}
	for _, existing := range Descriptors(c.resolver.ResolveAll(ctx, urls)) {
		if existing.Name == d.Name {
			return Descriptor{}, fmt.Errorf("%w: %s", ErrDuplicateName, d.Name)
		}
	}

	if err := c.save(ctx, append(urls, raw)); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// Remove deletes raw from the catalog.
func (c *Catalog) Remove(ctx context.Context, raw string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	urls, err := c.URLs(ctx)
	if err != nil {
		return err
	}
	i := slices.Index(urls, raw)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotInCatalog, raw)
	}
	return c.save(ctx, slices.Delete(urls, i, i+1))
}

// Refresh drops the cached metadata for raw and resolves it again.
func (c *Catalog) Refresh(ctx context.Context, raw string) (Descriptor, error) {
	ref, err := ParseRef(raw)
	if err != nil {
		return Descriptor{}, err
	}
	if err := c.resolver.Client().Invalidate(ctx, ref); err != nil {
		return Descriptor{}, err
	}
	return c.resolver.Resolve(ctx, raw)
}
