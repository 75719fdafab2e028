// Package jsonld resolves JSON-LD contexts referenced by manifests.
//
// The standard IIIF contexts are served from embedded copies; anything else is
// fetched over HTTP with an explicit timeout and cached for the life of the Loader.
package jsonld

import (
	"embed"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/piprate/json-gold/ld"
)

// DefaultTimeout bounds a single remote context fetch.
const DefaultTimeout = 60 * time.Second

// Standard context URIs served from the embedded copies.
const (
	Presentation2ContextURL = "http://iiif.io/api/presentation/2/context.json"
	SharedCanvasContextURL  = "http://www.shared-canvas.org/ns/context.json"
)

//go:embed contexts/*.json
var contextFiles embed.FS

var embeddedContexts = map[string]string{
	Presentation2ContextURL: "contexts/presentation2.json",
	SharedCanvasContextURL:  "contexts/sharedcanvas.json",
}

// Options configures a Loader.
type Options struct {
	Timeout time.Duration
	// Client overrides the HTTP client; Timeout is ignored when set.
	Client *http.Client
}

// Loader is an ld.DocumentLoader with an in-memory cache. It is safe for concurrent use.
type Loader struct {
	next  ld.DocumentLoader
	mu    sync.RWMutex
	cache map[string]*ld.RemoteDocument
}

// NewLoader creates a loader with the embedded contexts preloaded.
func NewLoader(opts Options) (*Loader, error) {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	l := &Loader{
		next:  ld.NewDefaultDocumentLoader(client),
		cache: make(map[string]*ld.RemoteDocument),
	}

	for u, name := range embeddedContexts {
		data, err := contextFiles.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded context %s: %w", name, err)
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse embedded context %s: %w", name, err)
		}
		l.cache[u] = &ld.RemoteDocument{DocumentURL: u, Document: doc}
	}
	return l, nil
}

// LoadDocument implements ld.DocumentLoader.
func (l *Loader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	l.mu.RLock()
	doc, ok := l.cache[u]
	l.mu.RUnlock()
	if ok {
		return doc, nil
	}

	doc, err := l.next.LoadDocument(u)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[u] = doc
	l.mu.Unlock()
	return doc, nil
}

// Cached reports whether u is already held by the loader.
func (l *Loader) Cached(u string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.cache[u]
	return ok
}

// Resolver expands documents with a Loader. It satisfies manifest.ContextResolver.
type Resolver struct {
	loader *Loader
	proc   *ld.JsonLdProcessor
}

// NewResolver creates a resolver backed by loader.
func NewResolver(loader *Loader) *Resolver {
	return &Resolver{
		loader: loader,
		proc:   ld.NewJsonLdProcessor(),
	}
}

// Expand runs JSON-LD expansion over doc, failing if any context cannot be loaded or processed.
func (r *Resolver) Expand(doc any) error {
	opts := ld.NewJsonLdOptions("")
	opts.DocumentLoader = r.loader
	if _, err := r.proc.Expand(doc, opts); err != nil {
		return fmt.Errorf("JSON-LD expansion failed: %w", err)
	}
	return nil
}
