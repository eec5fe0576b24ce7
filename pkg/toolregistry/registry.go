package toolregistry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/harun/toolgate/internal/observability"
	"github.com/harun/toolgate/pkg/backend"
	"github.com/harun/toolgate/pkg/provider"
)

// DefaultCacheTTL bounds how long a discovered catalog is reused.
const DefaultCacheTTL = 5 * time.Minute

// Catalog is the discovered tool set, grouped by backend.
type Catalog struct {
	Identity  []provider.ToolDecl `json:"identity"`
	Graph     []provider.ToolDecl `json:"graph"`
	FetchedAt time.Time           `json:"fetchedAt"`
}

// All returns every declaration, identity first.
func (c *Catalog) All() []provider.ToolDecl {
	out := make([]provider.ToolDecl, 0, len(c.Identity)+len(c.Graph))
	out = append(out, c.Identity...)
	return append(out, c.Graph...)
}

func (c *Catalog) clone() *Catalog {
	if c == nil {
		return nil
	}
	return &Catalog{
		Identity:  append([]provider.ToolDecl(nil), c.Identity...),
		Graph:     append([]provider.ToolDecl(nil), c.Graph...),
		FetchedAt: c.FetchedAt,
	}
}

// Config configures a Registry.
type Config struct {
	Clients  []backend.Client
	Cache    Cache
	CacheTTL time.Duration
	Logger   zerolog.Logger
}

// Registry discovers tools from the backends and filters them by intent.
type Registry struct {
	clients map[string]backend.Client
	cache   Cache
	ttl     time.Duration
	logger  zerolog.Logger

	group   singleflight.Group
	schemas *schemaCache
}

// New creates a registry over the given backend clients.
func New(cfg Config) *Registry {
	if cfg.Cache == nil {
		cfg.Cache = NewMemoryCache()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}

	clients := make(map[string]backend.Client, len(cfg.Clients))
	for _, c := range cfg.Clients {
		clients[c.Name()] = c
	}

	return &Registry{
		clients: clients,
		cache:   cfg.Cache,
		ttl:     cfg.CacheTTL,
		logger:  cfg.Logger.With().Str("component", "toolregistry").Logger(),
		schemas: newSchemaCache(),
	}
}

// DiscoverTools returns the catalog, from cache while it is fresh. A backend that
// cannot be listed contributes no tools; discovery fails only when every backend fails.
func (r *Registry) DiscoverTools(ctx context.Context) (*Catalog, error) {
	if catalog, ok, err := r.cache.Get(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("Tool catalog cache read failed")
	} else if ok {
		observability.RecordCatalogLookup("cache")
		return catalog, nil
	}

	v, err, _ := r.group.Do("discover", func() (interface{}, error) {
		catalog, err := r.fetch(ctx)
		if err != nil {
			return nil, err
		}
		observability.RecordCatalogLookup("backend")

		if err := r.cache.Set(ctx, catalog, r.ttl); err != nil {
			r.logger.Warn().Err(err).Msg("Tool catalog cache write failed")
		}
		return catalog, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Catalog).clone(), nil
}

// Refresh drops the cached catalog and discovers again.
func (r *Registry) Refresh(ctx context.Context) (*Catalog, error) {
	if err := r.Invalidate(ctx); err != nil {
		return nil, err
	}
	return r.DiscoverTools(ctx)
}

// Invalidate drops the cached catalog and compiled schemas.
func (r *Registry) Invalidate(ctx context.Context) error {
	r.schemas.reset()
	return r.cache.Invalidate(ctx)
}

// ToolsFor returns the declarations matching intent.
func (r *Registry) ToolsFor(ctx context.Context, intent Intent) ([]provider.ToolDecl, error) {
	catalog, err := r.DiscoverTools(ctx)
	if err != nil {
		return nil, err
	}
	return Filter(catalog, intent), nil
}

// Lookup finds a declaration by qualified name.
func (r *Registry) Lookup(ctx context.Context, name string) (provider.ToolDecl, bool) {
	catalog, err := r.DiscoverTools(ctx)
	if err != nil {
		return provider.ToolDecl{}, false
	}
	for _, decl := range catalog.All() {
		if decl.Name == name {
			return decl, true
		}
	}
	return provider.ToolDecl{}, false
}

// Filter selects declarations by intent: read offers identity reads, write offers the
// whole identity backend, analyze offers the graph backend and all offers everything.
func Filter(catalog *Catalog, intent Intent) []provider.ToolDecl {
	switch intent {
	case IntentRead:
		out := make([]provider.ToolDecl, 0, len(catalog.Identity))
		for _, decl := range catalog.Identity {
			if !IsWriteTool(decl.Name) {
				out = append(out, decl)
			}
		}
		return out
	case IntentWrite:
		return append([]provider.ToolDecl(nil), catalog.Identity...)
	case IntentAnalyze:
		return append([]provider.ToolDecl(nil), catalog.Graph...)
	default:
		return catalog.All()
	}
}

func (r *Registry) fetch(ctx context.Context) (*Catalog, error) {
	catalog := &Catalog{FetchedAt: time.Now()}

	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)

	var failures int
	var lastErr error
	for _, name := range names {
		tools, err := r.clients[name].ListTools(ctx)
		if err != nil {
			failures++
			lastErr = err
			r.logger.Warn().Err(err).Str("backend", name).Msg("Tool discovery failed")
			continue
		}

		decls := make([]provider.ToolDecl, 0, len(tools))
		for _, t := range tools {
			if t.Name == "" {
				continue
			}
			decls = append(decls, declare(name, t))
		}

		switch name {
		case backend.Identity:
			catalog.Identity = decls
		case backend.Graph:
			catalog.Graph = decls
		}
		r.logger.Debug().Str("backend", name).Int("tools", len(decls)).Msg("Tools discovered")
	}

	if len(names) > 0 && failures == len(names) {
		return nil, fmt.Errorf("tool discovery failed for every backend: %w", lastErr)
	}
	return catalog, nil
}

// declare builds the model-facing declaration of a backend tool.
func declare(backendName string, t backend.ToolInfo) provider.ToolDecl {
	decl := provider.ToolDecl{
		Name:        QualifiedName(backendName, t.Name),
		Description: t.Description,
		InputSchema: t.InputSchema,
		Backend:     backendName,
	}

	if known, ok := builtinTools[decl.Name]; ok {
		if decl.Description == "" {
			decl.Description = known.Description
		}
		if len(decl.InputSchema) == 0 {
			decl.InputSchema = known.InputSchema
		}
	}
	if decl.Description == "" {
		decl.Description = fmt.Sprintf("%s tool %s", backendName, t.Name)
	}
	if len(decl.InputSchema) == 0 {
		decl.InputSchema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return decl
}

func cypherSchema(description string) map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query":  map[string]interface{}{"type": "string", "description": description},
			"params": map[string]interface{}{"type": "object", "description": "Query parameters"},
		},
		"required": []interface{}{"query"},
	}
}

// builtinTools describes the graph tools, which the graph backend lists by name only.
var builtinTools = map[string]provider.ToolDecl{
	QualifiedName(backend.Graph, backend.ToolGraphSchema): {
		Description: "Get the node labels, relationship types and properties of the graph database",
		InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
	},
	QualifiedName(backend.Graph, backend.ToolGraphRead): {
		Description: "Run a read-only Cypher query (MATCH ... RETURN) against the graph database",
		InputSchema: cypherSchema("Read-only Cypher query"),
	},
	QualifiedName(backend.Graph, backend.ToolGraphWrite): {
		Description: "Run a Cypher query that creates, updates or deletes graph data",
		InputSchema: cypherSchema("Cypher write query"),
	},
}
