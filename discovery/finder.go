package discovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Kind names a discoverable extension point of the engine
type Kind struct {
	Name       string
	Namespace  string
	Capability string
}

// CacheFile is the file name a kind is cached under
func (k Kind) CacheFile() string {
	return k.Name + ".json"
}

var (
	KindListeners = Kind{Name: "listeners", Namespace: "gov.nasa.jpf.listener", Capability: "gov.nasa.jpf.JPFListener"}
	KindSearches  = Kind{Name: "searches", Namespace: "gov.nasa.jpf.search", Capability: "gov.nasa.jpf.search.Search"}
)

var kinds = map[string]Kind{
	KindListeners.Name: KindListeners,
	KindSearches.Name:  KindSearches,
}

// ErrUnknownKind is returned for kind names other than listeners and searches
var ErrUnknownKind = errors.New("unknown discovery kind")

// LookupKind resolves a kind by name
func LookupKind(name string) (Kind, error) {
	k, ok := kinds[name]
	if !ok {
		return Kind{}, fmt.Errorf("%w %q (want one of %v)", ErrUnknownKind, name, KindNames())
	}
	return k, nil
}

// KindNames lists the known kind names, sorted
func KindNames() []string {
	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type cacheKey struct {
	namespace  string
	capability string
}

// Finder answers discovery queries against a Registry, memoizing results
// in memory and optionally in a cache directory
type Finder struct {
	registry *Registry
	cache    *lru.Cache[cacheKey, []types.Class]
	cacheDir string
	log      log.Logger
	tracer   trace.Tracer
}

// FinderConfig contains finder configuration
type FinderConfig struct {
	Registry  *Registry
	Log       log.Logger
	CacheSize int
	// CacheDir holds <kind>.json files; empty disables the file cache
	CacheDir string
}

const defaultCacheSize = 64

// NewFinder creates a new finder
func NewFinder(cfg FinderConfig) (*Finder, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	cache, err := lru.New[cacheKey, []types.Class](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating discovery cache: %w", err)
	}
	return &Finder{
		registry: cfg.Registry,
		cache:    cache,
		cacheDir: cfg.CacheDir,
		log:      cfg.Log,
		tracer:   otel.Tracer("discovery"),
	}, nil
}

// Discover lists concrete implementations of capability under namespace.
// The returned slice is owned by the caller.
func (f *Finder) Discover(ctx context.Context, namespace, capability string) ([]types.Class, error) {
	_, span := f.tracer.Start(ctx, "discover")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", namespace), attribute.String("capability", capability))

	key := cacheKey{namespace: namespace, capability: capability}
	if classes, ok := f.cache.Get(key); ok {
		f.log.Debug("Discovery cache hit", "namespace", namespace, "capability", capability)
		return cloneClasses(classes), nil
	}

	classes, err := f.registry.Discover(namespace, capability)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	f.cache.Add(key, classes)
	f.log.Debug("Discovered classes", "namespace", namespace, "capability", capability, "count", len(classes))
	return cloneClasses(classes), nil
}

// Find discovers the classes of a named kind. With a cache directory, a
// readable <kind>.json is returned as is; otherwise the result is
// discovered and the cache file written.
func (f *Finder) Find(ctx context.Context, kind Kind) ([]types.Class, error) {
	if f.cacheDir == "" {
		return f.Discover(ctx, kind.Namespace, kind.Capability)
	}

	path := filepath.Join(f.cacheDir, kind.CacheFile())
	if data, err := os.ReadFile(path); err == nil {
		classes, err := ReadClasses(data)
		if err == nil {
			f.log.Debug("Using cached discovery result", "kind", kind.Name, "path", path)
			return classes, nil
		}
		f.log.Warn("Ignoring unreadable discovery cache", "path", path, "err", err)
	}

	classes, err := f.Discover(ctx, kind.Namespace, kind.Capability)
	if err != nil {
		return nil, err
	}
	if err := WriteClassesFile(path, classes); err != nil {
		f.log.Warn("Failed to write discovery cache", "path", path, "err", err)
	}
	return classes, nil
}

// Contains reports whether fullName is one of the classes of kind
func (f *Finder) Contains(ctx context.Context, kind Kind, fullName string) (bool, error) {
	classes, err := f.Find(ctx, kind)
	if err != nil {
		return false, err
	}
	for _, c := range classes {
		if c.FullName() == fullName {
			return true, nil
		}
	}
	return false, nil
}

func cloneClasses(classes []types.Class) []types.Class {
	out := make([]types.Class, len(classes))
	copy(out, classes)
	return out
}
