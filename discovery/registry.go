package discovery

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"
)

//go:embed manifest.yaml
var builtinManifest []byte

// DiscoveryError is returned when a namespace cannot be scanned or a
// capability cannot be resolved. Discovery never returns a partial list
// together with a DiscoveryError.
type DiscoveryError struct {
	Namespace  string
	Capability string
	Err        error
}

func (e *DiscoveryError) Error() string {
	switch {
	case e.Namespace == "" && e.Capability == "":
		return fmt.Sprintf("discovery error: %v", e.Err)
	default:
		return fmt.Sprintf("discovery error (namespace %q, capability %q): %v", e.Namespace, e.Capability, e.Err)
	}
}

// Unwrap implements the errors.Unwrap interface
func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// IsDiscoveryError checks if the error is or wraps a DiscoveryError
func IsDiscoveryError(err error) bool {
	var discErr *DiscoveryError
	return err != nil && errors.As(err, &discErr)
}

var (
	ErrUnknownNamespace  = errors.New("namespace not found")
	ErrUnknownCapability = errors.New("capability type not found")
)

// entry is a registered type
type entry struct {
	name    string
	kind    types.ClassKind
	extends []string
	class   types.Class
}

// Registry is an explicit capability registry: it knows a fixed set of
// types and their supertypes and answers which concrete types implement a
// capability inside a namespace
type Registry struct {
	entries  map[string]*entry
	packages map[string]struct{}
	mu       sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log log.Logger
	// ManifestFile is an optional manifest merged over the built-in one;
	// entries replace built-in entries with the same name
	ManifestFile string
	// SkipBuiltin disables the built-in manifest
	SkipBuiltin bool
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	r := &Registry{
		entries:  make(map[string]*entry),
		packages: make(map[string]struct{}),
	}

	var manifests []*types.ManifestConfig
	if !cfg.SkipBuiltin {
		m, err := parseManifest(builtinManifest)
		if err != nil {
			return nil, &DiscoveryError{Err: fmt.Errorf("built-in manifest: %w", err)}
		}
		manifests = append(manifests, m)
	}
	if cfg.ManifestFile != "" {
		m, err := loadManifest(cfg.ManifestFile)
		if err != nil {
			return nil, &DiscoveryError{Err: err}
		}
		manifests = append(manifests, m)
	}

	if err := r.load(manifests...); err != nil {
		return nil, &DiscoveryError{Err: err}
	}

	cfg.Log.Debug("Registry loaded", "len(types)", len(r.entries), "len(packages)", len(r.packages))
	return r, nil
}

// NewRegistryFromManifest creates a registry holding only the given manifest
func NewRegistryFromManifest(lgr log.Logger, manifest *types.ManifestConfig) (*Registry, error) {
	if lgr == nil {
		lgr = log.New()
	}
	r := &Registry{
		entries:  make(map[string]*entry),
		packages: make(map[string]struct{}),
	}
	if err := r.load(manifest); err != nil {
		return nil, &DiscoveryError{Err: err}
	}
	lgr.Debug("Registry loaded", "len(types)", len(r.entries), "len(packages)", len(r.packages))
	return r, nil
}

func (r *Registry) load(manifests ...*types.ManifestConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range manifests {
		seen := make(map[string]bool, len(m.Types))
		for _, tc := range m.Types {
			if tc.Name == "" {
				return errors.New("manifest entry without a name")
			}
			if seen[tc.Name] {
				return fmt.Errorf("type %s is registered twice", tc.Name)
			}
			seen[tc.Name] = true

			kind := tc.Kind
			if kind == "" {
				kind = types.ClassKindClass
			}
			if !kind.IsValid() {
				return fmt.Errorf("type %s has unknown kind %q", tc.Name, tc.Kind)
			}
			r.entries[tc.Name] = &entry{
				name:    tc.Name,
				kind:    kind,
				extends: tc.Extends,
				class:   types.ClassFromName(tc.Name),
			}
		}
	}

	for name, e := range r.entries {
		if err := r.checkCircularInheritance(name, e.extends, make(map[string]bool)); err != nil {
			return err
		}
		addPackage(r.packages, e.class.Package)
	}
	return nil
}

// addPackage records pkg and every enclosing package
func addPackage(packages map[string]struct{}, pkg string) {
	for pkg != "" {
		packages[pkg] = struct{}{}
		i := strings.LastIndex(pkg, ".")
		if i < 0 {
			return
		}
		pkg = pkg[:i]
	}
}

// checkCircularInheritance detects cycles in the supertype graph. Unknown
// supertypes end a branch.
func (r *Registry) checkCircularInheritance(currentID string, extends []string, visited map[string]bool) error {
	if visited[currentID] {
		return fmt.Errorf("circular inheritance detected at type %s", currentID)
	}

	visited[currentID] = true
	defer delete(visited, currentID)

	for _, parentID := range extends {
		parent, exists := r.entries[parentID]
		if !exists {
			continue
		}
		if err := r.checkCircularInheritance(parentID, parent.extends, visited); err != nil {
			return err
		}
	}
	return nil
}

// Discover returns every concrete type under namespace that is a proper
// subtype of capability, sorted by package and name
func (r *Registry) Discover(namespace, capability string) ([]types.Class, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.packages[namespace]; !ok || namespace == "" {
		return nil, &DiscoveryError{Namespace: namespace, Capability: capability, Err: ErrUnknownNamespace}
	}
	if _, ok := r.entries[capability]; !ok {
		return nil, &DiscoveryError{Namespace: namespace, Capability: capability, Err: ErrUnknownCapability}
	}

	classes := make([]types.Class, 0)
	for _, e := range r.entries {
		if !inNamespace(e.class.Package, namespace) {
			continue
		}
		if r.matches(e, capability) {
			classes = append(classes, e.class)
		}
	}
	sortClasses(classes)
	return classes, nil
}

// IsSubtype reports whether name is a concrete proper subtype of capability
func (r *Registry) IsSubtype(name, capability string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return false
	}
	return r.matches(e, capability)
}

// matches is the discovery predicate: concrete, not the capability itself,
// and a subtype of it
func (r *Registry) matches(e *entry, capability string) bool {
	if e.kind != types.ClassKindClass {
		return false
	}
	if e.name == capability {
		return false
	}
	return r.reaches(e, capability, make(map[string]bool))
}

// reaches walks the supertype closure of e. References to types the
// registry does not know are incompatible branches, not errors.
func (r *Registry) reaches(e *entry, target string, visited map[string]bool) bool {
	for _, parentID := range e.extends {
		if parentID == target {
			return true
		}
		if visited[parentID] {
			continue
		}
		visited[parentID] = true
		parent, ok := r.entries[parentID]
		if !ok {
			continue
		}
		if r.reaches(parent, target, visited) {
			return true
		}
	}
	return false
}

// Len returns the number of registered types
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func inNamespace(pkg, namespace string) bool {
	return pkg == namespace || strings.HasPrefix(pkg, namespace+".")
}

func sortClasses(classes []types.Class) {
	sort.Slice(classes, func(i, j int) bool {
		if classes[i].Package != classes[j].Package {
			return classes[i].Package < classes[j].Package
		}
		return classes[i].Name < classes[j].Name
	})
}

// loadManifest loads a manifest from a file
func loadManifest(path string) (*types.ManifestConfig, error) {
	log.Debug("Reading manifest file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest file: %w", err)
	}
	m, err := parseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func parseManifest(data []byte) (*types.ManifestConfig, error) {
	var m types.ManifestConfig
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}
