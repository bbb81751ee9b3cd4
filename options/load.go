package options

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/magiconair/properties"
	"gopkg.in/yaml.v3"
)

// ConfigError is returned when an option source cannot be read or parsed,
// or when it sets keys the caller may not set
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config error: %v", e.Err)
	}
	return fmt.Sprintf("config error: %s: %v", e.Path, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError checks if the error is or wraps a ConfigError
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return err != nil && errors.As(err, &cfgErr)
}

// Load reads an option file. The format is chosen by extension:
// .jpf and .properties use Java properties syntax, .yaml/.yml a flat YAML
// mapping and .toml a TOML document. List values are joined with commas.
func Load(path string) (Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	var layer Layer
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		layer, err = parseYAML(data)
	case ".toml":
		layer, err = parseTOML(data)
	default:
		layer, err = parseProperties(data)
	}
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return layer, nil
}

func parseProperties(data []byte) (Layer, error) {
	// ${...} references are resolved by the engine against its own site
	// configuration, so they are passed through untouched
	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := loader.LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parsing properties: %w", err)
	}
	keys := p.Keys()
	layer := make(Layer, 0, len(keys))
	for _, k := range keys {
		v, _ := p.Get(k)
		layer = append(layer, Option{Key: k, Value: v})
	}
	return layer, nil
}

func parseYAML(data []byte) (Layer, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	if len(doc.Content) == 0 {
		return Layer{}, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parsing yaml: expected a mapping at line %d", root.Line)
	}

	layer := make(Layer, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		switch val.Kind {
		case yaml.ScalarNode:
			layer = append(layer, Option{Key: key.Value, Value: val.Value})
		case yaml.SequenceNode:
			items := make([]string, 0, len(val.Content))
			for _, item := range val.Content {
				if item.Kind != yaml.ScalarNode {
					return nil, fmt.Errorf("parsing yaml: key %q: nested values are not supported (line %d)", key.Value, item.Line)
				}
				items = append(items, item.Value)
			}
			layer = append(layer, Option{Key: key.Value, Value: strings.Join(items, ",")})
		default:
			return nil, fmt.Errorf("parsing yaml: key %q: nested values are not supported (line %d)", key.Value, val.Line)
		}
	}
	return layer, nil
}

func parseTOML(data []byte) (Layer, error) {
	var doc map[string]interface{}
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, fmt.Errorf("parsing toml: %w", err)
	}

	leaves := make(map[string]string)
	flattenTOML("", doc, leaves)

	// md.Keys preserves document order, including dotted keys
	layer := make(Layer, 0, len(leaves))
	for _, k := range md.Keys() {
		key := strings.Join(k, ".")
		if v, ok := leaves[key]; ok {
			layer = append(layer, Option{Key: key, Value: v})
			delete(leaves, key)
		}
	}
	rest := make([]string, 0, len(leaves))
	for k := range leaves {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	for _, k := range rest {
		layer = append(layer, Option{Key: k, Value: leaves[k]})
	}
	return layer, nil
}

func flattenTOML(prefix string, table map[string]interface{}, out map[string]string) {
	for k, v := range table {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			flattenTOML(key, val, out)
		case []interface{}:
			items := make([]string, 0, len(val))
			for _, item := range val {
				items = append(items, fmt.Sprint(item))
			}
			out[key] = strings.Join(items, ",")
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}
