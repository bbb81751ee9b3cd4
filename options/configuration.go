// Package options builds the resolved key/value configuration handed to the
// analysis engine.
//
// A configuration is assembled from three layers: the built-in defaults, an
// option file supplied by the caller, and the runtime options of the current
// run. Higher layers win; lower layers only fill keys that are still unset.
package options

// Option is a single key/value pair
type Option struct {
	Key   string
	Value string
}

// Layer is an ordered list of options. Later duplicates of a key are
// ignored when the layer is merged.
type Layer []Option

// Lookup returns the first value set for key in the layer
func (l Layer) Lookup(key string) (string, bool) {
	for _, o := range l {
		if o.Key == key {
			return o.Value, true
		}
	}
	return "", false
}

// LayerFromMap creates a layer from a map using the given key order. Keys
// missing from the order are not included.
func LayerFromMap(m map[string]string, order []string) Layer {
	layer := make(Layer, 0, len(order))
	for _, k := range order {
		if v, ok := m[k]; ok {
			layer = append(layer, Option{Key: k, Value: v})
		}
	}
	return layer
}

// Configuration is the resolved, ordered mapping of option keys to values.
// It has no exported mutators: once built it is read-only.
type Configuration struct {
	keys   []string
	values map[string]string
}

func newConfiguration(capacity int) *Configuration {
	return &Configuration{
		keys:   make([]string, 0, capacity),
		values: make(map[string]string, capacity),
	}
}

// fill sets key only if it is not already present
func (c *Configuration) fill(key, value string) bool {
	if _, ok := c.values[key]; ok {
		return false
	}
	c.keys = append(c.keys, key)
	c.values[key] = value
	return true
}

// Get returns the value for key, or "" if unset
func (c *Configuration) Get(key string) string {
	return c.values[key]
}

// Lookup returns the value for key and whether it was set
func (c *Configuration) Lookup(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Keys returns the keys in resolution order
func (c *Configuration) Keys() []string {
	keys := make([]string, len(c.keys))
	copy(keys, c.keys)
	return keys
}

// Len returns the number of keys
func (c *Configuration) Len() int {
	return len(c.keys)
}

// Map returns a copy of the configuration as a map
func (c *Configuration) Map() map[string]string {
	m := make(map[string]string, len(c.values))
	for k, v := range c.values {
		m[k] = v
	}
	return m
}

// Each calls fn for every option in resolution order
func (c *Configuration) Each(fn func(key, value string)) {
	for _, k := range c.keys {
		fn(k, c.values[k])
	}
}
