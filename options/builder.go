package options

import "path/filepath"

// Well-known keys of the engine configuration
const (
	KeyTarget      = "target"
	KeyReportFile  = "report.xml.file"
	KeyClasspath   = "classpath"
	KeyListener    = "listener"
	KeySearchClass = "search.class"
	KeyDepthLimit  = "search.depth_limit"
	KeyPublisher   = "report.publisher"
	KeyXMLClass    = "report.xml.class"
)

// DefaultPublisherClass is the engine's stock XML publisher. Its report is
// the feed ParseFeed reads.
const DefaultPublisherClass = "gov.nasa.jpf.report.XMLPublisher"

// DefaultSearchClass is the search strategy used unless one is configured
const DefaultSearchClass = "gov.nasa.jpf.search.DFSearch"

// ClasspathSeparator joins classpath entries
var ClasspathSeparator = string(filepath.ListSeparator)

// Defaults returns the built-in option table
func Defaults() Layer {
	return Layer{
		{KeyPublisher, "xml"},
		{KeyXMLClass, DefaultPublisherClass},
		{"report.xml.start", "jpf,sut"},
		{"report.xml.transition", ""},
		{"report.xml.constraint", "constraint,snapshot"},
		{"report.xml.property_violation", "error,snapshot"},
		{"report.xml.show_steps", "true"},
		{"report.xml.show_method", "true"},
		{"report.xml.show_code", "true"},
		{"report.xml.finished", "result,statistics"},
		{KeySearchClass, DefaultSearchClass},
		{KeyDepthLimit, "1000"},
	}
}

// Runtime holds the options decided by the caller for one run. They always
// win over file and default options.
type Runtime struct {
	Target         string // fully qualified name of the class under analysis
	ReportFile     string // where the engine writes its feed
	TargetLocation string // prepended to the classpath
	Overrides      Layer
}

// layer resolves the runtime options against the base classpath found in
// the lower layers
func (r Runtime) layer(baseClasspath string, hasBase bool) Layer {
	layer := make(Layer, 0, 3+len(r.Overrides))
	if r.Target != "" {
		layer = append(layer, Option{KeyTarget, r.Target})
	}
	if r.ReportFile != "" {
		layer = append(layer, Option{KeyReportFile, r.ReportFile})
	}
	if r.TargetLocation != "" {
		cp := r.TargetLocation
		if hasBase && baseClasspath != "" {
			cp = r.TargetLocation + ClasspathSeparator + baseClasspath
		}
		layer = append(layer, Option{KeyClasspath, cp})
	}
	return append(layer, r.Overrides...)
}

// Build merges the three layers into a Configuration. Keys are taken from
// runtime first, then file, then defaults; a key already set is never
// overwritten and nothing is removed.
func Build(defaults, file Layer, runtime Runtime) *Configuration {
	base, hasBase := file.Lookup(KeyClasspath)
	if !hasBase {
		base, hasBase = defaults.Lookup(KeyClasspath)
	}

	rt := runtime.layer(base, hasBase)
	cfg := newConfiguration(len(rt) + len(file) + len(defaults))
	for _, layer := range []Layer{rt, file, defaults} {
		for _, o := range layer {
			cfg.fill(o.Key, o.Value)
		}
	}
	return cfg
}
