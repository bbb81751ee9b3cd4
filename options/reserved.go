package options

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

type empty struct{}

// reserved are keys the harness sets for every run; option files may not
// set them. Everything else in a file, classpath and extensions included,
// is taken as the base configuration of the run.
var reserved = map[string]empty{
	KeyTarget:     {},
	KeyReportFile: {},
}

// Allowed checks whether an option file may set key
func Allowed(key string) bool {
	_, ok := reserved[key]
	return !ok
}

// CheckAllowed returns a ConfigError naming every reserved key set in layer
func CheckAllowed(layer Layer) error {
	var denied []string
	for _, o := range layer {
		if !Allowed(o.Key) {
			denied = append(denied, o.Key)
		}
	}
	if len(denied) == 0 {
		return nil
	}
	sort.Strings(denied)
	return &ConfigError{Err: fmt.Errorf("reserved keys may not be set: %s", strings.Join(denied, ", "))}
}

// Render writes the configuration as "key = value" lines in resolution
// order, the format the engine reads its configuration files in
func Render(cfg *Configuration) []byte {
	buf := new(bytes.Buffer)
	cfg.Each(func(key, value string) {
		fmt.Fprintf(buf, "%s = %s\n", escapeKey(key), escapeValue(value))
	})
	return buf.Bytes()
}

var keyEscaper = strings.NewReplacer(
	`\`, `\\`,
	" ", `\ `,
	":", `\:`,
	"=", `\=`,
)

var valueEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func escapeKey(k string) string {
	return keyEscaper.Replace(k)
}

func escapeValue(v string) string {
	return valueEscaper.Replace(v)
}
