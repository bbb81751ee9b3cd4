package report

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ethereum-optimism/infra/op-harness/fileutil"
)

// Format is a report serialization
type Format string

const (
	FormatXML  Format = "xml"
	FormatJSON Format = "json"
)

// ParseFormat resolves a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatXML, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown report format %q (want xml or json)", s)
}

// FormatForPath picks the format from a file extension, defaulting to XML
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatXML
}

// Encode writes the report to w
func (r *Report) Encode(w io.Writer, format Format) error {
	switch format {
	case FormatXML:
		if _, err := io.WriteString(w, xml.Header); err != nil {
			return err
		}
		enc := xml.NewEncoder(w)
		enc.Indent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		_, err := io.WriteString(w, "\n")
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// WriteFile writes the report to path. The file is replaced only once the
// whole report has been written.
func (r *Report) WriteFile(path string, format Format) error {
	return fileutil.WriteAtomic(path, func(w io.Writer) error {
		return r.Encode(w, format)
	})
}
