package discovery

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
	"github.com/ethereum-optimism/infra/op-harness/fileutil"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// MarshalClasses renders classes as canonical JSON: an array of
// {"Name","Package"} objects with sorted keys and no insignificant
// whitespace. An empty result is "[]".
func MarshalClasses(classes []types.Class) ([]byte, error) {
	if classes == nil {
		classes = []types.Class{}
	}
	raw, err := json.Marshal(classes)
	if err != nil {
		return nil, fmt.Errorf("marshaling classes: %w", err)
	}
	out, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing classes: %w", err)
	}
	return out, nil
}

// WriteClasses writes the canonical JSON of classes to w
func WriteClasses(w io.Writer, classes []types.Class) error {
	data, err := MarshalClasses(classes)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// WriteClassesFile writes the canonical JSON of classes to path, replacing
// any previous content only once the new content is complete
func WriteClassesFile(path string, classes []types.Class) error {
	data, err := MarshalClasses(classes)
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// ReadClasses parses a JSON array written by WriteClasses
func ReadClasses(data []byte) ([]types.Class, error) {
	var classes []types.Class
	if err := json.Unmarshal(data, &classes); err != nil {
		return nil, fmt.Errorf("parsing classes: %w", err)
	}
	if classes == nil {
		classes = []types.Class{}
	}
	return classes, nil
}
