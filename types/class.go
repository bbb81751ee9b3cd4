// Package types contains shared types used across the analysis harness
package types

import "strings"

// ClassKind represents the kind of a registered type
type ClassKind string

// String implements the Stringer interface for ClassKind
func (k ClassKind) String() string {
	return string(k)
}

// ClassKind enum values
const (
	ClassKindClass     ClassKind = "class"
	ClassKindAbstract  ClassKind = "abstract"
	ClassKindInterface ClassKind = "interface"
)

// IsValid reports whether k is one of the known kinds
func (k ClassKind) IsValid() bool {
	switch k {
	case ClassKindClass, ClassKindAbstract, ClassKindInterface:
		return true
	}
	return false
}

// Class describes a discovered type by its simple name and enclosing package.
// The field names are part of the discovery output format.
type Class struct {
	Name    string `json:"Name" yaml:"name"`
	Package string `json:"Package" yaml:"package"`
}

// FullName returns the fully qualified name of the class
func (c Class) FullName() string {
	if c.Package == "" {
		return c.Name
	}
	return c.Package + "." + c.Name
}

// ClassFromName splits a fully qualified name into package and simple name
func ClassFromName(fullName string) Class {
	i := strings.LastIndex(fullName, ".")
	if i < 0 {
		return Class{Name: fullName}
	}
	return Class{Name: fullName[i+1:], Package: fullName[:i]}
}

// ManifestConfig represents a plugin manifest: the set of types a registry
// can reason about
type ManifestConfig struct {
	Types []TypeConfig `yaml:"types"`
}

// TypeConfig represents one registered type and its direct supertypes
type TypeConfig struct {
	Name    string    `yaml:"name"`
	Kind    ClassKind `yaml:"kind"`
	Extends []string  `yaml:"extends,omitempty"`
}
