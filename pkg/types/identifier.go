// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// IdentKind classifies the syntactic context in which an identifier occurs
// within a serialized Vernacular AST. The order matters: kinds at or below
// SerQualid form the qualid family, which shares one serialized shape.
type IdentKind int

const (
	// KindCPatAtom is a qualid occurring as an atomic pattern.
	KindCPatAtom IdentKind = iota

	// KindCRef is a qualid occurring as a term-level reference.
	KindCRef

	// KindSerQualid is a bare serialized qualid with no recognized context.
	KindSerQualid

	// KindLident is a located plain identifier.
	KindLident

	// KindLname is a located binder name.
	KindLname
)

// InQualidFamily reports whether the kind serializes as a Ser_Qualid node.
func (k IdentKind) InQualidFamily() bool {
	return k <= KindSerQualid
}

func (k IdentKind) String() string {
	switch k {
	case KindCPatAtom:
		return "CPatAtom"
	case KindCRef:
		return "CRef"
	case KindSerQualid:
		return "Ser_Qualid"
	case KindLident:
		return "lident"
	case KindLname:
		return "lname"
	}
	return fmt.Sprintf("IdentKind(%d)", int(k))
}

// ParseIdentKind is the inverse of IdentKind.String.
func ParseIdentKind(s string) (IdentKind, error) {
	switch s {
	case "CPatAtom":
		return KindCPatAtom, nil
	case "CRef":
		return KindCRef, nil
	case "Ser_Qualid":
		return KindSerQualid, nil
	case "lident":
		return KindLident, nil
	case "lname":
		return KindLname, nil
	}
	return 0, fmt.Errorf("unknown identifier kind %q", s)
}

// MarshalYAML encodes the kind as its name.
func (k IdentKind) MarshalYAML() (interface{}, error) {
	return k.String(), nil
}

// UnmarshalYAML decodes the kind from its name.
func (k *IdentKind) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseIdentKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Identifier is a fully qualified identifier together with the syntactic
// context it was found in.
type Identifier struct {
	// Kind is the syntactic context of the occurrence.
	Kind IdentKind `json:"kind" yaml:"kind"`

	// Name is the fully qualified name, components joined by dots.
	Name string `json:"name" yaml:"name"`
}

func (i Identifier) String() string {
	return fmt.Sprintf("%s:%s", i.Kind, i.Name)
}
