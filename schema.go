// SPDX-License-Identifier: GPL-3.0-or-later

package orbitalis

import (
	"encoding/json"
	"slices"
)

// schemaKind tags the three states a [SchemaSpec] can be in.
type schemaKind int

const (
	// schemaUndefined means "any schema accepted".
	schemaUndefined schemaKind = iota
	// schemaEmpty means "no payload expected".
	schemaEmpty
	// schemaExplicit means a non-empty ordered list of schema fingerprints.
	schemaExplicit
)

// SchemaSpec is a three-state descriptor of accepted payload shapes.
// Construct one with [UndefinedSchema], [EmptySchema], or [ExplicitSchema].
type SchemaSpec struct {
	kind         schemaKind
	fingerprints []string
}

// UndefinedSchema returns the SchemaSpec meaning "any schema accepted".
// Use only when the participant is deliberately permissive.
func UndefinedSchema() SchemaSpec {
	return SchemaSpec{kind: schemaUndefined}
}

// EmptySchema returns the SchemaSpec meaning "no payload expected". It
// matches only empty events.
func EmptySchema() SchemaSpec {
	return SchemaSpec{kind: schemaEmpty}
}

// ExplicitSchema returns the SchemaSpec for a non-empty ordered list of
// schema fingerprints. Panics if fingerprints is empty: an Explicit
// descriptor with no fingerprints is a programmer error, not a valid
// "nothing matches" descriptor (use [EmptySchema] or [UndefinedSchema]
// for that).
func ExplicitSchema(fingerprints ...string) SchemaSpec {
	if len(fingerprints) == 0 {
		panic("orbitalis: ExplicitSchema requires at least one fingerprint")
	}
	cp := slices.Clone(fingerprints)
	return SchemaSpec{kind: schemaExplicit, fingerprints: cp}
}

// IsUndefined reports whether s is the Undefined variant.
func (s SchemaSpec) IsUndefined() bool { return s.kind == schemaUndefined }

// IsEmpty reports whether s is the Empty variant: events genuinely never
// carry a payload, as opposed to Undefined, where events occur but their
// shape is unconstrained.
func (s SchemaSpec) IsEmpty() bool { return s.kind == schemaEmpty }

// IsExplicit reports whether s is the Explicit variant.
func (s SchemaSpec) IsExplicit() bool { return s.kind == schemaExplicit }

// SupportEmpty reports whether s matches an empty payload: true for the
// Empty variant, and for Undefined (since Undefined accepts anything).
func (s SchemaSpec) SupportEmpty() bool {
	return s.kind == schemaEmpty || s.kind == schemaUndefined
}

// Fingerprints returns the explicit fingerprint list, or nil if s is not
// Explicit. The returned slice must not be mutated.
func (s SchemaSpec) Fingerprints() []string {
	if s.kind != schemaExplicit {
		return nil
	}
	return s.fingerprints
}

// CompatibilityOptions tunes [SchemaSpec.IsCompatible].
type CompatibilityOptions struct {
	// UndefinedIsCompatible, when true, makes Undefined compatible with
	// anything (including Empty and Explicit specs it is compared
	// against). When false, Undefined is only compatible with Undefined.
	UndefinedIsCompatible bool

	// Strict additionally requires set equality for two Explicit specs,
	// rather than a non-empty intersection.
	Strict bool
}

// IsCompatible reports whether s and other are compatible under opts:
// both Undefined, or both Empty, or both Explicit with the fingerprint
// sets intersecting (or, under Strict, equal).
func (s SchemaSpec) IsCompatible(other SchemaSpec, opts CompatibilityOptions) bool {
	if s.kind == schemaUndefined || other.kind == schemaUndefined {
		if s.kind == schemaUndefined && other.kind == schemaUndefined {
			return true
		}
		return opts.UndefinedIsCompatible
	}
	if s.kind == schemaEmpty && other.kind == schemaEmpty {
		return true
	}
	if s.kind != schemaExplicit || other.kind != schemaExplicit {
		return false
	}
	if opts.Strict {
		return sameFingerprintSet(s.fingerprints, other.fingerprints)
	}
	return fingerprintSetsIntersect(s.fingerprints, other.fingerprints)
}

// IsCompatibleWithSchema reports whether a single concrete fingerprint is
// accepted by s: true if fingerprint appears in an Explicit list, or if s
// is Undefined and undefinedIsCompatible is true.
func (s SchemaSpec) IsCompatibleWithSchema(fingerprint string, undefinedIsCompatible bool) bool {
	switch s.kind {
	case schemaUndefined:
		return undefinedIsCompatible
	case schemaExplicit:
		return slices.Contains(s.fingerprints, fingerprint)
	default: // schemaEmpty
		return false
	}
}

// canonicalFingerprint normalizes a schema fingerprint for comparison:
// structurally equal over parsed schema JSON if both sides parse,
// otherwise byte-equal. Re-marshaling after an unmarshal into `any`
// produces a canonical form (Go's encoding/json always sorts object keys),
// so two differently-formatted encodings of the same schema compare equal.
func canonicalFingerprint(s string) string {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	canon, err := json.Marshal(v)
	if err != nil {
		return s
	}
	return string(canon)
}

func fingerprintSetsIntersect(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, f := range a {
		set[canonicalFingerprint(f)] = struct{}{}
	}
	for _, f := range b {
		if _, ok := set[canonicalFingerprint(f)]; ok {
			return true
		}
	}
	return false
}

func sameFingerprintSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, f := range a {
		set[canonicalFingerprint(f)] = struct{}{}
	}
	for _, f := range b {
		if _, ok := set[canonicalFingerprint(f)]; !ok {
			return false
		}
	}
	return true
}
