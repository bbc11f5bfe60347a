// SPDX-License-Identifier: GPL-3.0-or-later

package orbitalis

import "slices"

// Constraint is a core-side gating and shape specification for one required
// [Operation]. It is immutable except when derived in flight as a residual
// [Need].
//
// Validity, enforced by [NewConstraint] (panics on violation): 0 ≤ Minimum
// ≤ Maximum (when Maximum is set); len(Mandatory) ≤ Maximum (when Maximum
// is set); at least one Input and one Output schema.
type Constraint struct {
	// Minimum is the minimum number of connections required for this
	// operation.
	Minimum int

	// Maximum, if non-nil, caps the number of connections for this
	// operation.
	Maximum *int

	// Mandatory lists remoteIds that must be connected for this
	// operation for the requirement to be satisfied.
	Mandatory []string

	// Inputs lists the input SchemaSpecs this core will accept from any
	// plugin for this operation.
	Inputs []SchemaSpec

	// Outputs lists the output SchemaSpecs this core will accept.
	Outputs []SchemaSpec

	// Allowlist and Blocklist gate which plugin ids may bind this
	// operation; mutually exclusive.
	Allowlist []string
	Blocklist []string
}

// NewConstraint constructs a [Constraint], validating its fields. Panics
// (programmer error) on an invalid combination of fields.
func NewConstraint(minimum int, maximum *int, mandatory []string, inputs, outputs []SchemaSpec, allowlist, blocklist []string) Constraint {
	c := Constraint{
		Minimum:   minimum,
		Mandatory: slices.Clone(mandatory),
		Inputs:    slices.Clone(inputs),
		Outputs:   slices.Clone(outputs),
		Allowlist: slices.Clone(allowlist),
		Blocklist: slices.Clone(blocklist),
	}
	if maximum != nil {
		m := *maximum
		c.Maximum = &m
	}
	c.mustBeValid()
	return c
}

func (c Constraint) mustBeValid() {
	if c.Minimum < 0 {
		panic(ErrInvalidConstraint)
	}
	if c.Maximum != nil {
		if *c.Maximum < c.Minimum {
			panic(ErrInvalidConstraint)
		}
		if len(c.Mandatory) > *c.Maximum {
			panic(ErrInvalidConstraint)
		}
	}
	if len(c.Allowlist) > 0 && len(c.Blocklist) > 0 {
		panic(ErrInvalidConstraint)
	}
	if len(c.Inputs) == 0 || len(c.Outputs) == 0 {
		panic(ErrInvalidConstraint)
	}
}

// isCompatible reports whether remoteID passes the allow/block list.
func (c Constraint) isCompatible(remoteID string) bool {
	if slices.Contains(c.Blocklist, remoteID) {
		return false
	}
	if len(c.Allowlist) == 0 {
		return true
	}
	return slices.Contains(c.Allowlist, remoteID)
}

// matchesAny reports whether candidate is compatible with at least one spec
// in specs, using caller-permissive Undefined semantics.
func matchesAny(candidate SchemaSpec, specs []SchemaSpec) bool {
	for _, spec := range specs {
		if candidate.IsCompatible(spec, CompatibilityOptions{UndefinedIsCompatible: true}) {
			return true
		}
	}
	return false
}

// ConstraintCompatible reports whether a plugin's operation identified by
// remoteID, with the given input/output SchemaSpecs, is constraint-
// compatible with c: identifier passes allow/block, input is compatible
// with some listed input, output with some listed output.
func (c Constraint) ConstraintCompatible(remoteID string, input, output SchemaSpec) bool {
	if !c.isCompatible(remoteID) {
		return false
	}
	return matchesAny(input, c.Inputs) && matchesAny(output, c.Outputs)
}

// Need is the residual requirement broadcast in a Discover message: the
// Constraint narrowed by connections already established.
type Need struct {
	Constraint
}

// worthDiscovering reports whether a Need is still worth advertising:
// minimum' > 0 ∨ |mandatory'| > 0 ∨ (maximum' is None ∨ maximum' > 0).
func (n Need) worthDiscovering() bool {
	if n.Minimum > 0 {
		return true
	}
	if len(n.Mandatory) > 0 {
		return true
	}
	return n.Maximum == nil || *n.Maximum > 0
}

// deriveNeed subtracts the remoteIds already connected for this operation
// from c, producing the residual Need:
//
//	minimum' = max(0, minimum - |connections|)
//	maximum' = max(0, maximum - |connections|)
//	mandatory' = mandatory \ connected
func deriveNeed(c Constraint, connectedRemoteIDs []string) Need {
	count := len(connectedRemoteIDs)
	n := Need{Constraint: c}
	n.Minimum = max(0, c.Minimum-count)
	if c.Maximum != nil {
		m := max(0, *c.Maximum-count)
		n.Maximum = &m
	}
	n.Mandatory = subtractStrings(c.Mandatory, connectedRemoteIDs)
	return n
}

func subtractStrings(from, remove []string) []string {
	if len(from) == 0 {
		return nil
	}
	out := make([]string, 0, len(from))
	for _, s := range from {
		if !slices.Contains(remove, s) {
			out = append(out, s)
		}
	}
	return out
}
