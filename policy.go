// SPDX-License-Identifier: GPL-3.0-or-later

package orbitalis

import "slices"

// Policy is a plugin-side gating specification for one [Operation]: which
// cores may bind it, and how many may do so concurrently.
//
// Allowlist and Blocklist are mutually exclusive; construct with
// [NewPolicy], which enforces this and panics on violation.
type Policy struct {
	allowlist []string
	blocklist []string
	maximum   *int
}

// NewPolicy constructs a [Policy]. Pass nil for allowlist or blocklist to
// omit it; passing both non-nil and non-empty panics. Pass a nil maximum
// to leave concurrent connections uncapped.
func NewPolicy(allowlist, blocklist []string, maximum *int) Policy {
	if len(allowlist) > 0 && len(blocklist) > 0 {
		panic(ErrInvalidPolicy)
	}
	if maximum != nil && *maximum < 0 {
		panic(ErrInvalidPolicy)
	}
	p := Policy{
		allowlist: slices.Clone(allowlist),
		blocklist: slices.Clone(blocklist),
	}
	if maximum != nil {
		m := *maximum
		p.maximum = &m
	}
	return p
}

// IsCompatible reports whether remoteID is allowed by the allow/block
// list: id ∉ blocklist ∧ (allowlist = ∅ ∨ id ∈ allowlist).
func (p Policy) IsCompatible(remoteID string) bool {
	if slices.Contains(p.blocklist, remoteID) {
		return false
	}
	if len(p.allowlist) == 0 {
		return true
	}
	return slices.Contains(p.allowlist, remoteID)
}

// Maximum returns the cap on concurrent connections for this operation
// across all cores, and whether a cap is configured at all.
func (p Policy) Maximum() (int, bool) {
	if p.maximum == nil {
		return 0, false
	}
	return *p.maximum, true
}
