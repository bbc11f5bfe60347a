// SPDX-License-Identifier: GPL-3.0-or-later

package orbitalis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(n int) *int { return &n }

func TestNewConstraintValid(t *testing.T) {
	c := NewConstraint(1, intPtr(3), []string{"plugin-a"}, []SchemaSpec{UndefinedSchema()}, []SchemaSpec{UndefinedSchema()}, nil, nil)
	assert.Equal(t, 1, c.Minimum)
	assert.Equal(t, 3, *c.Maximum)
}

func TestNewConstraintPanicsOnInvalidMinimum(t *testing.T) {
	assert.Panics(t, func() {
		NewConstraint(-1, nil, nil, []SchemaSpec{UndefinedSchema()}, []SchemaSpec{UndefinedSchema()}, nil, nil)
	})
}

func TestNewConstraintPanicsOnMaxBelowMin(t *testing.T) {
	assert.Panics(t, func() {
		NewConstraint(3, intPtr(1), nil, []SchemaSpec{UndefinedSchema()}, []SchemaSpec{UndefinedSchema()}, nil, nil)
	})
}

func TestNewConstraintPanicsOnMandatoryExceedsMax(t *testing.T) {
	assert.Panics(t, func() {
		NewConstraint(0, intPtr(1), []string{"a", "b"}, []SchemaSpec{UndefinedSchema()}, []SchemaSpec{UndefinedSchema()}, nil, nil)
	})
}

func TestNewConstraintPanicsOnBothAllowAndBlock(t *testing.T) {
	assert.Panics(t, func() {
		NewConstraint(0, nil, nil, []SchemaSpec{UndefinedSchema()}, []SchemaSpec{UndefinedSchema()}, []string{"a"}, []string{"b"})
	})
}

func TestNewConstraintPanicsOnEmptySchemas(t *testing.T) {
	assert.Panics(t, func() {
		NewConstraint(0, nil, nil, nil, []SchemaSpec{UndefinedSchema()}, nil, nil)
	})
}

func TestConstraintCompatible(t *testing.T) {
	c := NewConstraint(0, nil, nil,
		[]SchemaSpec{ExplicitSchema(`"int64"`)},
		[]SchemaSpec{ExplicitSchema(`"string"`)},
		[]string{"plugin-a"}, nil)

	assert.True(t, c.ConstraintCompatible("plugin-a", ExplicitSchema(`"int64"`), ExplicitSchema(`"string"`)))
	assert.False(t, c.ConstraintCompatible("plugin-b", ExplicitSchema(`"int64"`), ExplicitSchema(`"string"`)))
	assert.False(t, c.ConstraintCompatible("plugin-a", ExplicitSchema(`"float64"`), ExplicitSchema(`"string"`)))
}

func TestDeriveNeed(t *testing.T) {
	c := NewConstraint(2, intPtr(4), []string{"plugin-a", "plugin-b"},
		[]SchemaSpec{UndefinedSchema()}, []SchemaSpec{UndefinedSchema()}, nil, nil)

	need := deriveNeed(c, []string{"plugin-a"})
	assert.Equal(t, 1, need.Minimum)
	assert.Equal(t, 3, *need.Maximum)
	assert.Equal(t, []string{"plugin-b"}, need.Mandatory)
	assert.True(t, need.worthDiscovering())
}

func TestDeriveNeedFullySatisfiedNotWorthDiscovering(t *testing.T) {
	c := NewConstraint(1, intPtr(1), []string{"plugin-a"},
		[]SchemaSpec{UndefinedSchema()}, []SchemaSpec{UndefinedSchema()}, nil, nil)

	need := deriveNeed(c, []string{"plugin-a"})
	assert.False(t, need.worthDiscovering())
}

func TestDeriveNeedUnboundedMaximumAlwaysWorthDiscovering(t *testing.T) {
	c := NewConstraint(0, nil, nil,
		[]SchemaSpec{UndefinedSchema()}, []SchemaSpec{UndefinedSchema()}, nil, nil)

	need := deriveNeed(c, nil)
	assert.True(t, need.worthDiscovering())
}
