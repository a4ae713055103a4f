package gate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lymphocytes = `
gates:
  - name: cells
    type: threshold
    channel: FSC-H
    min: 100
  - name: singlets
    type: interval
    channel: SSC-H
    low: 15
    high: 45
    parent: cells
  - name: cd3pos
    type: expr
    expr: 'ev["CD3"] > 1000.0'
    parent: singlets
    doc: T cells
  - name: debris
    type: interval
    channel: FSC-H
    low: 100
    high: 1000
    region: out
`

func TestParseSet(t *testing.T) {
	s, err := ParseSet([]byte(lymphocytes))
	require.NoError(t, err)
	assert.Equal(t, []string{"cells", "singlets", "cd3pos", "debris"}, s.Names())

	d, ok := s.Definition("cd3pos")
	require.True(t, ok)
	assert.Equal(t, "singlets", d.Parent)
	assert.Equal(t, "T cells", d.Doc)

	chain, err := s.Chain("cd3pos")
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.IsType(t, ThresholdGate{}, chain[0])
	assert.IsType(t, IntervalGate{}, chain[1])
	assert.IsType(t, &ExprGate{}, chain[2])
}

func TestSet_Apply(t *testing.T) {
	s, err := ParseSet([]byte(lymphocytes))
	require.NoError(t, err)
	src := table(t)

	out, err := s.Apply(src, "cd3pos")
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{250, 30, 1500}, {350, 40, 2500}}, out.Matrix())

	counts, err := s.Counts(src)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"cells": 4, "singlets": 3, "cd3pos": 2, "debris": 1}, counts)

	_, err = s.Apply(src, "monocytes")
	assert.True(t, errors.Is(err, ErrUnknownGate))
}

const transformed = `
derived:
  - name: ratio
    expr: 'ev["SSC-H"] / ev["FSC-H"]'
  - name: cd3-asinh
    expr: 'asinh(ev["CD3"], 150.0)'
gates:
  - name: granular
    type: threshold
    channel: ratio
    min: 0.13
  - name: cd3pos
    type: expr
    expr: 'ev["cd3-asinh"] > 2.0'
    parent: granular
`

func TestSet_DerivedChannels(t *testing.T) {
	s, err := ParseSet([]byte(transformed))
	require.NoError(t, err)
	src := table(t)

	derived, err := s.Derive(src)
	require.NoError(t, err)
	assert.Equal(t, []string{"FSC-H", "SSC-H", "CD3", "ratio", "cd3-asinh"}, derived.Names())

	out, err := s.Apply(src, "cd3pos")
	require.NoError(t, err)
	fsc, err := out.Column("FSC-H")
	require.NoError(t, err)
	// ratio: .2 .133 .12 .114 .2; asinh(CD3/150): 0 2.49 3.0 3.51 0.62
	assert.Equal(t, []float64{150}, fsc)
	assert.Len(t, out.Names(), 5)

	counts, err := s.Counts(src)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"granular": 3, "cd3pos": 1}, counts)
}

func TestParseSet_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"unknown type", "gates: [{name: a, type: polygon, channel: X}]", ErrInvalidGate},
		{"missing name", "gates: [{type: threshold, channel: X, min: 1}]", ErrInvalidGate},
		{"duplicate name", "gates: [{name: a, type: threshold, channel: X, min: 1}, {name: a, type: threshold, channel: X, max: 1}]", ErrInvalidGate},
		{"threshold without bounds", "gates: [{name: a, type: threshold, channel: X}]", ErrInvalidGate},
		{"interval without high", "gates: [{name: a, type: interval, channel: X, low: 1}]", ErrInvalidGate},
		{"interval bad region", "gates: [{name: a, type: interval, channel: X, low: 1, high: 2, region: around}]", ErrInvalidGate},
		{"expr not boolean", `gates: [{name: a, type: expr, expr: 'ev["X"] * 2.0'}]`, ErrInvalidGate},
		{"missing parent", "gates: [{name: a, type: threshold, channel: X, min: 1, parent: b}]", ErrUnknownGate},
		{"derived without a name", `derived: [{expr: 'ev["X"] * 2.0'}]`, ErrInvalidGate},
		{"derived not numeric", `derived: [{name: d, expr: 'ev["X"] > 2.0'}]`, ErrInvalidGate},
		{"derived repeated", `derived: [{name: d, expr: 'ev["X"]'}, {name: d, expr: 'ev["Y"]'}]`, ErrInvalidGate},
		{"parent cycle", "gates: [{name: a, type: threshold, channel: X, min: 1, parent: b}, {name: b, type: threshold, channel: X, min: 1, parent: a}]", ErrInvalidGate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSet([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	_, err := ParseSet([]byte("gates: {not: a list}"))
	assert.Error(t, err)
}

func TestLoadSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(lymphocytes), 0644))

	s, err := LoadSet(path)
	require.NoError(t, err)
	assert.Len(t, s.Names(), 4)

	_, err = LoadSet(filepath.Join(t.TempDir(), "none.yaml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
