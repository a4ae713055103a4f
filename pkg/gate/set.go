package gate

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/twinfer/fcs-plugin/pkg/fcs"
)

// Definition is one entry of a gate-set document.
type Definition struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"` // threshold, interval or expr
	Channel string   `yaml:"channel,omitempty"`
	Min     *float64 `yaml:"min,omitempty"`
	Max     *float64 `yaml:"max,omitempty"`
	Low     *float64 `yaml:"low,omitempty"`
	High    *float64 `yaml:"high,omitempty"`
	Region  string   `yaml:"region,omitempty"` // in (default) or out, for interval gates
	Expr    string   `yaml:"expr,omitempty"`
	Parent  string   `yaml:"parent,omitempty"`
	Doc     string   `yaml:"doc,omitempty"`
}

// DerivedDefinition is one computed channel of a gate-set document.
type DerivedDefinition struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
}

type document struct {
	Derived []DerivedDefinition `yaml:"derived"`
	Gates   []Definition        `yaml:"gates"`
}

// Set is a collection of named gates plus the derived channels they may read.
// A gate with a parent only keeps events its parent keeps, so the gates form
// a hierarchy. A Set is immutable after loading and safe for concurrent use.
type Set struct {
	derived []*Derived
	defs    map[string]Definition
	gates   map[string]Gate
	order   []string
}

// LoadSet reads a gate-set YAML file.
func LoadSet(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gate set: %w", err)
	}
	s, err := ParseSet(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseSet decodes a gate-set YAML document:
//
//	derived:
//	  - name: CD3-asinh
//	    expr: 'asinh(ev["CD3"], 150.0)'
//	gates:
//	  - name: cells
//	    type: threshold
//	    channel: FSC-H
//	    min: 200
//	  - name: cd3
//	    type: expr
//	    expr: 'ev["CD3"] > 1000.0'
//	    parent: cells
func ParseSet(data []byte) (*Set, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse gate set YAML: %w", err)
	}

	s := &Set{
		defs:  make(map[string]Definition, len(doc.Gates)),
		gates: make(map[string]Gate, len(doc.Gates)),
	}
	seen := make(map[string]bool, len(doc.Derived))
	for _, dd := range doc.Derived {
		if seen[dd.Name] {
			return nil, fmt.Errorf("%w: duplicate derived channel %q", ErrInvalidGate, dd.Name)
		}
		seen[dd.Name] = true
		d, err := NewDerived(dd.Name, dd.Expr)
		if err != nil {
			return nil, err
		}
		s.derived = append(s.derived, d)
	}
	for _, d := range doc.Gates {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: gate without a name", ErrInvalidGate)
		}
		if _, dup := s.defs[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate gate %q", ErrInvalidGate, d.Name)
		}
		g, err := d.build()
		if err != nil {
			return nil, fmt.Errorf("gate %q: %w", d.Name, err)
		}
		s.defs[d.Name] = d
		s.gates[d.Name] = g
		s.order = append(s.order, d.Name)
	}

	for _, name := range s.order {
		if _, err := s.Chain(name); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (d Definition) build() (Gate, error) {
	switch strings.ToLower(d.Type) {
	case "threshold":
		if d.Channel == "" {
			return nil, fmt.Errorf("%w: threshold needs a channel", ErrInvalidGate)
		}
		if d.Min == nil && d.Max == nil {
			return nil, fmt.Errorf("%w: threshold needs min or max", ErrInvalidGate)
		}
		return ThresholdGate{Channel: d.Channel, Min: d.Min, Max: d.Max}, nil
	case "interval":
		if d.Channel == "" || d.Low == nil || d.High == nil {
			return nil, fmt.Errorf("%w: interval needs channel, low and high", ErrInvalidGate)
		}
		g := IntervalGate{Channel: d.Channel, Low: *d.Low, High: *d.High}
		switch strings.ToLower(d.Region) {
		case "", "in":
		case "out":
			g.Outside = true
		default:
			return nil, fmt.Errorf("%w: region %q, want in or out", ErrInvalidGate, d.Region)
		}
		if g.Low > g.High {
			return nil, fmt.Errorf("%w: low %g > high %g", ErrInvalidGate, g.Low, g.High)
		}
		return g, nil
	case "expr":
		if d.Expr == "" {
			return nil, fmt.Errorf("%w: expr gate needs an expression", ErrInvalidGate)
		}
		return NewExprGate(d.Expr)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidGate, d.Type)
	}
}

// Names lists the gates in document order.
func (s *Set) Names() []string { return append([]string(nil), s.order...) }

// Definition returns the YAML definition of a gate.
func (s *Set) Definition(name string) (Definition, bool) {
	d, ok := s.defs[name]
	return d, ok
}

// Chain returns the gates from the root of the hierarchy down to name.
func (s *Set) Chain(name string) ([]Gate, error) {
	var chain []Gate
	seen := make(map[string]bool)
	for cur := name; cur != ""; cur = s.defs[cur].Parent {
		if seen[cur] {
			return nil, fmt.Errorf("%w: parent cycle through %q", ErrInvalidGate, cur)
		}
		seen[cur] = true
		g, ok := s.gates[cur]
		if !ok {
			if cur == name {
				return nil, fmt.Errorf("%w %q", ErrUnknownGate, name)
			}
			return nil, fmt.Errorf("%w %q, parent of a gate in the chain of %q", ErrUnknownGate, cur, name)
		}
		chain = append(chain, g)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Derive appends the set's derived channels to t.
func (s *Set) Derive(t *fcs.EventTable) (*fcs.EventTable, error) {
	return Derive(t, s.derived...)
}

// Apply derives the set's channels and returns the events of t inside gate
// name and all of its ancestors.
func (s *Set) Apply(t *fcs.EventTable, name string) (*fcs.EventTable, error) {
	chain, err := s.Chain(name)
	if err != nil {
		return nil, err
	}
	if t, err = s.Derive(t); err != nil {
		return nil, err
	}
	return Apply(t, chain...)
}

// Counts returns, for every gate in the set, how many events of t it keeps.
func (s *Set) Counts(t *fcs.EventTable) (map[string]int, error) {
	t, err := s.Derive(t)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(s.order))
	for _, name := range s.order {
		chain, err := s.Chain(name)
		if err != nil {
			return nil, err
		}
		out, err := Apply(t, chain...)
		if err != nil {
			return nil, fmt.Errorf("gate %q: %w", name, err)
		}
		counts[name] = out.Rows()
	}
	return counts, nil
}
