// Package gate selects events from a decoded FCS event table.
//
// A gate is bound to a table's column names once and then evaluated per
// event. Gates never modify the table they filter; Apply returns a new one.
package gate

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/cel-go/cel"

	fcscel "github.com/twinfer/fcs-plugin/internal/cel"
	"github.com/twinfer/fcs-plugin/pkg/fcs"
)

var (
	// ErrUnknownChannel is returned when a gate names a channel the table lacks.
	ErrUnknownChannel = errors.New("unknown channel")
	// ErrUnknownGate is returned when a set has no gate of the requested name.
	ErrUnknownGate = errors.New("unknown gate")
	// ErrInvalidGate is returned for gate definitions that cannot select anything.
	ErrInvalidGate = errors.New("invalid gate")
)

// Predicate reports whether event idx, with values row, lies inside a gate.
// row must not be retained.
type Predicate func(idx int, row []float64) (bool, error)

// Gate is an event selector that can be bound to a set of column names.
type Gate interface {
	Bind(names []string) (Predicate, error)
}

// ThresholdGate keeps events whose channel value is >= Min and < Max.
// A nil bound is open.
type ThresholdGate struct {
	Channel string
	Min     *float64
	Max     *float64
}

func (g ThresholdGate) Bind(names []string) (Predicate, error) {
	if g.Min == nil && g.Max == nil {
		return nil, fmt.Errorf("%w: threshold on %q has neither min nor max", ErrInvalidGate, g.Channel)
	}
	col, err := columnOf(names, g.Channel)
	if err != nil {
		return nil, err
	}
	lo, hi := math.Inf(-1), math.Inf(1)
	if g.Min != nil {
		lo = *g.Min
	}
	if g.Max != nil {
		hi = *g.Max
	}
	return func(_ int, row []float64) (bool, error) {
		v := row[col]
		return v >= lo && v < hi, nil
	}, nil
}

// IntervalGate keeps events whose channel value lies in [Low, High], or
// outside it when Outside is set.
type IntervalGate struct {
	Channel string
	Low     float64
	High    float64
	Outside bool
}

func (g IntervalGate) Bind(names []string) (Predicate, error) {
	if g.Low > g.High {
		return nil, fmt.Errorf("%w: interval on %q has low %g > high %g", ErrInvalidGate, g.Channel, g.Low, g.High)
	}
	col, err := columnOf(names, g.Channel)
	if err != nil {
		return nil, err
	}
	return func(_ int, row []float64) (bool, error) {
		v := row[col]
		in := v >= g.Low && v <= g.High
		return in != g.Outside, nil
	}, nil
}

// ExprGate keeps events for which a CEL expression is true. The expression
// sees the event as ev, a map from channel name to value, and its row index
// as idx.
type ExprGate struct {
	expr    string
	pool    *fcscel.ExpressionPool
	program cel.Program
}

var (
	sharedPool     *fcscel.ExpressionPool
	sharedPoolErr  error
	sharedPoolOnce sync.Once
)

func getSharedPool() (*fcscel.ExpressionPool, error) {
	sharedPoolOnce.Do(func() {
		sharedPool, sharedPoolErr = fcscel.NewExpressionPool()
	})
	return sharedPool, sharedPoolErr
}

// NewExprGate compiles expr, which must yield a bool.
func NewExprGate(expr string) (*ExprGate, error) {
	pool, err := getSharedPool()
	if err != nil {
		return nil, err
	}
	program, err := pool.GetPredicate(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGate, err)
	}
	return &ExprGate{expr: expr, pool: pool, program: program}, nil
}

// Expr returns the source expression.
func (g *ExprGate) Expr() string { return g.expr }

// Bind checks the channels the expression reads, such as ev["FSC-H"], against
// names. Computed keys are only checked when an event is evaluated.
func (g *ExprGate) Bind(names []string) (Predicate, error) {
	if err := checkRefs(g.pool, g.expr, names); err != nil {
		return nil, err
	}
	names = append([]string(nil), names...)
	ev := make(map[string]float64, len(names))
	params := map[string]any{fcscel.EventVar: ev}
	return func(idx int, row []float64) (bool, error) {
		for i, n := range names {
			ev[n] = row[i]
		}
		params[fcscel.IndexVar] = idx
		ok, err := g.pool.EvaluatePredicate(g.program, params)
		if err != nil {
			return false, fmt.Errorf("gate %q at event %d: %w", g.expr, idx, err)
		}
		return ok, nil
	}, nil
}

func checkRefs(pool *fcscel.ExpressionPool, expr string, names []string) error {
	keys, _, err := pool.MapKeys(expr, fcscel.EventVar)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidGate, err)
	}
	for _, k := range keys {
		if _, err := columnOf(names, k); err != nil {
			return err
		}
	}
	return nil
}

func columnOf(names []string, channel string) (int, error) {
	for i, n := range names {
		if n == channel {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownChannel, channel)
}

// Apply returns the events of t that lie inside every gate.
func Apply(t *fcs.EventTable, gates ...Gate) (*fcs.EventTable, error) {
	names := t.Names()
	preds := make([]Predicate, len(gates))
	for i, g := range gates {
		p, err := g.Bind(names)
		if err != nil {
			return nil, err
		}
		preds[i] = p
	}

	var (
		idx      int
		firstErr error
	)
	out := t.Filter(func(row []float64) bool {
		defer func() { idx++ }()
		if firstErr != nil {
			return false
		}
		for _, p := range preds {
			ok, err := p(idx, row)
			if err != nil {
				firstErr = err
				return false
			}
			if !ok {
				return false
			}
		}
		return true
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
