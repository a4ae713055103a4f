package gate

import (
	"fmt"

	"github.com/google/cel-go/cel"

	fcscel "github.com/twinfer/fcs-plugin/internal/cel"
	"github.com/twinfer/fcs-plugin/pkg/fcs"
)

// Derived is a computed channel: a numeric CEL expression over ev and idx,
// evaluated once per event, e.g. asinh(ev["CD3"], 150.0).
type Derived struct {
	name    string
	expr    string
	pool    *fcscel.ExpressionPool
	program cel.Program
}

// NewDerived compiles expr, which must yield a number, into a channel called name.
func NewDerived(name, expr string) (*Derived, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: derived channel without a name", ErrInvalidGate)
	}
	pool, err := getSharedPool()
	if err != nil {
		return nil, err
	}
	program, err := pool.GetExpression(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: derived channel %q: %w", ErrInvalidGate, name, err)
	}
	return &Derived{name: name, expr: expr, pool: pool, program: program}, nil
}

// Name is the column name of the derived channel.
func (d *Derived) Name() string { return d.name }

// Expr returns the source expression.
func (d *Derived) Expr() string { return d.expr }

// Derive returns t with one extra column per derived channel, appended in
// order, so a later channel may read an earlier one.
func Derive(t *fcs.EventTable, ds ...*Derived) (*fcs.EventTable, error) {
	for _, d := range ds {
		var err error
		if t, err = d.apply(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (d *Derived) apply(t *fcs.EventTable) (*fcs.EventTable, error) {
	names := t.Names()
	if _, exists := t.ColumnIndex(d.name); exists {
		return nil, fmt.Errorf("%w: derived channel %q shadows an existing column", ErrInvalidGate, d.name)
	}
	if err := checkRefs(d.pool, d.expr, names); err != nil {
		return nil, err
	}

	cols := len(names)
	rows := t.Rows()
	data := make([]float64, 0, rows*(cols+1))
	ev := make(map[string]float64, cols)
	params := map[string]any{fcscel.EventVar: ev}
	for r := 0; r < rows; r++ {
		row := t.Row(r)
		for i, n := range names {
			ev[n] = row[i]
		}
		params[fcscel.IndexVar] = r
		v, err := d.pool.EvaluateNumber(d.program, params)
		if err != nil {
			return nil, fmt.Errorf("derived channel %q at event %d: %w", d.name, r, err)
		}
		data = append(data, row...)
		data = append(data, v)
	}
	return fcs.NewEventTable(append(names, d.name), rows, data)
}
