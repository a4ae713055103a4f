// pool.go
package cel

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// ExpressionPool caches compiled CEL expressions
type ExpressionPool struct {
	mu          sync.RWMutex
	expressions map[poolKey]*compiled
	env         *cel.Env
}

type poolKey struct {
	expr      string
	predicate bool
}

type compiled struct {
	program cel.Program
	ast     *cel.Ast
}

// NewExpressionPool creates a new expression pool with the event environment
func NewExpressionPool() (*ExpressionPool, error) {
	env, err := NewEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create environment: %w", err)
	}

	return &ExpressionPool{
		env:         env,
		expressions: make(map[poolKey]*compiled),
	}, nil
}

// GetExpression retrieves or compiles an expression that must yield a number.
func (e *ExpressionPool) GetExpression(exprStr string) (cel.Program, error) {
	c, err := e.get(exprStr, false)
	if err != nil {
		return nil, err
	}
	return c.program, nil
}

// GetPredicate retrieves or compiles an expression that must yield a bool.
func (e *ExpressionPool) GetPredicate(exprStr string) (cel.Program, error) {
	c, err := e.get(exprStr, true)
	if err != nil {
		return nil, err
	}
	return c.program, nil
}

func (e *ExpressionPool) get(exprStr string, predicate bool) (*compiled, error) {
	key := poolKey{expr: exprStr, predicate: predicate}
	e.mu.RLock()
	if c, ok := e.expressions[key]; ok {
		e.mu.RUnlock()
		return c, nil
	}
	e.mu.RUnlock()

	ast, issues := e.env.Compile(exprStr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile expression '%s': %w", exprStr, issues.Err())
	}
	out := ast.OutputType()
	if predicate {
		if !out.IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("expression '%s' yields %s, want bool", exprStr, out)
		}
	} else if !out.IsExactType(cel.DoubleType) && !out.IsExactType(cel.IntType) && !out.IsExactType(cel.UintType) {
		return nil, fmt.Errorf("expression '%s' yields %s, want a number", exprStr, out)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}

	c := &compiled{program: program, ast: ast}
	e.mu.Lock()
	e.expressions[key] = c
	e.mu.Unlock()

	return c, nil
}

// MapKeys lists the constant string keys an expression reads from the map
// variable, through either ev["key"] or ev.key. dynamic reports an index
// with a computed key, which can only be resolved at evaluation. has() tests
// are not reads.
func (e *ExpressionPool) MapKeys(exprStr, variable string) (keys []string, dynamic bool, err error) {
	c, err := e.get(exprStr, true)
	if err != nil {
		if c, err = e.get(exprStr, false); err != nil {
			return nil, false, err
		}
	}

	seen := make(map[string]bool)
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	isVar := func(x celast.Expr) bool {
		return x.Kind() == celast.IdentKind && x.AsIdent() == variable
	}

	root := celast.NavigateAST(c.ast.NativeRep())
	for _, nav := range celast.MatchDescendants(root, celast.AllMatcher()) {
		switch nav.Kind() {
		case celast.CallKind:
			call := nav.AsCall()
			args := call.Args()
			if call.FunctionName() != operators.Index || len(args) != 2 || !isVar(args[0]) {
				continue
			}
			if args[1].Kind() == celast.LiteralKind {
				if s, ok := args[1].AsLiteral().(types.String); ok {
					add(string(s))
					continue
				}
			}
			dynamic = true
		case celast.SelectKind:
			sel := nav.AsSelect()
			if !sel.IsTestOnly() && isVar(sel.Operand()) {
				add(sel.FieldName())
			}
		}
	}
	return keys, dynamic, nil
}

// EvaluateNumber evaluates a compiled numeric expression as a float64.
func (e *ExpressionPool) EvaluateNumber(program cel.Program, params map[string]any) (float64, error) {
	val, err := eval(program, params)
	if err != nil {
		return 0, err
	}
	switch v := val.(type) {
	case types.Double:
		return float64(v), nil
	case types.Int:
		return float64(v), nil
	case types.Uint:
		return float64(v), nil
	}
	return 0, fmt.Errorf("expression yielded %s, not a number", val.Type().TypeName())
}

// EvaluatePredicate evaluates a compiled expression and requires a bool result.
func (e *ExpressionPool) EvaluatePredicate(program cel.Program, params map[string]any) (bool, error) {
	val, err := eval(program, params)
	if err != nil {
		return false, err
	}
	b, ok := val.(types.Bool)
	if !ok {
		return false, fmt.Errorf("expression yielded %s, not bool", val.Type().TypeName())
	}
	return bool(b), nil
}

func eval(program cel.Program, params map[string]any) (ref.Val, error) {
	if params == nil {
		params = make(map[string]any)
	}

	activation, err := cel.NewActivation(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create activation: %w", err)
	}

	val, _, err := program.Eval(activation)
	if err != nil {
		return nil, fmt.Errorf("expression evaluation error: %w", err)
	}
	return val, nil
}

// Size returns the number of cached programs.
func (e *ExpressionPool) Size() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.expressions)
}
