package cel

import (
	"math"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// mathFunctions returns CEL function declarations for math over channel values.
func mathFunctions() cel.EnvOption {
	return cel.Lib(&mathLib{})
}

type mathLib struct{}

func (*mathLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("abs",
			cel.Overload("abs_int", []*cel.Type{cel.IntType}, cel.IntType,
				cel.UnaryBinding(func(val ref.Val) ref.Val {
					x, ok := val.(types.Int)
					if !ok {
						return types.NewErr("expected int argument to abs, got %T", val)
					}
					if x < 0 {
						return types.Int(-x)
					}
					return x
				}),
			),
			cel.Overload("abs_double", []*cel.Type{cel.DoubleType}, cel.DoubleType,
				unaryDouble("abs", math.Abs),
			),
		),

		cel.Function("min",
			cel.Overload("min_double_double", []*cel.Type{cel.DoubleType, cel.DoubleType}, cel.DoubleType,
				binaryDouble("min", math.Min),
			),
		),

		cel.Function("max",
			cel.Overload("max_double_double", []*cel.Type{cel.DoubleType, cel.DoubleType}, cel.DoubleType,
				binaryDouble("max", math.Max),
			),
		),

		cel.Function("log10",
			cel.Overload("log10_double", []*cel.Type{cel.DoubleType}, cel.DoubleType,
				unaryDouble("log10", math.Log10),
			),
		),

		// asinh(x) and asinh(x, cofactor), the usual cytometry display transform
		cel.Function("asinh",
			cel.Overload("asinh_double", []*cel.Type{cel.DoubleType}, cel.DoubleType,
				unaryDouble("asinh", math.Asinh),
			),
			cel.Overload("asinh_double_double", []*cel.Type{cel.DoubleType, cel.DoubleType}, cel.DoubleType,
				binaryDouble("asinh", func(x, cofactor float64) float64 {
					return math.Asinh(x / cofactor)
				}),
			),
		),

		// between(x, lo, hi) is lo <= x <= hi
		cel.Function("between",
			cel.Overload("between_double_double_double", []*cel.Type{cel.DoubleType, cel.DoubleType, cel.DoubleType}, cel.BoolType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					if len(args) != 3 {
						return types.NewErr("between expects 3 arguments, got %d", len(args))
					}
					x, ok1 := args[0].(types.Double)
					lo, ok2 := args[1].(types.Double)
					hi, ok3 := args[2].(types.Double)
					if !ok1 || !ok2 || !ok3 {
						return types.NewErr("arguments to between must be doubles")
					}
					return types.Bool(lo <= x && x <= hi)
				}),
			),
		),
	}
}

func (*mathLib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{}
}

func unaryDouble(name string, fn func(float64) float64) cel.OverloadOpt {
	return cel.UnaryBinding(func(val ref.Val) ref.Val {
		x, ok := val.(types.Double)
		if !ok {
			return types.NewErr("expected double argument to %s, got %T", name, val)
		}
		return types.Double(fn(float64(x)))
	})
}

func binaryDouble(name string, fn func(float64, float64) float64) cel.OverloadOpt {
	return cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
		x, ok1 := lhs.(types.Double)
		y, ok2 := rhs.(types.Double)
		if !ok1 || !ok2 {
			return types.NewErr("arguments to %s must be doubles", name)
		}
		return types.Double(fn(float64(x), float64(y)))
	})
}
