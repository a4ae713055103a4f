package cel

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Variable names available to event expressions.
const (
	// EventVar holds the current event as a map from channel name to value.
	EventVar = "ev"
	// IndexVar holds the zero-based row index of the current event.
	IndexVar = "idx"
)

// NewEnvironment creates a CEL environment for expressions over decoded events.
func NewEnvironment() (*cel.Env, error) {
	opts := []cel.EnvOption{
		cel.Variable(EventVar, cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable(IndexVar, cel.IntType),

		cel.StdLib(),

		mathFunctions(),
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return env, nil
}
