// Package filterexpr compiles CEL filter expressions used by list endpoints.
//
// A filter is a boolean CEL expression over a whitelisted set of variables,
// for example:
//
//	type.startsWith("sys_") && size > 0
//
// An empty filter matches everything.
package filterexpr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// ValueKind describes the type of a filter variable.
type ValueKind string

const (
	KindString ValueKind = "string"
	KindInt    ValueKind = "int"
	KindBool   ValueKind = "bool"
)

// Schema whitelists the variables a filter may reference.
type Schema map[string]ValueKind

// Program is a compiled filter. The zero value and nil both match everything.
type Program struct {
	source string
	prg    cel.Program
}

// ErrNotBoolean is returned when a filter does not evaluate to a boolean.
var ErrNotBoolean = errors.New("filter must evaluate to a boolean")

// Compile parses and type-checks filter against schema.
func Compile(filter string, schema Schema) (*Program, error) {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return nil, nil
	}
	if len(schema) == 0 {
		return nil, errors.New("filter schema has no fields defined")
	}

	env, err := buildEnv(schema)
	if err != nil {
		return nil, err
	}

	ast, issues := env.Compile(filter)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid filter: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%w, got %s", ErrNotBoolean, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build filter program: %w", err)
	}
	return &Program{source: filter, prg: prg}, nil
}

// Match evaluates the filter against vars. Every schema variable must be present.
func (p *Program) Match(vars map[string]any) (bool, error) {
	if p == nil || p.prg == nil {
		return true, nil
	}
	out, _, err := p.prg.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("evaluate filter %q: %w", p.source, err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, ErrNotBoolean
	}
	return matched, nil
}

// String returns the filter source.
func (p *Program) String() string {
	if p == nil {
		return ""
	}
	return p.source
}

func buildEnv(schema Schema) (*cel.Env, error) {
	opts := make([]cel.EnvOption, 0, len(schema)+1)
	for name, kind := range schema {
		celType, err := celTypeForKind(kind)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		opts = append(opts, cel.Variable(name, celType))
	}
	opts = append(opts, cel.CrossTypeNumericComparisons(true))
	return cel.NewEnv(opts...)
}

func celTypeForKind(kind ValueKind) (*cel.Type, error) {
	switch kind {
	case KindString:
		return cel.StringType, nil
	case KindInt:
		return cel.IntType, nil
	case KindBool:
		return cel.BoolType, nil
	default:
		return nil, fmt.Errorf("unsupported field kind %s", kind)
	}
}
