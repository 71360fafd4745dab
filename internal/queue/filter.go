package queue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/rzbill/bgq/internal/taskstore"
)

// ErrInvalidFilter is returned for filter expressions that do not compile to
// a boolean.
var ErrInvalidFilter = errors.New("queue: invalid filter")

// itemFilter wraps a compiled CEL program over inventory items. When disabled,
// Match always returns true.
type itemFilter struct {
	prog    cel.Program
	enabled bool
}

func newItemFilter(expr string) (itemFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return itemFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("type", cel.StringType),
		cel.Variable("group_start", cel.StringType),
		cel.Variable("blocking_groups", cel.ListType(cel.StringType)),
		cel.Variable("created_at_ms", cel.IntType),
		cel.Variable("age_ms", cel.IntType),
	)
	if err != nil {
		return itemFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return itemFilter{}, fmt.Errorf("%w: %v", ErrInvalidFilter, iss.Err())
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return itemFilter{}, fmt.Errorf("%w: %v", ErrInvalidFilter, iss2.Err())
	}
	if !checked.OutputType().IsExactType(cel.BoolType) {
		return itemFilter{}, fmt.Errorf("%w: expression must be boolean, got %s", ErrInvalidFilter, checked.OutputType())
	}
	prog, err := env.Program(checked)
	if err != nil {
		return itemFilter{}, err
	}
	return itemFilter{prog: prog, enabled: true}, nil
}

// Match evaluates the expression against one item. Evaluation errors count
// as no match.
func (f itemFilter) Match(it taskstore.InventoryItem, now time.Time) bool {
	if !f.enabled {
		return true
	}
	groups := it.BlockingGroups
	if groups == nil {
		groups = []string{}
	}
	out, _, err := f.prog.Eval(map[string]any{
		"id":              it.TaskID,
		"type":            it.Type,
		"group_start":     it.GroupStart,
		"blocking_groups": groups,
		"created_at_ms":   it.CreatedAt.UnixMilli(),
		"age_ms":          now.Sub(it.CreatedAt).Milliseconds(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
