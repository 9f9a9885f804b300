// Package filter translates AIP-160 filter expressions over the season audit
// journal into SQL conditions.
package filter

import (
	"fmt"
	"strings"
	"time"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// Condition is a SQL WHERE fragment with positional parameters.
type Condition struct {
	Clause string
	Params []any
}

// Empty reports whether the condition filters nothing.
func (c Condition) Empty() bool {
	return c.Clause == ""
}

type column struct {
	name string
	// millis marks timestamp columns stored as unix milliseconds.
	millis bool
}

var columns = map[string]column{
	"kind":       {name: "kind"},
	"day":        {name: "day"},
	"actor_type": {name: "actor_type"},
	"actor_id":   {name: "actor_id"},
	"entity_id":  {name: "entity_id"},
	"ts":         {name: "ts", millis: true},
}

var comparisons = map[string]string{
	filtering.FunctionEquals:        "=",
	filtering.FunctionNotEquals:     "!=",
	filtering.FunctionLessThan:      "<",
	filtering.FunctionLessEquals:    "<=",
	filtering.FunctionGreaterThan:   ">",
	filtering.FunctionGreaterEquals: ">=",
}

// Declarations returns the identifiers usable in an event filter.
func Declarations() (*filtering.Declarations, error) {
	return filtering.NewDeclarations(
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent("kind", filtering.TypeString),
		filtering.DeclareIdent("day", filtering.TypeInt),
		filtering.DeclareIdent("actor_type", filtering.TypeString),
		filtering.DeclareIdent("actor_id", filtering.TypeString),
		filtering.DeclareIdent("entity_id", filtering.TypeString),
		filtering.DeclareIdent("ts", filtering.TypeTimestamp),
	)
}

// ParseEvents parses raw into a SQL condition. An empty filter yields an
// empty condition.
func ParseEvents(raw string) (Condition, error) {
	if strings.TrimSpace(raw) == "" {
		return Condition{}, nil
	}
	decls, err := Declarations()
	if err != nil {
		return Condition{}, fmt.Errorf("create declarations: %w", err)
	}
	parsed, err := filtering.ParseFilterString(raw, decls)
	if err != nil {
		return Condition{}, fmt.Errorf("parse filter: %w", err)
	}
	if parsed.CheckedExpr == nil {
		return Condition{}, nil
	}
	return translate(parsed.CheckedExpr.GetExpr())
}

func translate(e *expr.Expr) (Condition, error) {
	call := e.GetCallExpr()
	if call == nil {
		return Condition{}, fmt.Errorf("unsupported expression %T", e.GetExprKind())
	}
	switch call.GetFunction() {
	case filtering.FunctionAnd, filtering.FunctionFuzzyAnd:
		return join(call.GetArgs(), "AND")
	case filtering.FunctionOr:
		return join(call.GetArgs(), "OR")
	case filtering.FunctionNot:
		if len(call.GetArgs()) != 1 {
			return Condition{}, fmt.Errorf("NOT takes one argument")
		}
		inner, err := translate(call.GetArgs()[0])
		if err != nil {
			return Condition{}, err
		}
		return Condition{Clause: "NOT " + inner.Clause, Params: inner.Params}, nil
	}
	op, ok := comparisons[call.GetFunction()]
	if !ok {
		return Condition{}, fmt.Errorf("unsupported function %s", call.GetFunction())
	}
	return compare(call.GetArgs(), op)
}

func join(args []*expr.Expr, op string) (Condition, error) {
	if len(args) < 2 {
		return Condition{}, fmt.Errorf("%s takes two arguments", op)
	}
	parts := make([]string, 0, len(args))
	var params []any
	for _, arg := range args {
		c, err := translate(arg)
		if err != nil {
			return Condition{}, err
		}
		parts = append(parts, c.Clause)
		params = append(params, c.Params...)
	}
	return Condition{Clause: "(" + strings.Join(parts, " "+op+" ") + ")", Params: params}, nil
}

func compare(args []*expr.Expr, op string) (Condition, error) {
	if len(args) != 2 {
		return Condition{}, fmt.Errorf("comparison takes two arguments")
	}
	ident := args[0].GetIdentExpr()
	if ident == nil {
		return Condition{}, fmt.Errorf("left side of %s must be a field", op)
	}
	col, ok := columns[ident.GetName()]
	if !ok {
		return Condition{}, fmt.Errorf("unknown field %s", ident.GetName())
	}
	value, err := literal(args[1], col)
	if err != nil {
		return Condition{}, fmt.Errorf("%s: %w", ident.GetName(), err)
	}
	return Condition{Clause: fmt.Sprintf("%s %s ?", col.name, op), Params: []any{value}}, nil
}

func literal(e *expr.Expr, col column) (any, error) {
	if call := e.GetCallExpr(); call != nil {
		if call.GetFunction() != filtering.FunctionTimestamp || len(call.GetArgs()) != 1 {
			return nil, fmt.Errorf("unsupported function %s", call.GetFunction())
		}
		raw := call.GetArgs()[0].GetConstExpr().GetStringValue()
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q", raw)
		}
		if !col.millis {
			return nil, fmt.Errorf("timestamp compared with a non-time field")
		}
		return ts.UTC().UnixMilli(), nil
	}
	c := e.GetConstExpr()
	if c == nil {
		return nil, fmt.Errorf("expected a literal")
	}
	switch v := c.GetConstantKind().(type) {
	case *expr.Constant_StringValue:
		return v.StringValue, nil
	case *expr.Constant_Int64Value:
		return v.Int64Value, nil
	case *expr.Constant_Uint64Value:
		return int64(v.Uint64Value), nil
	case *expr.Constant_BoolValue:
		return v.BoolValue, nil
	case *expr.Constant_DoubleValue:
		return v.DoubleValue, nil
	default:
		return nil, fmt.Errorf("unsupported literal %T", v)
	}
}
