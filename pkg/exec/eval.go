package exec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/relstack-labs/relq/pkg/plan"
	"github.com/relstack-labs/relq/pkg/query"
)

// evalError marks a scalar evaluation failure; the cursor wraps it into a
// terminal execution failure.
func evalError(format string, args ...any) error {
	return query.NewError(query.KindExecution, format, args...)
}

// eval computes a scalar expression against one row. SQL NULL is Go nil
// and propagates through operators under three-valued logic.
func eval(e plan.ScalarExpr, row plan.Row, params []plan.Value) (plan.Value, error) {
	switch x := e.(type) {
	case *plan.ColumnExpr:
		if x.Index >= len(row) {
			return nil, evalError("column %d out of range for row of width %d", x.Index, len(row))
		}
		return row[x.Index], nil

	case *plan.LiteralExpr:
		return x.Value, nil

	case *plan.ParamExpr:
		if x.Index >= len(params) {
			return nil, evalError("parameter %d not bound", x.Index)
		}
		return params[x.Index], nil

	case *plan.BinaryExpr:
		return evalBinary(x, row, params)

	case *plan.NotExpr:
		v, err := eval(x.Expr, row, params)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, nil
		}
		b, ok := v.(bool)
		if !ok {
			return nil, evalError("NOT applied to %T", v)
		}
		return !b, nil

	case *plan.NegExpr:
		v, err := eval(x.Expr, row, params)
		if err != nil {
			return nil, err
		}
		switch n := v.(type) {
		case nil:
			return nil, nil
		case int64:
			return -n, nil
		case float64:
			return -n, nil
		}
		return nil, evalError("cannot negate %T", v)

	case *plan.IsNullExpr:
		v, err := eval(x.Expr, row, params)
		if err != nil {
			return nil, err
		}
		return (v == nil) != x.Not, nil

	case *plan.CaseExpr:
		for _, w := range x.Whens {
			c, err := eval(w.Cond, row, params)
			if err != nil {
				return nil, err
			}
			if b, ok := c.(bool); ok && b {
				return eval(w.Result, row, params)
			}
		}
		if x.Else != nil {
			return eval(x.Else, row, params)
		}
		return nil, nil

	case *plan.CastExpr:
		v, err := eval(x.Expr, row, params)
		if err != nil {
			return nil, err
		}
		return castValue(v, x.To)

	case *plan.FuncExpr:
		return evalFunc(x, row, params)

	default:
		return nil, evalError("unsupported expression %T", e)
	}
}

func evalBinary(x *plan.BinaryExpr, row plan.Row, params []plan.Value) (plan.Value, error) {
	// AND/OR short-circuit and follow Kleene logic around NULL.
	if x.Op == plan.OpAnd || x.Op == plan.OpOr {
		return evalLogical(x, row, params)
	}

	left, err := eval(x.Left, row, params)
	if err != nil {
		return nil, err
	}
	right, err := eval(x.Right, row, params)
	if err != nil {
		return nil, err
	}
	if left == nil || right == nil {
		return nil, nil
	}

	switch x.Op {
	case plan.OpEq, plan.OpNe, plan.OpLt, plan.OpLe, plan.OpGt, plan.OpGe:
		c, err := compareValues(left, right)
		if err != nil {
			return nil, err
		}
		switch x.Op {
		case plan.OpEq:
			return c == 0, nil
		case plan.OpNe:
			return c != 0, nil
		case plan.OpLt:
			return c < 0, nil
		case plan.OpLe:
			return c <= 0, nil
		case plan.OpGt:
			return c > 0, nil
		default:
			return c >= 0, nil
		}

	case plan.OpAdd, plan.OpSub, plan.OpMul, plan.OpDiv, plan.OpMod:
		return evalArithmetic(x.Op, left, right)

	case plan.OpConcat:
		return valueToString(left) + valueToString(right), nil

	case plan.OpLike, plan.OpILike:
		s, ok1 := left.(string)
		pat, ok2 := right.(string)
		if !ok1 || !ok2 {
			return nil, evalError("LIKE requires string operands, got %T and %T", left, right)
		}
		if x.Op == plan.OpILike {
			s = strings.ToLower(s)
			pat = strings.ToLower(pat)
		}
		return likeMatch(s, pat), nil

	default:
		return nil, evalError("unsupported operator %s", x.Op)
	}
}

func evalLogical(x *plan.BinaryExpr, row plan.Row, params []plan.Value) (plan.Value, error) {
	left, err := eval(x.Left, row, params)
	if err != nil {
		return nil, err
	}
	lb, lok := left.(bool)
	if left != nil && !lok {
		return nil, evalError("%s applied to %T", x.Op, left)
	}

	if x.Op == plan.OpAnd && lok && !lb {
		return false, nil
	}
	if x.Op == plan.OpOr && lok && lb {
		return true, nil
	}

	right, err := eval(x.Right, row, params)
	if err != nil {
		return nil, err
	}
	rb, rok := right.(bool)
	if right != nil && !rok {
		return nil, evalError("%s applied to %T", x.Op, right)
	}

	switch {
	case lok && rok:
		if x.Op == plan.OpAnd {
			return lb && rb, nil
		}
		return lb || rb, nil
	case x.Op == plan.OpAnd && rok && !rb:
		return false, nil
	case x.Op == plan.OpOr && rok && rb:
		return true, nil
	default:
		return nil, nil
	}
}

func evalArithmetic(op plan.BinaryOp, left, right plan.Value) (plan.Value, error) {
	li, lIsInt := left.(int64)
	ri, rIsInt := right.(int64)
	if lIsInt && rIsInt {
		switch op {
		case plan.OpAdd:
			return li + ri, nil
		case plan.OpSub:
			return li - ri, nil
		case plan.OpMul:
			return li * ri, nil
		case plan.OpDiv:
			if ri == 0 {
				return nil, evalError("division by zero")
			}
			return li / ri, nil
		case plan.OpMod:
			if ri == 0 {
				return nil, evalError("division by zero")
			}
			return li % ri, nil
		}
	}

	lf, err := toFloat(left)
	if err != nil {
		return nil, err
	}
	rf, err := toFloat(right)
	if err != nil {
		return nil, err
	}
	switch op {
	case plan.OpAdd:
		return lf + rf, nil
	case plan.OpSub:
		return lf - rf, nil
	case plan.OpMul:
		return lf * rf, nil
	case plan.OpDiv:
		if rf == 0 {
			return nil, evalError("division by zero")
		}
		return lf / rf, nil
	default:
		return nil, evalError("%s requires integer operands", op)
	}
}

// compareValues orders two non-nil values. Mixed numeric types compare as
// floats; anything else must match in type.
func compareValues(a, b plan.Value) (int, error) {
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmpInt(x, y), nil
		case float64:
			return cmpFloat(float64(x), y), nil
		}
	case float64:
		switch y := b.(type) {
		case int64:
			return cmpFloat(x, float64(y)), nil
		case float64:
			return cmpFloat(x, y), nil
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, nil
			case !x:
				return -1, nil
			default:
				return 1, nil
			}
		}
	}
	return 0, evalError("cannot compare %T with %T", a, b)
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func toFloat(v plan.Value) (float64, error) {
	switch x := v.(type) {
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	}
	return 0, evalError("%T is not numeric", v)
}

func castValue(v plan.Value, to plan.Type) (plan.Value, error) {
	if v == nil {
		return nil, nil
	}
	switch to {
	case plan.TypeAny:
		return v, nil
	case plan.TypeBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case string:
			b, err := strconv.ParseBool(strings.ToLower(x))
			if err != nil {
				return nil, evalError("cannot cast %q to boolean", x)
			}
			return b, nil
		}
	case plan.TypeInt:
		switch x := v.(type) {
		case int64:
			return x, nil
		case float64:
			return int64(x), nil
		case bool:
			if x {
				return int64(1), nil
			}
			return int64(0), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
			if err != nil {
				return nil, evalError("cannot cast %q to integer", x)
			}
			return n, nil
		}
	case plan.TypeFloat:
		switch x := v.(type) {
		case int64:
			return float64(x), nil
		case float64:
			return x, nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return nil, evalError("cannot cast %q to float", x)
			}
			return f, nil
		}
	case plan.TypeString:
		return valueToString(v), nil
	}
	return nil, evalError("cannot cast %T to %s", v, to)
}

func valueToString(v plan.Value) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func evalFunc(x *plan.FuncExpr, row plan.Row, params []plan.Value) (plan.Value, error) {
	args := make([]plan.Value, len(x.Args))
	for i, a := range x.Args {
		v, err := eval(a, row, params)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	switch x.Name {
	case "COALESCE":
		for _, a := range args {
			if a != nil {
				return a, nil
			}
		}
		return nil, nil
	case "UPPER", "LOWER":
		if len(args) != 1 {
			return nil, evalError("%s takes one argument", x.Name)
		}
		if args[0] == nil {
			return nil, nil
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, evalError("%s requires a string, got %T", x.Name, args[0])
		}
		if x.Name == "UPPER" {
			return strings.ToUpper(s), nil
		}
		return strings.ToLower(s), nil
	case "LENGTH":
		if len(args) != 1 {
			return nil, evalError("LENGTH takes one argument")
		}
		if args[0] == nil {
			return nil, nil
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, evalError("LENGTH requires a string, got %T", args[0])
		}
		return int64(len([]rune(s))), nil
	case "ABS":
		if len(args) != 1 {
			return nil, evalError("ABS takes one argument")
		}
		switch n := args[0].(type) {
		case nil:
			return nil, nil
		case int64:
			if n < 0 {
				return -n, nil
			}
			return n, nil
		case float64:
			if n < 0 {
				return -n, nil
			}
			return n, nil
		}
		return nil, evalError("ABS requires a number, got %T", args[0])
	default:
		return nil, evalError("unknown function %s", x.Name)
	}
}

// likeMatch implements SQL LIKE with % and _ wildcards.
func likeMatch(s, pattern string) bool {
	return likeMatchRunes([]rune(s), []rune(pattern))
}

func likeMatchRunes(s, pat []rune) bool {
	for len(pat) > 0 {
		switch pat[0] {
		case '%':
			// Collapse consecutive wildcards, then try every suffix.
			for len(pat) > 0 && pat[0] == '%' {
				pat = pat[1:]
			}
			if len(pat) == 0 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if likeMatchRunes(s[i:], pat) {
					return true
				}
			}
			return false
		case '_':
			if len(s) == 0 {
				return false
			}
			s, pat = s[1:], pat[1:]
		default:
			if len(s) == 0 || s[0] != pat[0] {
				return false
			}
			s, pat = s[1:], pat[1:]
		}
	}
	return len(s) == 0
}

// encodeKey renders values into a hashable key for grouping and DISTINCT.
// The encoding distinguishes types and NULL so int64(1) and "1" never
// collide.
func encodeKey(b *strings.Builder, values []plan.Value) {
	for _, v := range values {
		switch x := v.(type) {
		case nil:
			b.WriteString("n|")
		case bool:
			b.WriteString("b")
			b.WriteString(strconv.FormatBool(x))
			b.WriteString("|")
		case int64:
			b.WriteString("i")
			b.WriteString(strconv.FormatInt(x, 10))
			b.WriteString("|")
		case float64:
			b.WriteString("f")
			b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
			b.WriteString("|")
		case string:
			b.WriteString("s")
			b.WriteString(strconv.Itoa(len(x)))
			b.WriteString(":")
			b.WriteString(x)
			b.WriteString("|")
		default:
			fmt.Fprintf(b, "?%v|", x)
		}
	}
}
