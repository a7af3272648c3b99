// Package buildutil extracts values from the call expressions of
// descriptor files parsed with buildtools.
package buildutil

import (
	"fmt"
	"strconv"

	"github.com/bazelbuild/buildtools/build"
)

// Attr returns the value of the keyword argument name, or nil.
func Attr(call *build.CallExpr, name string) build.Expr {
	for _, arg := range call.List {
		assign, ok := arg.(*build.AssignExpr)
		if !ok {
			continue
		}
		if lhs, ok := assign.LHS.(*build.Ident); ok && lhs.Name == name {
			return assign.RHS
		}
	}
	return nil
}

// Has reports whether the keyword argument name is present.
func Has(call *build.CallExpr, name string) bool {
	return Attr(call, name) != nil
}

// Keywords returns the names of the keyword arguments in call order.
func Keywords(call *build.CallExpr) []string {
	var names []string
	for _, arg := range call.List {
		if assign, ok := arg.(*build.AssignExpr); ok {
			if lhs, ok := assign.LHS.(*build.Ident); ok {
				names = append(names, lhs.Name)
			}
		}
	}
	return names
}

// String returns the string keyword argument name. An empty name selects
// the first positional argument. Missing or non-string values yield "".
func String(call *build.CallExpr, name string) string {
	var expr build.Expr
	if name == "" {
		if len(call.List) > 0 {
			expr = call.List[0]
		}
	} else {
		expr = Attr(call, name)
	}
	if str, ok := expr.(*build.StringExpr); ok {
		return str.Value
	}
	return ""
}

// Int returns the integer keyword argument name. ok is false when the
// argument is missing or not an integer literal.
func Int(call *build.CallExpr, name string) (n int64, ok bool) {
	lit, isLit := Attr(call, name).(*build.LiteralExpr)
	if !isLit {
		return 0, false
	}
	n, err := strconv.ParseInt(lit.Token, 0, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Bool reports whether the keyword argument name is True.
func Bool(call *build.CallExpr, name string) bool {
	ident, ok := Attr(call, name).(*build.Ident)
	return ok && ident.Name == "True"
}

// StringList returns the list-of-strings keyword argument name. A single
// string is accepted as a one-element list. Non-string elements are
// skipped.
func StringList(call *build.CallExpr, name string) []string {
	switch v := Attr(call, name).(type) {
	case *build.StringExpr:
		return []string{v.Value}
	case *build.ListExpr:
		result := make([]string, 0, len(v.List))
		for _, elem := range v.List {
			if str, ok := elem.(*build.StringExpr); ok {
				result = append(result, str.Value)
			}
		}
		return result
	}
	return nil
}

// Dict returns the dict keyword argument name converted with Value, or
// nil when it is missing or not a dict.
func Dict(call *build.CallExpr, name string) map[string]any {
	d, ok := Attr(call, name).(*build.DictExpr)
	if !ok {
		return nil
	}
	m, _ := Value(d).(map[string]any)
	return m
}

// StringDict returns the dict keyword argument name with every value
// rendered as a string.
func StringDict(call *build.CallExpr, name string) map[string]string {
	d := Dict(call, name)
	if d == nil {
		return nil
	}
	out := make(map[string]string, len(d))
	for k, v := range d {
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}

// Calls returns the call expressions of the keyword argument name: the
// call itself, or every call element of a list.
func Calls(call *build.CallExpr, name string) []*build.CallExpr {
	switch v := Attr(call, name).(type) {
	case *build.CallExpr:
		return []*build.CallExpr{v}
	case *build.ListExpr:
		var out []*build.CallExpr
		for _, elem := range v.List {
			if c, ok := elem.(*build.CallExpr); ok {
				out = append(out, c)
			}
		}
		return out
	}
	return nil
}

// Value converts a literal expression to a Go value: strings, int64
// integers, booleans, nil for None, []any lists and map[string]any dicts.
// Other expressions are returned unchanged.
func Value(expr build.Expr) any {
	switch e := expr.(type) {
	case *build.StringExpr:
		return e.Value
	case *build.LiteralExpr:
		if val, err := strconv.ParseInt(e.Token, 0, 64); err == nil {
			return val
		}
		if val, err := strconv.ParseFloat(e.Token, 64); err == nil {
			return val
		}
		return e.Token
	case *build.UnaryExpr:
		if e.Op == "-" {
			switch v := Value(e.X).(type) {
			case int64:
				return -v
			case float64:
				return -v
			}
		}
		return expr
	case *build.Ident:
		switch e.Name {
		case "True":
			return true
		case "False":
			return false
		case "None":
			return nil
		default:
			return e.Name
		}
	case *build.ListExpr:
		result := make([]any, 0, len(e.List))
		for _, item := range e.List {
			result = append(result, Value(item))
		}
		return result
	case *build.DictExpr:
		result := make(map[string]any)
		for _, kv := range e.List {
			if keyStr, ok := kv.Key.(*build.StringExpr); ok {
				result[keyStr.Value] = Value(kv.Value)
			}
		}
		return result
	default:
		return expr
	}
}

// FuncName returns the function name of a call, or "" for method calls
// such as foo.bar().
func FuncName(call *build.CallExpr) string {
	if ident, ok := call.X.(*build.Ident); ok {
		return ident.Name
	}
	return ""
}
