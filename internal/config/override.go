package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// Op is the kind of change an override applies.
type Op int

const (
	// OpSet replaces an existing key: key=value.
	OpSet Op = iota
	// OpAdd introduces a key the configuration does not have: +key=value.
	OpAdd
	// OpDelete removes an existing key: ~key.
	OpDelete
)

// Override is a single command-line change to the configuration.
type Override struct {
	Key   string
	Value string
	Op    Op
}

// String renders the override in the form it is written on the command line.
func (o Override) String() string {
	switch o.Op {
	case OpAdd:
		return "+" + o.Key + "=" + o.Value
	case OpDelete:
		return "~" + o.Key
	default:
		return o.Key + "=" + o.Value
	}
}

var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-]*(\.[A-Za-z_][A-Za-z0-9_\-]*)*$`)

// SplitOverride separates the operator, key and raw value of an argument
// without interpreting the value.
func SplitOverride(arg string) (Op, string, string, error) {
	op := OpSet
	body := arg
	switch {
	case strings.HasPrefix(arg, "+"):
		op, body = OpAdd, arg[1:]
	case strings.HasPrefix(arg, "~"):
		op, body = OpDelete, arg[1:]
	}

	key, value, hasValue := strings.Cut(body, "=")
	key = strings.TrimSpace(key)
	if !keyPattern.MatchString(key) {
		return 0, "", "", fmt.Errorf("invalid override %q: bad key %q", arg, key)
	}
	switch {
	case op == OpDelete && hasValue:
		return 0, "", "", fmt.Errorf("invalid override %q: deletions take no value", arg)
	case op != OpDelete && !hasValue:
		return 0, "", "", fmt.Errorf("invalid override %q: expected key=value", arg)
	}
	return op, key, value, nil
}

// ParseOverride parses a single-valued override argument.
func ParseOverride(arg string) (Override, error) {
	op, key, value, err := SplitOverride(arg)
	if err != nil {
		return Override{}, err
	}
	return Override{Key: key, Value: value, Op: op}, nil
}

// ParseValue interprets an override value. Literal HCL (numbers, booleans,
// null, quoted strings, tuples and objects of literals) keeps its type;
// anything else, such as a bare word, is taken as a plain string.
func ParseValue(raw string) cty.Value {
	src := strings.TrimSpace(raw)
	if src == "" {
		return cty.StringVal("")
	}
	expr, diags := hclsyntax.ParseExpression([]byte(src), "<override>", hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() || !isLiteral(expr) {
		return cty.StringVal(raw)
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() || !val.IsWhollyKnown() {
		return cty.StringVal(raw)
	}
	return val
}

// isLiteral accepts only expressions whose value cannot depend on anything
// but their own text. Arithmetic is excluded so that "2024-01-31" stays a
// string instead of evaluating to 1992.
func isLiteral(expr hclsyntax.Expression) bool {
	switch e := expr.(type) {
	case *hclsyntax.LiteralValueExpr:
		return true
	case *hclsyntax.TemplateExpr:
		return e.IsStringLiteral()
	case *hclsyntax.UnaryOpExpr:
		_, ok := e.Val.(*hclsyntax.LiteralValueExpr)
		return ok && e.Op == hclsyntax.OpNegate
	case *hclsyntax.TupleConsExpr:
		for _, item := range e.Exprs {
			if !isLiteral(item) {
				return false
			}
		}
		return true
	case *hclsyntax.ObjectConsExpr:
		for _, item := range e.Items {
			if !isLiteral(item.ValueExpr) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
