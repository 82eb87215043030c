// Package condition implements the boolean condition trees attached to
// rules and event triggers. Trees are authored as JSON, parsed once at
// load time, and evaluated against a context map. Evaluation is pure:
// no side effects, deterministic for identical inputs, and it never
// panics into the caller. Anything malformed fails closed (false).
package condition

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind discriminates the node variants of a condition tree.
type Kind string

const (
	KindAnd  Kind = "and"
	KindOr   Kind = "or"
	KindLeaf Kind = "leaf"
)

// Supported leaf operators.
const (
	OpEquals         = "equals"
	OpNotEquals      = "not_equals"
	OpContains       = "contains"
	OpNotContains    = "not_contains"
	OpIn             = "in"
	OpNotIn          = "not_in"
	OpGreaterThan    = "greater_than"
	OpLessThan       = "less_than"
	OpGreaterOrEqual = "greater_or_equal"
	OpLessOrEqual    = "less_or_equal"
	OpIsEmpty        = "is_empty"
	OpIsNotEmpty     = "is_not_empty"
	OpStartsWith     = "starts_with"
	OpEndsWith       = "ends_with"
	OpMatches        = "matches"
)

var validOperators = map[string]bool{
	OpEquals: true, OpNotEquals: true,
	OpContains: true, OpNotContains: true,
	OpIn: true, OpNotIn: true,
	OpGreaterThan: true, OpLessThan: true,
	OpGreaterOrEqual: true, OpLessOrEqual: true,
	OpIsEmpty: true, OpIsNotEmpty: true,
	OpStartsWith: true, OpEndsWith: true,
	OpMatches: true,
}

// Node is one node of a parsed condition tree: an and/or combinator
// over Children, or a leaf comparing a dot-path context field against
// Value (or Values for set membership).
type Node struct {
	Kind     Kind
	Children []*Node

	Field    string
	Operator string
	Value    any
	Values   []string
}

// EvaluationError describes a runtime evaluation failure (unknown
// operator, invalid regex). The failing leaf evaluates false; siblings
// are unaffected.
type EvaluationError struct {
	Field    string
	Operator string
	Reason   string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("condition evaluation failed for field %q (%s): %s", e.Field, e.Operator, e.Reason)
}

// rawNode accepts both authoring shapes:
//
//	{"type": "and", "conditions": [...]}
//	{"and": [...]}
//	{"field": "region", "operator": "equals", "value": "SA"}
//
// with "op" accepted as an alias for "operator".
type rawNode struct {
	Type       string            `json:"type"`
	Conditions []json.RawMessage `json:"conditions"`
	And        []json.RawMessage `json:"and"`
	Or         []json.RawMessage `json:"or"`
	Field      string            `json:"field"`
	Operator   string            `json:"operator"`
	Op         string            `json:"op"`
	Value      any               `json:"value"`
	Values     []string          `json:"values"`
}

// Parse decodes a JSON condition document into a tree. An empty
// document ("", "{}", "null") yields a nil tree, which evaluates true.
// Malformed documents are a configuration error and must be rejected
// before the rule or trigger is activated.
func Parse(data []byte) (*Node, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "{}" || trimmed == "null" {
		return nil, nil
	}

	var raw rawNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid condition JSON: %w", err)
	}

	return buildNode(&raw)
}

func buildNode(raw *rawNode) (*Node, error) {
	children := raw.Conditions
	kind := Kind(strings.ToLower(raw.Type))

	switch {
	case len(raw.And) > 0:
		children, kind = raw.And, KindAnd
	case len(raw.Or) > 0:
		children, kind = raw.Or, KindOr
	}

	if len(children) > 0 {
		if kind != KindAnd && kind != KindOr {
			return nil, fmt.Errorf("compound condition requires type %q or %q, got %q", KindAnd, KindOr, raw.Type)
		}

		node := &Node{Kind: kind, Children: make([]*Node, 0, len(children))}
		for i, childJSON := range children {
			var childRaw rawNode
			if err := json.Unmarshal(childJSON, &childRaw); err != nil {
				return nil, fmt.Errorf("invalid condition at index %d: %w", i, err)
			}
			child, err := buildNode(&childRaw)
			if err != nil {
				return nil, fmt.Errorf("condition at index %d: %w", i, err)
			}
			node.Children = append(node.Children, child)
		}
		return node, nil
	}

	// Leaf node.
	if raw.Field == "" {
		return nil, fmt.Errorf("leaf condition requires a field")
	}

	op := strings.ToLower(raw.Operator)
	if op == "" {
		op = strings.ToLower(raw.Op)
	}
	if op == "" {
		op = OpEquals
	}
	if !validOperators[op] {
		return nil, fmt.Errorf("unknown operator %q for field %q", op, raw.Field)
	}

	// Regex patterns are validated at parse time so evaluation cannot
	// hit a compile failure for well-formed documents.
	if op == OpMatches {
		pattern, ok := raw.Value.(string)
		if !ok {
			return nil, fmt.Errorf("matches operator for field %q requires a string pattern", raw.Field)
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("invalid regex for field %q: %w", raw.Field, err)
		}
	}

	return &Node{
		Kind:     KindLeaf,
		Field:    raw.Field,
		Operator: op,
		Value:    raw.Value,
		Values:   raw.Values,
	}, nil
}

// Evaluate reports whether the tree holds for the context. A nil tree
// is vacuously true. Any evaluation failure makes the failing leaf
// false; use Check to observe the failure.
func (n *Node) Evaluate(ctx map[string]any) bool {
	ok, _ := n.Check(ctx)
	return ok
}

// Check is Evaluate plus the first EvaluationError encountered, if any.
// The boolean result is unaffected by the error: failed leaves are
// false and the remainder of the tree still short-circuits normally.
func (n *Node) Check(ctx map[string]any) (bool, *EvaluationError) {
	if n == nil {
		return true, nil
	}

	switch n.Kind {
	case KindAnd:
		var firstErr *EvaluationError
		for _, child := range n.Children {
			ok, err := child.Check(ctx)
			if err != nil && firstErr == nil {
				firstErr = err
			}
			if !ok {
				return false, firstErr
			}
		}
		return true, firstErr

	case KindOr:
		var firstErr *EvaluationError
		for _, child := range n.Children {
			ok, err := child.Check(ctx)
			if err != nil && firstErr == nil {
				firstErr = err
			}
			if ok {
				return true, firstErr
			}
		}
		return false, firstErr

	case KindLeaf:
		return n.checkLeaf(ctx)

	default:
		return false, &EvaluationError{Field: n.Field, Operator: n.Operator, Reason: fmt.Sprintf("unknown node kind %q", n.Kind)}
	}
}

func (n *Node) checkLeaf(ctx map[string]any) (bool, *EvaluationError) {
	val, present := Lookup(ctx, n.Field)

	// A missing (or nil) field fails every test except the emptiness
	// checks.
	if !present || val == nil {
		switch n.Operator {
		case OpIsEmpty:
			return true, nil
		default:
			return false, nil
		}
	}

	switch n.Operator {
	case OpEquals:
		return equalFold(val, n.Value), nil
	case OpNotEquals:
		return !equalFold(val, n.Value), nil
	case OpContains:
		return contains(val, n.Value), nil
	case OpNotContains:
		return !contains(val, n.Value), nil
	case OpIn:
		return inSet(val, n.memberValues()), nil
	case OpNotIn:
		return !inSet(val, n.memberValues()), nil
	case OpGreaterThan:
		return n.numericLeaf(val, func(a, b float64) bool { return a > b })
	case OpLessThan:
		return n.numericLeaf(val, func(a, b float64) bool { return a < b })
	case OpGreaterOrEqual:
		return n.numericLeaf(val, func(a, b float64) bool { return a >= b })
	case OpLessOrEqual:
		return n.numericLeaf(val, func(a, b float64) bool { return a <= b })
	case OpIsEmpty:
		return isEmpty(val), nil
	case OpIsNotEmpty:
		return !isEmpty(val), nil
	case OpStartsWith:
		return strings.HasPrefix(stringify(val), stringify(n.Value)), nil
	case OpEndsWith:
		return strings.HasSuffix(stringify(val), stringify(n.Value)), nil
	case OpMatches:
		pattern, ok := n.Value.(string)
		if !ok {
			return false, &EvaluationError{Field: n.Field, Operator: n.Operator, Reason: "pattern is not a string"}
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, &EvaluationError{Field: n.Field, Operator: n.Operator, Reason: err.Error()}
		}
		return re.MatchString(stringify(val)), nil
	default:
		return false, &EvaluationError{Field: n.Field, Operator: n.Operator, Reason: "unknown operator"}
	}
}

func (n *Node) numericLeaf(val any, cmp func(a, b float64) bool) (bool, *EvaluationError) {
	ok, err := compareNumeric(val, n.Value, cmp)
	if err != nil {
		return false, &EvaluationError{Field: n.Field, Operator: n.Operator, Reason: err.Error()}
	}
	return ok, nil
}

// memberValues returns the membership set for in/not_in. Values takes
// precedence; a list-valued Value is accepted as an alternative.
func (n *Node) memberValues() []string {
	if len(n.Values) > 0 {
		return n.Values
	}
	list, ok := n.Value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		out = append(out, stringify(v))
	}
	return out
}

// Lookup resolves a dot-path (e.g. "company_profile.region") into a
// nested context map. The boolean reports whether the full path was
// present.
func Lookup(ctx map[string]any, field string) (any, bool) {
	var current any = ctx
	for _, part := range strings.Split(field, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	// JSON numbers decode to float64; render integers without the
	// trailing ".0" so equals("50") matches 50.
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}

func equalFold(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(stringify(a), stringify(b))
}

func contains(ctxVal, target any) bool {
	if ctxVal == nil || target == nil {
		return false
	}
	targetStr := stringify(target)
	if targetStr == "" {
		return false
	}
	if list, ok := ctxVal.([]any); ok {
		for _, item := range list {
			if strings.EqualFold(stringify(item), targetStr) {
				return true
			}
		}
		return false
	}
	return strings.Contains(strings.ToLower(stringify(ctxVal)), strings.ToLower(targetStr))
}

func inSet(ctxVal any, members []string) bool {
	if len(members) == 0 {
		return false
	}
	s := stringify(ctxVal)
	for _, m := range members {
		if strings.EqualFold(m, s) {
			return true
		}
	}
	return false
}

// compareNumeric coerces both operands through ParseFloat so "120"
// and 120 compare equal. A non-numeric operand is an evaluation error
// and the leaf is false.
func compareNumeric(ctxVal, target any, cmp func(a, b float64) bool) (bool, error) {
	a, err := strconv.ParseFloat(stringify(ctxVal), 64)
	if err != nil {
		return false, fmt.Errorf("context value %q is not numeric", stringify(ctxVal))
	}
	b, err := strconv.ParseFloat(stringify(target), 64)
	if err != nil {
		return false, fmt.Errorf("comparison value %q is not numeric", stringify(target))
	}
	return cmp(a, b), nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
