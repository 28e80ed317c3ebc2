// Package condition evaluates routing and skip-rule condition trees against
// idea facts. A tree is made of Leaf predicates combined with And/Or nodes.
package condition

import (
	"strings"

	"golang.org/x/text/cases"
)

// ValueKind tells which field of a Value is populated.
type ValueKind int

const (
	KindString ValueKind = iota
	KindBool
	KindList
)

// Value is a single fact value looked up by field name.
type Value struct {
	Kind ValueKind
	Str  string
	Bool bool
	List []string
}

// String wraps a string fact.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Bool wraps a boolean fact.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// List wraps a list fact.
func List(l []string) Value { return Value{Kind: KindList, List: l} }

// Facts is the typed record conditions are evaluated against. Lookup
// returns ok=false for fields that are unknown or absent.
type Facts interface {
	Lookup(field string) (Value, bool)
}

// Op is a leaf comparison operator.
type Op string

const (
	OpEq       Op = "eq"
	OpNeq      Op = "neq"
	OpIn       Op = "in"
	OpNotIn    Op = "not_in"
	OpContains Op = "contains"
	OpTruthy   Op = "truthy"
	OpFalsy    Op = "falsy"
)

// Valid reports whether op is a known operator.
func (op Op) Valid() bool {
	switch op {
	case OpEq, OpNeq, OpIn, OpNotIn, OpContains, OpTruthy, OpFalsy:
		return true
	}
	return false
}

// Condition is a node of a condition tree: Leaf, And or Or.
type Condition interface {
	isCondition()
}

// Leaf tests one fact against literal values. Booleans are carried as
// "true"/"false" in Values.
type Leaf struct {
	Field  string
	Op     Op
	Values []string
}

// And is true when every child is true. An empty And is true.
type And struct {
	Children []Condition
}

// Or is true when any child is true. An empty Or is false.
type Or struct {
	Children []Condition
}

func (Leaf) isCondition() {}
func (And) isCondition()  {}
func (Or) isCondition()   {}

// Evaluate walks the tree and returns its truth value. A nil condition is
// false. A leaf whose field is missing from facts is false.
func Evaluate(c Condition, f Facts) bool {
	switch n := c.(type) {
	case Leaf:
		return evalLeaf(n, f)
	case *Leaf:
		return n != nil && evalLeaf(*n, f)
	case And:
		return evalAll(n.Children, f)
	case *And:
		return n != nil && evalAll(n.Children, f)
	case Or:
		return evalAny(n.Children, f)
	case *Or:
		return n != nil && evalAny(n.Children, f)
	default:
		return false
	}
}

func evalAll(children []Condition, f Facts) bool {
	for _, c := range children {
		if !Evaluate(c, f) {
			return false
		}
	}
	return true
}

func evalAny(children []Condition, f Facts) bool {
	for _, c := range children {
		if Evaluate(c, f) {
			return true
		}
	}
	return false
}

func evalLeaf(l Leaf, f Facts) bool {
	if f == nil {
		return false
	}
	v, ok := f.Lookup(l.Field)
	if !ok {
		return false
	}

	switch l.Op {
	case OpEq:
		return len(l.Values) > 0 && matches(v, l.Values[0])
	case OpNeq:
		return len(l.Values) > 0 && !matches(v, l.Values[0])
	case OpIn:
		return matchesAny(v, l.Values)
	case OpNotIn:
		return !matchesAny(v, l.Values)
	case OpContains:
		return len(l.Values) > 0 && contains(v, l.Values[0])
	case OpTruthy:
		return truthy(v)
	case OpFalsy:
		return !truthy(v)
	default:
		return false
	}
}

func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func scalar(v Value) string {
	if v.Kind == KindBool {
		if v.Bool {
			return "true"
		}
		return "false"
	}
	return v.Str
}

// matches compares a fact with one literal. List facts match when any
// element matches.
func matches(v Value, literal string) bool {
	want := fold(literal)
	if v.Kind == KindList {
		for _, item := range v.List {
			if fold(item) == want {
				return true
			}
		}
		return false
	}
	return fold(scalar(v)) == want
}

func matchesAny(v Value, literals []string) bool {
	for _, lit := range literals {
		if matches(v, lit) {
			return true
		}
	}
	return false
}

func contains(v Value, literal string) bool {
	if v.Kind == KindList {
		return matches(v, literal)
	}
	return strings.Contains(fold(scalar(v)), fold(literal))
}

func truthy(v Value) bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindList:
		return len(v.List) > 0
	default:
		s := fold(v.Str)
		return s != "" && s != "false" && s != "0" && s != "no"
	}
}

// Fields returns every fact field referenced by the tree, in visit order.
func Fields(c Condition) []string {
	var out []string
	var walk func(Condition)
	walk = func(c Condition) {
		switch n := c.(type) {
		case Leaf:
			out = append(out, n.Field)
		case *Leaf:
			if n != nil {
				out = append(out, n.Field)
			}
		case And:
			for _, ch := range n.Children {
				walk(ch)
			}
		case *And:
			if n != nil {
				for _, ch := range n.Children {
					walk(ch)
				}
			}
		case Or:
			for _, ch := range n.Children {
				walk(ch)
			}
		case *Or:
			if n != nil {
				for _, ch := range n.Children {
					walk(ch)
				}
			}
		}
	}
	walk(c)
	return out
}
