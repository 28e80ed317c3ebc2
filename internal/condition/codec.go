package condition

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Node carries a Condition through JSON and YAML. The stored forms are:
//
//	{"field": "resource", "op": "eq", "value": "video"}
//	{"field": "audiences", "op": "in", "value": ["growth", "finance"]}
//	{"all": [ ... ]}
//	{"any": [ ... ]}
//
// A stored form that does not decode leaves Condition nil and sets Err, so
// the node never matches. Raw keeps the stored form for re-encoding.
type Node struct {
	Condition
	Err error
	Raw any
}

// Invalid reports whether the stored form failed to decode.
func (n Node) Invalid() bool { return n.Err != nil }

// MarshalJSON implements json.Marshaler.
func (n Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.encode())
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "condition: decode json")
	}
	n.set(raw)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (n Node) MarshalYAML() (any, error) {
	return n.encode(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (n *Node) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return eris.Wrap(err, "condition: decode yaml")
	}
	n.set(raw)
	return nil
}

func (n *Node) set(raw any) {
	c, err := Decode(raw)
	*n = Node{Condition: c, Err: err}
	if err != nil {
		n.Raw = raw
	}
}

func (n Node) encode() any {
	if n.Invalid() {
		return n.Raw
	}
	return Encode(n.Condition)
}

// Decode builds a Condition from a generic map as produced by encoding/json
// or yaml.v3. A nil input decodes to a nil condition.
func Decode(raw any) (Condition, error) {
	if raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, eris.Errorf("condition: node must be an object, got %T", raw)
	}

	if children, ok := m["all"]; ok {
		kids, err := decodeChildren(children)
		if err != nil {
			return nil, eris.Wrap(err, "condition: all")
		}
		return And{Children: kids}, nil
	}
	if children, ok := m["any"]; ok {
		kids, err := decodeChildren(children)
		if err != nil {
			return nil, eris.Wrap(err, "condition: any")
		}
		return Or{Children: kids}, nil
	}

	field, _ := m["field"].(string)
	if field == "" {
		return nil, eris.New("condition: leaf requires a field")
	}
	opStr, _ := m["op"].(string)
	op := Op(opStr)
	if !op.Valid() {
		return nil, eris.Errorf("condition: unknown op %q on field %q", opStr, field)
	}

	values, err := literals(m["value"])
	if err != nil {
		return nil, eris.Wrapf(err, "condition: field %q", field)
	}
	switch op {
	case OpTruthy, OpFalsy:
	default:
		if len(values) == 0 {
			return nil, eris.Errorf("condition: op %q on field %q requires a value", op, field)
		}
	}
	return Leaf{Field: field, Op: op, Values: values}, nil
}

func decodeChildren(raw any) ([]Condition, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, eris.Errorf("children must be a list, got %T", raw)
	}
	out := make([]Condition, 0, len(list))
	for i, item := range list {
		c, err := Decode(item)
		if err != nil {
			return nil, eris.Wrapf(err, "child %d", i)
		}
		out = append(out, c)
	}
	return out, nil
}

func literals(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, err := literal(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	case []string:
		return v, nil
	default:
		s, err := literal(v)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
}

func literal(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case bool:
		if v {
			return "true", nil
		}
		return "false", nil
	case int, int64, float64:
		return fmt.Sprint(v), nil
	default:
		return "", eris.Errorf("unsupported literal %T", raw)
	}
}

// Encode returns the generic map form of c.
func Encode(c Condition) any {
	switch n := c.(type) {
	case Leaf:
		return encodeLeaf(n)
	case *Leaf:
		if n == nil {
			return nil
		}
		return encodeLeaf(*n)
	case And:
		return map[string]any{"all": encodeChildren(n.Children)}
	case *And:
		if n == nil {
			return nil
		}
		return map[string]any{"all": encodeChildren(n.Children)}
	case Or:
		return map[string]any{"any": encodeChildren(n.Children)}
	case *Or:
		if n == nil {
			return nil
		}
		return map[string]any{"any": encodeChildren(n.Children)}
	default:
		return nil
	}
}

func encodeLeaf(l Leaf) map[string]any {
	out := map[string]any{"field": l.Field, "op": string(l.Op)}
	switch {
	case len(l.Values) == 1 && l.Op != OpIn && l.Op != OpNotIn:
		out["value"] = l.Values[0]
	case len(l.Values) > 0:
		vals := append([]string(nil), l.Values...)
		out["value"] = vals
	}
	return out
}

func encodeChildren(children []Condition) []any {
	out := make([]any, 0, len(children))
	for _, c := range children {
		out = append(out, Encode(c))
	}
	return out
}

// Describe renders c as a short human-readable string for logs and reasons.
func Describe(c Condition) string {
	switch n := c.(type) {
	case Leaf:
		return describeLeaf(n)
	case *Leaf:
		if n != nil {
			return describeLeaf(*n)
		}
	case And:
		return describeGroup("all", n.Children)
	case *And:
		if n != nil {
			return describeGroup("all", n.Children)
		}
	case Or:
		return describeGroup("any", n.Children)
	case *Or:
		if n != nil {
			return describeGroup("any", n.Children)
		}
	}
	return "never"
}

func describeLeaf(l Leaf) string {
	switch l.Op {
	case OpTruthy, OpFalsy:
		return fmt.Sprintf("%s %s", l.Field, l.Op)
	case OpIn, OpNotIn:
		vals := append([]string(nil), l.Values...)
		sort.Strings(vals)
		return fmt.Sprintf("%s %s %v", l.Field, l.Op, vals)
	default:
		if len(l.Values) == 0 {
			return fmt.Sprintf("%s %s", l.Field, l.Op)
		}
		return fmt.Sprintf("%s %s %s", l.Field, l.Op, l.Values[0])
	}
}

func describeGroup(name string, children []Condition) string {
	s := name + "("
	for i, c := range children {
		if i > 0 {
			s += ", "
		}
		s += Describe(c)
	}
	return s + ")"
}
