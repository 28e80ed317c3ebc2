package condition

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type mapFacts map[string]Value

func (m mapFacts) Lookup(field string) (Value, bool) {
	v, ok := m[field]
	return v, ok
}

func sampleFacts() mapFacts {
	return mapFacts{
		"resource":         String("Video"),
		"estimated_length": String("short"),
		"contrarian_angle": Bool(false),
		"audiences":        List([]string{"Growth", "finance"}),
	}
}

func TestEvaluate_Leaves(t *testing.T) {
	f := sampleFacts()
	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"eq case-folded", Leaf{Field: "resource", Op: OpEq, Values: []string{"video"}}, true},
		{"eq mismatch", Leaf{Field: "resource", Op: OpEq, Values: []string{"article"}}, false},
		{"neq", Leaf{Field: "resource", Op: OpNeq, Values: []string{"article"}}, true},
		{"in", Leaf{Field: "estimated_length", Op: OpIn, Values: []string{"short", "medium"}}, true},
		{"not_in", Leaf{Field: "estimated_length", Op: OpNotIn, Values: []string{"long"}}, true},
		{"contains list", Leaf{Field: "audiences", Op: OpContains, Values: []string{"growth"}}, true},
		{"contains substring", Leaf{Field: "resource", Op: OpContains, Values: []string{"vid"}}, true},
		{"eq bool literal", Leaf{Field: "contrarian_angle", Op: OpEq, Values: []string{"false"}}, true},
		{"truthy false bool", Leaf{Field: "contrarian_angle", Op: OpTruthy}, false},
		{"falsy false bool", Leaf{Field: "contrarian_angle", Op: OpFalsy}, true},
		{"truthy list", Leaf{Field: "audiences", Op: OpTruthy}, true},
		{"unknown op", Leaf{Field: "resource", Op: "matches", Values: []string{"video"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.cond, f))
		})
	}
}

func TestEvaluate_MissingFieldIsFalse(t *testing.T) {
	f := sampleFacts()
	for _, op := range []Op{OpEq, OpNeq, OpIn, OpNotIn, OpContains, OpTruthy, OpFalsy} {
		c := Leaf{Field: "news_window", Op: op, Values: []string{"2025-06-01"}}
		assert.False(t, Evaluate(c, f), "op %s on a missing field", op)
	}
	assert.False(t, Evaluate(nil, f))
	assert.False(t, Evaluate(Leaf{Field: "resource", Op: OpEq, Values: []string{"video"}}, nil))
}

func TestEvaluate_Groups(t *testing.T) {
	f := sampleFacts()
	videoShort := And{Children: []Condition{
		Leaf{Field: "resource", Op: OpEq, Values: []string{"video"}},
		Leaf{Field: "estimated_length", Op: OpEq, Values: []string{"short"}},
	}}
	assert.True(t, Evaluate(videoShort, f))

	videoLong := And{Children: []Condition{
		Leaf{Field: "resource", Op: OpEq, Values: []string{"video"}},
		Leaf{Field: "estimated_length", Op: OpEq, Values: []string{"long"}},
	}}
	assert.False(t, Evaluate(videoLong, f))

	either := Or{Children: []Condition{videoLong, videoShort}}
	assert.True(t, Evaluate(either, f))

	assert.True(t, Evaluate(And{}, f), "empty all is vacuously true")
	assert.False(t, Evaluate(Or{}, f), "empty any is false")

	// A group whose child references a missing field degrades that child only.
	partial := Or{Children: []Condition{
		Leaf{Field: "pillar", Op: OpEq, Values: []string{"ops"}},
		Leaf{Field: "resource", Op: OpEq, Values: []string{"video"}},
	}}
	assert.True(t, Evaluate(partial, f))
}

func TestNode_JSONRoundTrip(t *testing.T) {
	src := `{"all":[{"field":"resource","op":"eq","value":"video"},{"any":[{"field":"estimated_length","op":"in","value":["short","medium"]},{"field":"contrarian_angle","op":"truthy"}]}]}`

	var n Node
	require.NoError(t, json.Unmarshal([]byte(src), &n))

	want := And{Children: []Condition{
		Leaf{Field: "resource", Op: OpEq, Values: []string{"video"}},
		Or{Children: []Condition{
			Leaf{Field: "estimated_length", Op: OpIn, Values: []string{"short", "medium"}},
			Leaf{Field: "contrarian_angle", Op: OpTruthy, Values: nil},
		}},
	}}
	if diff := cmp.Diff(Condition(want), n.Condition); diff != "" {
		t.Fatalf("decoded tree mismatch (-want +got):\n%s", diff)
	}

	out, err := json.Marshal(n)
	require.NoError(t, err)

	var again Node
	require.NoError(t, json.Unmarshal(out, &again))
	assert.Empty(t, cmp.Diff(n.Condition, again.Condition))
}

func TestNode_YAML(t *testing.T) {
	src := `
any:
  - field: resource
    op: eq
    value: video
  - field: contrarian_angle
    op: eq
    value: true
`
	var n Node
	require.NoError(t, yaml.Unmarshal([]byte(src), &n))

	or, ok := n.Condition.(Or)
	require.True(t, ok)
	require.Len(t, or.Children, 2)
	assert.Equal(t, Leaf{Field: "contrarian_angle", Op: OpEq, Values: []string{"true"}}, or.Children[1])
	assert.True(t, Evaluate(n.Condition, sampleFacts()))
}

func TestNode_InvalidNeverMatches(t *testing.T) {
	src := `{"field":"resource","op":"gte","value":"video"}`

	var n Node
	require.NoError(t, json.Unmarshal([]byte(src), &n))
	assert.True(t, n.Invalid())
	assert.Nil(t, n.Condition)
	assert.False(t, Evaluate(n.Condition, sampleFacts()))

	out, err := json.Marshal(n)
	require.NoError(t, err)
	assert.JSONEq(t, src, string(out))

	var y Node
	require.NoError(t, yaml.Unmarshal([]byte("{op: eq, value: video}"), &y))
	assert.True(t, y.Invalid())
	assert.Contains(t, y.Err.Error(), "requires a field")

	var empty Node
	require.NoError(t, json.Unmarshal([]byte("null"), &empty))
	assert.False(t, empty.Invalid())
	assert.Nil(t, empty.Condition)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  any
	}{
		{"not an object", "resource"},
		{"missing field", map[string]any{"op": "eq", "value": "x"}},
		{"unknown op", map[string]any{"field": "resource", "op": "like", "value": "x"}},
		{"missing value", map[string]any{"field": "resource", "op": "eq"}},
		{"children not a list", map[string]any{"all": "x"}},
		{"bad literal", map[string]any{"field": "resource", "op": "eq", "value": map[string]any{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw)
			assert.Error(t, err)
		})
	}

	c, err := Decode(nil)
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestFieldsAndDescribe(t *testing.T) {
	c := And{Children: []Condition{
		Leaf{Field: "resource", Op: OpEq, Values: []string{"video"}},
		Or{Children: []Condition{
			Leaf{Field: "audiences", Op: OpIn, Values: []string{"growth", "finance"}},
			Leaf{Field: "contrarian_angle", Op: OpTruthy},
		}},
	}}
	assert.Equal(t, []string{"resource", "audiences", "contrarian_angle"}, Fields(c))
	assert.Equal(t, "all(resource eq video, any(audiences in [finance growth], contrarian_angle truthy))", Describe(c))
	assert.Equal(t, "never", Describe(nil))
}
