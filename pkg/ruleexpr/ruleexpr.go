// Package ruleexpr implements the rule-expression evaluator: a small,
// closed boolean grammar over a flat dotted-path context map, designed
// to be evaluated identically on every host forever.
//
// RuleExpr is deliberately not backed by a general embedded expression
// language (google/cel-go, which pkg/optimize uses for optimizer
// objectives, is a fine fit there). The grammar here is fixed,
// versioned by this package's code, and its missing-field and
// numeric-coercion semantics are exact contract, not host behavior —
// properties a general evaluator does not promise to hold byte-for-byte
// across CEL library versions. Keeping it hand-rolled is what makes a
// run's decisions byte-identical across repeated evaluation airtight.
package ruleexpr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Op is a leaf comparison operator.
type Op string

const (
	OpEquals     Op = "equals"
	OpNotEquals  Op = "not_equals"
	OpContains   Op = "contains"
	OpNotContain Op = "not_contains"
	OpGT         Op = "gt"
	OpGTE        Op = "gte"
	OpLT         Op = "lt"
	OpLTE        Op = "lte"
	OpIn         Op = "in"
	OpNotIn      Op = "not_in"
	OpExists     Op = "exists"
	OpNotExists  Op = "not_exists"
)

// Combinator is a composite boolean combinator.
type Combinator string

const (
	CombAll  Combinator = "all"
	CombAny  Combinator = "any"
	CombNone Combinator = "none"
)

// Expr is a tagged-variant rule expression: exactly one of Leaf or
// Composite is populated, never both. Marshaling/unmarshaling through
// JSON distinguishes the two by the presence of "field"/"op" vs.
// "all"/"any"/"none".
type Expr struct {
	Leaf      *Leaf
	Composite *Composite
}

// Leaf is a single field comparison against a context value.
type Leaf struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value,omitempty"`
}

// Composite combines child expressions with a combinator.
type Composite struct {
	Combinator Combinator
	Children   []Expr
}

// MarshalJSON renders the tagged variant in its leaf-or-composite wire shape.
func (e Expr) MarshalJSON() ([]byte, error) {
	switch {
	case e.Leaf != nil:
		return json.Marshal(e.Leaf)
	case e.Composite != nil:
		key := string(e.Composite.Combinator)
		return json.Marshal(map[string]any{key: e.Composite.Children})
	default:
		return nil, fmt.Errorf("ruleexpr: empty expression")
	}
}

// UnmarshalJSON distinguishes leaf vs. composite by inspecting the keys
// present in the object, then populates exactly one of Leaf/Composite.
func (e *Expr) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("ruleexpr: decode expr: %w", err)
	}

	for _, comb := range []Combinator{CombAll, CombAny, CombNone} {
		if childData, ok := raw[string(comb)]; ok {
			var children []Expr
			if err := json.Unmarshal(childData, &children); err != nil {
				return fmt.Errorf("ruleexpr: decode %s children: %w", comb, err)
			}
			e.Composite = &Composite{Combinator: comb, Children: children}
			return nil
		}
	}

	var leaf Leaf
	if err := json.Unmarshal(data, &leaf); err != nil {
		return fmt.Errorf("ruleexpr: decode leaf: %w", err)
	}
	if leaf.Field == "" || leaf.Op == "" {
		return fmt.Errorf("ruleexpr: leaf expression missing field/op")
	}
	e.Leaf = &leaf
	return nil
}

// Context is the flat evaluation context: dotted path keys may resolve
// into nested maps, so lookups walk the path segment by segment.
type Context map[string]any

// Eval evaluates expr against ctx with no I/O, no clock, and no
// randomness.
func Eval(expr Expr, ctx Context) bool {
	switch {
	case expr.Leaf != nil:
		return evalLeaf(*expr.Leaf, ctx)
	case expr.Composite != nil:
		return evalComposite(*expr.Composite, ctx)
	default:
		return false
	}
}

func evalComposite(c Composite, ctx Context) bool {
	switch c.Combinator {
	case CombAll:
		for _, child := range c.Children {
			if !Eval(child, ctx) {
				return false
			}
		}
		return true // empty all => true
	case CombAny:
		for _, child := range c.Children {
			if Eval(child, ctx) {
				return true
			}
		}
		return false // empty any => false
	case CombNone:
		return !evalComposite(Composite{Combinator: CombAny, Children: c.Children}, ctx)
	default:
		return false
	}
}

func evalLeaf(l Leaf, ctx Context) bool {
	val, found := resolvePath(ctx, l.Field)

	switch l.Op {
	case OpExists:
		return found
	case OpNotExists:
		return !found
	}

	if !found {
		// Missing field under any comparator other than exists/not_exists
		// never matches — it is neither equal, nor in, nor greater than.
		return false
	}

	switch l.Op {
	case OpEquals:
		return looseEqual(val, l.Value)
	case OpNotEquals:
		return !looseEqual(val, l.Value)
	case OpContains:
		return containsValue(val, l.Value)
	case OpNotContain:
		return !containsValue(val, l.Value)
	case OpIn:
		return inList(val, l.Value)
	case OpNotIn:
		return !inList(val, l.Value)
	case OpGT, OpGTE, OpLT, OpLTE:
		return numericCompare(l.Op, val, l.Value)
	default:
		return false
	}
}

// resolvePath walks a dotted path through nested maps. An array element
// in the middle of a path is not indexable by name and resolves to
// not-found — arrays only ever appear as leaf values in this context
// model.
func resolvePath(ctx Context, path string) (any, bool) {
	segments := strings.Split(path, ".")
	var cur any = map[string]any(ctx)

	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, exists := m[seg]
		if !exists {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func looseEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func containsValue(field, needle any) bool {
	switch f := field.(type) {
	case string:
		s, ok := needle.(string)
		return ok && strings.Contains(f, s)
	case []any:
		for _, elem := range f {
			if looseEqual(elem, needle) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func inList(val, list any) bool {
	items, ok := list.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if looseEqual(val, item) {
			return true
		}
	}
	return false
}

func numericCompare(op Op, a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		// Incompatible types never error — they simply don't match.
		return false
	}
	switch op {
	case OpGT:
		return af > bf
	case OpGTE:
		return af >= bf
	case OpLT:
		return af < bf
	case OpLTE:
		return af <= bf
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
