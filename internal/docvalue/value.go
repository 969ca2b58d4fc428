// Package docvalue implements the self-describing document tree that flows
// through the core: string/number/bool/null/array/object, tagged rather
// than represented as a bare map[string]any, so shard-key extraction and
// conflict resolution stay well-typed.
package docvalue

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Kind discriminates the tagged union.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value is a single node of the document tree. Only the field matching
// Kind is meaningful; the rest are zero values.
type Value struct {
	Kind   Kind
	Bool   bool
	Number float64
	Str    string
	Arr    []Value
	Obj    map[string]Value
}

// Null, String, Number, Bool and Object are small constructors used
// throughout the replication and test code to build documents without
// spelling out the struct literal every time.
func Null() Value                 { return Value{Kind: KindNull} }
func String(s string) Value       { return Value{Kind: KindString, Str: s} }
func Number(n float64) Value      { return Value{Kind: KindNumber, Number: n} }
func Bool(b bool) Value           { return Value{Kind: KindBool, Bool: b} }
func Array(items ...Value) Value  { return Value{Kind: KindArray, Arr: items} }
func Object(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{Kind: KindObject, Obj: m}
}

// Field extracts a top-level field from an object value. Shard keys are
// always top-level fields: no dotted-path traversal.
func (v Value) Field(name string) (Value, bool) {
	if v.Kind != KindObject {
		return Value{}, false
	}
	f, ok := v.Obj[name]
	return f, ok
}

// WithField returns a copy of v with field name set to val. Used when the
// router injects a generated key back into the document before routing.
func (v Value) WithField(name string, val Value) Value {
	out := Value{Kind: KindObject, Obj: make(map[string]Value, len(v.Obj)+1)}
	for k, fv := range v.Obj {
		out.Obj[k] = fv
	}
	out.Obj[name] = val
	return out
}

// CanonicalString renders a value suitable for hashing as a shard key.
// Numbers use a fixed, non-ambiguous textual form so "1", "1.0" and "1e0"
// parsed from different encodings hash identically.
func (v Value) CanonicalString() (string, error) {
	switch v.Kind {
	case KindString:
		return v.Str, nil
	case KindNumber:
		return canonicalNumber(v.Number), nil
	case KindBool:
		if v.Bool {
			return "true", nil
		}
		return "false", nil
	default:
		return "", fmt.Errorf("docvalue: kind %v is not hashable as a shard key", v.Kind)
	}
}

func canonicalNumber(n float64) string {
	return fmt.Sprintf("%g", n)
}

// ─── JSON ───────────────────────────────────────────────────────────────────

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.Bool)
	case KindNumber:
		return json.Marshal(v.Number)
	case KindString:
		return json.Marshal(v.Str)
	case KindArray:
		return json.Marshal(v.Arr)
	case KindObject:
		return json.Marshal(v.Obj)
	default:
		return nil, fmt.Errorf("docvalue: unknown kind %v", v.Kind)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = fromAny(raw)
	return nil
}

func fromAny(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case string:
		return String(t)
	case []any:
		items := make([]Value, len(t))
		for i, it := range t {
			items[i] = fromAny(it)
		}
		return Value{Kind: KindArray, Arr: items}
	case map[string]any:
		obj := make(map[string]Value, len(t))
		for k, vv := range t {
			obj[k] = fromAny(vv)
		}
		return Value{Kind: KindObject, Obj: obj}
	default:
		return Null()
	}
}

// Keys returns the sorted field names of an object value, used wherever a
// deterministic iteration order matters (e.g. computing a stable digest).
func (v Value) Keys() []string {
	if v.Kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(v.Obj))
	for k := range v.Obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
