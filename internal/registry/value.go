package registry

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/bytedance/sonic"
)

var codec = sonic.ConfigStd

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	// KindNull is the zero Value.
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindSequence
	KindMapping
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Value is a JSON-like tagged union stored in categories.
// The zero Value is null. Values are immutable: constructors copy their
// input and accessors return copies, so a stored Value never changes under
// a category's lock.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	seq  []Value
	m    map[string]Value
}

// Null returns the null Value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a float64. JSON numbers are always decoded as float64.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Int is a convenience for Number(float64(i)).
func Int(i int) Value { return Number(float64(i)) }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Sequence wraps a copy of an ordered list of values.
func Sequence(vs ...Value) Value {
	seq := make([]Value, len(vs))
	copy(seq, vs)
	return Value{kind: KindSequence, seq: seq}
}

// Mapping wraps a copy of a string keyed map of values.
func Mapping(m map[string]Value) Value {
	out := make(map[string]Value, len(m))
	maps.Copy(out, m)
	return Value{kind: KindMapping, m: out}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the number held by v.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsSequence returns a copy of the elements held by v.
func (v Value) AsSequence() ([]Value, bool) {
	if v.kind != KindSequence {
		return nil, false
	}
	return slices.Clone(v.seq), true
}

// AsMapping returns a copy of the map held by v.
func (v Value) AsMapping() (map[string]Value, bool) {
	if v.kind != KindMapping {
		return nil, false
	}
	return maps.Clone(v.m), true
}

// Equal reports structural equality. Mapping order is irrelevant.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindSequence:
		return slices.EqualFunc(v.seq, o.seq, Value.Equal)
	case KindMapping:
		return maps.EqualFunc(v.m, o.m, Value.Equal)
	}
	return false
}

// Any converts v to the plain Go representation used by encoding packages:
// nil, bool, float64, string, []any or map[string]any.
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindSequence:
		out := make([]any, len(v.seq))
		for i, e := range v.seq {
			out[i] = e.Any()
		}
		return out
	case KindMapping:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.Any()
		}
		return out
	default:
		return nil
	}
}

// FromAny converts decoded JSON, TOML or YAML data into a Value.
// Integer types are widened to float64. Unsupported types return an error.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case float64:
		return finiteNumber(t)
	case float32:
		return finiteNumber(float64(t))
	case int:
		return Number(float64(t)), nil
	case int8:
		return Number(float64(t)), nil
	case int16:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint:
		return Number(float64(t)), nil
	case uint8:
		return Number(float64(t)), nil
	case uint16:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case []any:
		seq := make([]Value, len(t))
		for i, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			seq[i] = ev
		}
		return Value{kind: KindSequence, seq: seq}, nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			m[k] = ev
		}
		return Value{kind: KindMapping, m: m}, nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", x)
	}
}

func finiteNumber(n float64) (Value, error) {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return Value{}, fmt.Errorf("%w: %v", ErrNonFinite, n)
	}
	return Number(n), nil
}

// finite reports the first NaN or infinity anywhere inside v.
func (v Value) finite() error {
	switch v.kind {
	case KindNumber:
		if _, err := finiteNumber(v.n); err != nil {
			return err
		}
	case KindSequence:
		for i, e := range v.seq {
			if err := e.finite(); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
	case KindMapping:
		for k, e := range v.m {
			if err := e.finite(); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler. Values holding NaN or infinity
// at any depth fail with ErrNonFinite.
func (v Value) MarshalJSON() ([]byte, error) {
	if err := v.finite(); err != nil {
		return nil, err
	}
	return codec.Marshal(v.Any())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var x any
	if err := codec.Unmarshal(data, &x); err != nil {
		return err
	}
	parsed, err := FromAny(x)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (v Value) MarshalYAML() (any, error) {
	return v.Any(), nil
}

// ParseJSON decodes a JSON document into a Value.
func ParseJSON(s string) (Value, error) {
	var v Value
	if err := v.UnmarshalJSON([]byte(s)); err != nil {
		return Value{}, err
	}
	return v, nil
}

// JSON encodes v, returning "null" if encoding fails.
func (v Value) JSON() string {
	data, err := v.MarshalJSON()
	if err != nil {
		return "null"
	}
	return string(data)
}
