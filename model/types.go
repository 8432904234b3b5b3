package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind discriminates the variants of a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindFloatSlice
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindFloatSlice:
		return "float_slice"
	default:
		return "invalid"
	}
}

// Value is a tagged variant for a single row cell. Row files are loosely
// typed; pattern-matching on the kind replaces implicit coercion.
type Value struct {
	kind   Kind
	str    string
	num    float64
	i64    int64
	b      bool
	floats []float32
}

// String constructs a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Int constructs an integer Value.
func Int(i int64) Value { return Value{kind: KindInt, i64: i, num: float64(i)} }

// Float constructs a floating-point Value.
func Float(f float64) Value { return Value{kind: KindFloat, num: f} }

// Bool constructs a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Floats constructs a float-sequence Value.
func Floats(v []float32) Value { return Value{kind: KindFloatSlice, floats: v} }

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsZero reports whether the Value is the invalid zero variant.
func (v Value) IsZero() bool { return v.kind == KindInvalid }

// Stringify returns the canonical string form of the value. Booleans render
// as "True"/"False", the canonical boolean strings of the interchange
// format. Float sequences have no meaningful string form and render via
// fmt as a last resort.
func (v Value) Stringify() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.i64, 10)
	case KindFloat:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		if v.b {
			return "True"
		}
		return "False"
	case KindFloatSlice:
		return fmt.Sprint(v.floats)
	default:
		return ""
	}
}

// AsFloat coerces the value to float64. Integers widen; strings and
// booleans do not coerce.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.num, true
	case KindInt:
		return float64(v.i64), true
	default:
		return 0, false
	}
}

// AsInt coerces the value to int64. Floats coerce only when integral.
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i64, true
	case KindFloat:
		if v.num == math.Trunc(v.num) && !math.IsInf(v.num, 0) {
			return int64(v.num), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// AsFloat32Slice returns the float sequence payload. Scalars do not coerce.
func (v Value) AsFloat32Slice() ([]float32, bool) {
	if v.kind != KindFloatSlice {
		return nil, false
	}
	return v.floats, true
}

// UnmarshalJSON decodes a JSON scalar or numeric array into the variant.
// Whole numbers without an exponent or fraction decode as Int, other
// numbers as Float. Arrays decode as FloatSlice; a single-element nested
// array ([[...]]) flattens, matching exporters that wrap vectors.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("model: empty value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	case '[':
		var nested [][]float32
		if err := json.Unmarshal(data, &nested); err == nil {
			switch len(nested) {
			case 0:
				*v = Floats(nil)
			case 1:
				*v = Floats(nested[0])
			default:
				return fmt.Errorf("model: nested vector with %d inner sequences", len(nested))
			}
			return nil
		}
		var flat []float32
		if err := json.Unmarshal(data, &flat); err != nil {
			return err
		}
		*v = Floats(flat)
		return nil
	case 'n':
		*v = Value{}
		return nil
	default:
		if !bytes.ContainsAny(data, ".eE") {
			var i int64
			if err := json.Unmarshal(data, &i); err == nil {
				*v = Int(i)
				return nil
			}
		}
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		*v = Float(f)
		return nil
	}
}

// Row maps column names to cell values for a single source record.
type Row map[string]Value

// RestrictEntry is a string allow/deny filter tag derived for one row.
// AllowList and DenyList are nil when the spec's columns were absent on
// the row; the entry itself is always emitted.
type RestrictEntry struct {
	Namespace string   `json:"namespace"`
	AllowList []string `json:"allowList,omitempty"`
	DenyList  []string `json:"denyList,omitempty"`
}

// NumericDataType selects the typed field of a NumericRestrictEntry.
type NumericDataType string

const (
	NumericInt   NumericDataType = "int"
	NumericFloat NumericDataType = "float"
)

// Valid reports whether the data type is one of the supported variants.
func (t NumericDataType) Valid() bool {
	return t == NumericInt || t == NumericFloat
}

// NumericRestrictEntry is a typed numeric filter tag derived for one row.
// Exactly one of ValueInt/ValueFloat is populated, matching the declared
// data type of its spec.
type NumericRestrictEntry struct {
	Namespace  string   `json:"namespace"`
	ValueInt   *int64   `json:"valueInt,omitempty"`
	ValueFloat *float64 `json:"valueFloat,omitempty"`
}

// Datapoint is the unit upserted to the remote index. An empty
// CrowdingAttribute means no crowding tag.
type Datapoint struct {
	ID                string                 `json:"datapointId"`
	Vector            []float32              `json:"featureVector"`
	Restricts         []RestrictEntry        `json:"restricts,omitempty"`
	NumericRestricts  []NumericRestrictEntry `json:"numericRestricts,omitempty"`
	CrowdingAttribute string                 `json:"crowdingAttribute,omitempty"`
}

// NamespaceFilterSpec declares how string restricts are derived for one
// namespace: which row columns feed the allow list and which the deny list.
type NamespaceFilterSpec struct {
	Namespace    string   `json:"namespace" yaml:"namespace"`
	AllowColumns []string `json:"allow_columns,omitempty" yaml:"allow_columns,omitempty"`
	DenyColumns  []string `json:"deny_columns,omitempty" yaml:"deny_columns,omitempty"`
}

// NumericFilterSpec declares a typed numeric restrict sourced from one
// row column.
type NumericFilterSpec struct {
	Namespace    string          `json:"namespace" yaml:"namespace"`
	DataType     NumericDataType `json:"data_type" yaml:"data_type"`
	SourceColumn string          `json:"source_column" yaml:"source_column"`
}

// ValidateFilterSpecs checks the configuration invariants: every namespace
// spec names at least one allow or deny column, namespaces are unique
// within each list, and numeric data types are supported.
func ValidateFilterSpecs(specs []NamespaceFilterSpec, numeric []NumericFilterSpec) error {
	seen := make(map[string]struct{}, len(specs))
	for _, s := range specs {
		if s.Namespace == "" {
			return fmt.Errorf("model: filter spec with empty namespace")
		}
		if len(s.AllowColumns) == 0 && len(s.DenyColumns) == 0 {
			return fmt.Errorf("model: filter spec %q has neither allow nor deny columns", s.Namespace)
		}
		if _, dup := seen[s.Namespace]; dup {
			return fmt.Errorf("model: duplicate filter namespace %q", s.Namespace)
		}
		seen[s.Namespace] = struct{}{}
	}

	seenNum := make(map[string]struct{}, len(numeric))
	for _, n := range numeric {
		if n.Namespace == "" {
			return fmt.Errorf("model: numeric filter spec with empty namespace")
		}
		if n.SourceColumn == "" {
			return fmt.Errorf("model: numeric filter spec %q has no source column", n.Namespace)
		}
		if !n.DataType.Valid() {
			return fmt.Errorf("model: numeric filter spec %q has unsupported data type %q", n.Namespace, n.DataType)
		}
		if _, dup := seenNum[n.Namespace]; dup {
			return fmt.Errorf("model: duplicate numeric filter namespace %q", n.Namespace)
		}
		seenNum[n.Namespace] = struct{}{}
	}

	return nil
}
