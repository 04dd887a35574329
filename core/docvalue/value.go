// Package docvalue provides the closed value model for state documents:
// a value is a string, a number, a bool, a list of values, or a map of
// string keys to values. Keeping the union closed lets path resolution and
// diffing switch exhaustively instead of sniffing interface types.
package docvalue

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

type Kind int

const (
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "invalid"
	}
}

// Value is an immutable-by-convention document value. The zero Value is
// invalid; callers must construct values through the typed constructors
// or FromAny.
type Value struct {
	kind    Kind
	str     string
	num     float64
	boolean bool
	list    []Value
	mapping map[string]Value
}

func String(s string) Value {
	return Value{kind: KindString, str: s}
}

func Number(n float64) Value {
	return Value{kind: KindNumber, num: n}
}

func Bool(b bool) Value {
	return Value{kind: KindBool, boolean: b}
}

func List(items ...Value) Value {
	copied := make([]Value, len(items))
	copy(copied, items)
	return Value{kind: KindList, list: copied}
}

func Map(entries map[string]Value) Value {
	copied := make(map[string]Value, len(entries))
	for key, item := range entries {
		copied[key] = item
	}
	return Value{kind: KindMap, mapping: copied}
}

// EmptyMap returns a map value with no entries, the default for a category
// section that has not been scanned yet.
func EmptyMap() Value {
	return Value{kind: KindMap, mapping: map[string]Value{}}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsValid() bool {
	return v.kind != KindInvalid
}

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.boolean, true
}

// AsList returns a copy of the list items.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	copied := make([]Value, len(v.list))
	copy(copied, v.list)
	return copied, true
}

// AsMap returns a copy of the map entries.
func (v Value) AsMap() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	copied := make(map[string]Value, len(v.mapping))
	for key, item := range v.mapping {
		copied[key] = item
	}
	return copied, true
}

// MapKeys returns the sorted key set of a map value, nil otherwise.
func (v Value) MapKeys() []string {
	if v.kind != KindMap {
		return nil
	}
	keys := make([]string, 0, len(v.mapping))
	for key := range v.mapping {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MapEntry returns the value stored under key in a map value.
func (v Value) MapEntry(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	entry, ok := v.mapping[key]
	return entry, ok
}

// Len returns the element count for lists and maps, zero otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindMap:
		return len(v.mapping)
	default:
		return 0
	}
}

// ListItem returns the element at index in a list value.
func (v Value) ListItem(index int) (Value, bool) {
	if v.kind != KindList || index < 0 || index >= len(v.list) {
		return Value{}, false
	}
	return v.list[index], true
}

// Equal reports deep structural equality. Lists compare element-wise by
// position; maps compare by key set and entry values.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == other.str
	case KindNumber:
		return v.num == other.num
	case KindBool:
		return v.boolean == other.boolean
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.mapping) != len(other.mapping) {
			return false
		}
		for key, item := range v.mapping {
			counterpart, ok := other.mapping[key]
			if !ok || !item.Equal(counterpart) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Clone returns a deep copy that shares no containers with the receiver.
func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		items := make([]Value, len(v.list))
		for i := range v.list {
			items[i] = v.list[i].Clone()
		}
		return Value{kind: KindList, list: items}
	case KindMap:
		entries := make(map[string]Value, len(v.mapping))
		for key, item := range v.mapping {
			entries[key] = item.Clone()
		}
		return Value{kind: KindMap, mapping: entries}
	default:
		return v
	}
}

// WithEntry returns a copy of a map value with key set to entry. It returns
// false when the receiver is not a map.
func (v Value) WithEntry(key string, entry Value) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	entries := make(map[string]Value, len(v.mapping)+1)
	for existingKey, item := range v.mapping {
		entries[existingKey] = item
	}
	entries[key] = entry
	return Value{kind: KindMap, mapping: entries}, true
}

// FromAny converts a decoded JSON value (string, float64, bool, []any,
// map[string]any, json.Number, or integer types) into a Value. JSON null has
// no representation in the closed union and is rejected.
func FromAny(raw any) (Value, error) {
	switch typed := raw.(type) {
	case string:
		return String(typed), nil
	case float64:
		return Number(typed), nil
	case int:
		return Number(float64(typed)), nil
	case int64:
		return Number(float64(typed)), nil
	case bool:
		return Bool(typed), nil
	case json.Number:
		parsed, err := typed.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("parse number %q: %w", typed.String(), err)
		}
		return Number(parsed), nil
	case []any:
		items := make([]Value, 0, len(typed))
		for i, rawItem := range typed {
			item, err := FromAny(rawItem)
			if err != nil {
				return Value{}, fmt.Errorf("list index %d: %w", i, err)
			}
			items = append(items, item)
		}
		return Value{kind: KindList, list: items}, nil
	case map[string]any:
		entries := make(map[string]Value, len(typed))
		for key, rawItem := range typed {
			item, err := FromAny(rawItem)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", key, err)
			}
			entries[key] = item
		}
		return Value{kind: KindMap, mapping: entries}, nil
	case nil:
		return Value{}, fmt.Errorf("null is not a representable value")
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", raw)
	}
}

// ToAny converts the value back to plain Go JSON types.
func (v Value) ToAny() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.boolean
	case KindList:
		items := make([]any, len(v.list))
		for i := range v.list {
			items[i] = v.list[i].ToAny()
		}
		return items
	case KindMap:
		entries := make(map[string]any, len(v.mapping))
		for key, item := range v.mapping {
			entries[key] = item.ToAny()
		}
		return entries
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindInvalid {
		return nil, fmt.Errorf("cannot marshal invalid value")
	}
	return json.Marshal(v.ToAny())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// Describe renders a short human-readable form for error messages.
func (v Value) Describe() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.str)
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.boolean)
	case KindList:
		return fmt.Sprintf("list(%d)", len(v.list))
	case KindMap:
		return fmt.Sprintf("map(%d)", len(v.mapping))
	default:
		return "invalid"
	}
}
