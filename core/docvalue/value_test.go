package docvalue

import (
	"encoding/json"
	"testing"
)

func TestKindAccessors(t *testing.T) {
	if got, ok := String("pi").AsString(); !ok || got != "pi" {
		t.Fatalf("string accessor: %q %v", got, ok)
	}
	if got, ok := Number(42.5).AsNumber(); !ok || got != 42.5 {
		t.Fatalf("number accessor: %v %v", got, ok)
	}
	if got, ok := Bool(true).AsBool(); !ok || !got {
		t.Fatalf("bool accessor: %v %v", got, ok)
	}
	if _, ok := String("x").AsNumber(); ok {
		t.Fatal("expected cross-kind accessor to fail")
	}
	if (Value{}).IsValid() {
		t.Fatal("zero value must be invalid")
	}
}

func TestEqualDeep(t *testing.T) {
	left := Map(map[string]Value{
		"system": Map(map[string]Value{
			"hostname": String("pi"),
			"load":     List(Number(0.5), Number(0.7)),
		}),
	})
	right := Map(map[string]Value{
		"system": Map(map[string]Value{
			"load":     List(Number(0.5), Number(0.7)),
			"hostname": String("pi"),
		}),
	})
	if !left.Equal(right) {
		t.Fatal("expected structural equality")
	}

	reordered := Map(map[string]Value{
		"system": Map(map[string]Value{
			"hostname": String("pi"),
			"load":     List(Number(0.7), Number(0.5)),
		}),
	})
	if left.Equal(reordered) {
		t.Fatal("list reordering must not compare equal")
	}
}

func TestCloneDoesNotShareContainers(t *testing.T) {
	original := Map(map[string]Value{
		"notes": List(String("a")),
	})
	cloned := original.Clone()

	mutated, ok := cloned.WithEntry("notes", List(String("b")))
	if !ok {
		t.Fatal("expected map value")
	}
	if !original.Equal(original.Clone()) {
		t.Fatal("clone changed the original")
	}
	entry, _ := original.MapEntry("notes")
	item, _ := entry.ListItem(0)
	if got, _ := item.AsString(); got != "a" {
		t.Fatalf("original mutated through clone: %q", got)
	}
	entry, _ = mutated.MapEntry("notes")
	item, _ = entry.ListItem(0)
	if got, _ := item.AsString(); got != "b" {
		t.Fatalf("mutated copy missing update: %q", got)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	raw := []byte(`{"system":{"hostname":"pi","cpu_temperature":48.2,"healthy":true},"notes":["fresh install"]}`)

	var decoded Value
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	encoded, err := json.Marshal(decoded)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var again Value
	if err := json.Unmarshal(encoded, &again); err != nil {
		t.Fatalf("re-unmarshal: %v", err)
	}
	if !decoded.Equal(again) {
		t.Fatal("round trip changed the value")
	}
}

func TestFromAnyRejectsNull(t *testing.T) {
	if _, err := FromAny(nil); err == nil {
		t.Fatal("expected error for null")
	}
	var decoded Value
	if err := json.Unmarshal([]byte(`{"a":null}`), &decoded); err == nil {
		t.Fatal("expected error for nested null")
	}
}

func TestMapKeysSorted(t *testing.T) {
	value := Map(map[string]Value{"c": Number(1), "a": Number(2), "b": Number(3)})
	keys := value.MapKeys()
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Fatalf("unexpected key order: %v", keys)
	}
}
