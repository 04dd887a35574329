package statedoc

import (
	"errors"
	"testing"
	"time"
)

func testStamp() time.Time {
	return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
}

func TestMigrateV1AddsMissingSections(t *testing.T) {
	raw := []byte(`{
  "schema_version": "1.0",
  "last_updated": "2025-11-02T18:00:00Z",
  "system": {"hostname": "pi", "cpu_temperature": 52.1}
}`)
	document, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode v1: %v", err)
	}
	if document.SchemaVersion() != VersionV2 {
		t.Fatalf("expected migration to %s, got %s", VersionV2, document.SchemaVersion())
	}

	system, ok := document.Section(CategorySystem)
	if !ok {
		t.Fatal("system section missing after migration")
	}
	hostname, _ := system.MapEntry("hostname")
	if got, _ := hostname.AsString(); got != "pi" {
		t.Fatalf("v1 field not preserved: %q", got)
	}
	temperature, _ := system.MapEntry("cpu_temperature")
	if got, _ := temperature.AsNumber(); got != 52.1 {
		t.Fatalf("v1 field not preserved: %v", got)
	}

	network, ok := document.Section(CategoryNetwork)
	if !ok || network.Len() != 0 {
		t.Fatalf("expected empty default network section, got %v %v", network.Describe(), ok)
	}
	notes, ok := document.Section(CategoryNotes)
	if !ok || notes.Len() != 0 {
		t.Fatal("expected empty default notes section")
	}
}

func TestMigrateNewerVersionFailsClosed(t *testing.T) {
	raw := []byte(`{"schema_version":"3.0","last_updated":"2026-03-14T09:26:53Z"}`)
	_, err := Decode(raw)
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if schemaErr.Version != "3.0" {
		t.Fatalf("unexpected version in error: %q", schemaErr.Version)
	}
}

func TestMigrateUnparseableVersionFailsClosed(t *testing.T) {
	raw := []byte(`{"schema_version":"two-point-oh","last_updated":"2026-03-14T09:26:53Z"}`)
	_, err := Decode(raw)
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
}

func TestMigrateRefusesDowngrade(t *testing.T) {
	document := New(testStamp())
	_, err := Migrate(document, VersionV1)
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError for downgrade, got %v", err)
	}
}

func TestMigrateCurrentVersionIsIdentityPlusDefaults(t *testing.T) {
	raw := []byte(`{"schema_version":"2.0","last_updated":"2026-03-14T09:26:53Z","system":{"hostname":"pi"}}`)
	document, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, category := range Categories() {
		if _, ok := document.Section(category); !ok {
			t.Fatalf("expected default section for %s", category)
		}
	}
}
