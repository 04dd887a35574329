// Package statedoc defines the versioned host-state document: a schema
// version, a last-updated timestamp, and one section per category. Documents
// are value objects; every mutation returns a new document so the store can
// persist a consistent snapshot.
package statedoc

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/davidahmann/hoststate/core/docvalue"
)

const (
	VersionV1 = "1.0"
	VersionV2 = "2.0"

	// CurrentVersion is the schema generation this engine reads and writes.
	CurrentVersion = VersionV2
)

type Category string

const (
	CategorySystem   Category = "system"
	CategoryHardware Category = "hardware"
	CategoryNetwork  Category = "network"
	CategorySoftware Category = "software"
	CategoryServices Category = "services"
	CategoryGaming   Category = "gaming"
	CategoryNotes    Category = "notes"
)

// Categories returns every category in stable document order.
func Categories() []Category {
	return []Category{
		CategorySystem,
		CategoryHardware,
		CategoryNetwork,
		CategorySoftware,
		CategoryServices,
		CategoryGaming,
		CategoryNotes,
	}
}

// ScanCategories returns the categories populated by the system observer.
// Notes are operator-maintained and never scanned.
func ScanCategories() []Category {
	return []Category{
		CategorySystem,
		CategoryHardware,
		CategoryNetwork,
		CategorySoftware,
		CategoryServices,
		CategoryGaming,
	}
}

// ParseCategory validates a category name.
func ParseCategory(name string) (Category, error) {
	for _, category := range Categories() {
		if string(category) == name {
			return category, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", name)
}

// EmptySection returns the default value for an unscanned category: an empty
// map, except notes which is an empty list.
func EmptySection(category Category) docvalue.Value {
	if category == CategoryNotes {
		return docvalue.List()
	}
	return docvalue.EmptyMap()
}

// SchemaError reports a document whose version is unreadable, unrecognized,
// or newer than this engine understands.
type SchemaError struct {
	Version string
	Reason  string
}

func (e *SchemaError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("schema error: %s", e.Reason)
	}
	return fmt.Sprintf("schema error (version %q): %s", e.Version, e.Reason)
}

// Document is an immutable state snapshot.
type Document struct {
	schemaVersion string
	lastUpdated   time.Time
	sections      map[Category]docvalue.Value
}

// New returns an empty document at the current schema version with default
// sections.
func New(now time.Time) Document {
	sections := make(map[Category]docvalue.Value, len(Categories()))
	for _, category := range Categories() {
		sections[category] = EmptySection(category)
	}
	return Document{
		schemaVersion: CurrentVersion,
		lastUpdated:   now.UTC(),
		sections:      sections,
	}
}

func (d Document) SchemaVersion() string {
	return d.schemaVersion
}

func (d Document) LastUpdated() time.Time {
	return d.lastUpdated
}

// Section returns the value stored for a category.
func (d Document) Section(category Category) (docvalue.Value, bool) {
	section, ok := d.sections[category]
	return section, ok
}

// WithSection returns a copy of the document with the category replaced.
func (d Document) WithSection(category Category, section docvalue.Value) Document {
	updated := d.cloneShallow()
	updated.sections[category] = section
	return updated
}

// WithTimestamp returns a copy of the document stamped at now.
func (d Document) WithTimestamp(now time.Time) Document {
	updated := d.cloneShallow()
	updated.lastUpdated = now.UTC()
	return updated
}

func (d Document) cloneShallow() Document {
	sections := make(map[Category]docvalue.Value, len(d.sections))
	for category, section := range d.sections {
		sections[category] = section
	}
	return Document{
		schemaVersion: d.schemaVersion,
		lastUpdated:   d.lastUpdated,
		sections:      sections,
	}
}

// Tree assembles the category sections into one map value rooted at the
// category names, the shape the path resolver and diff engine walk.
func (d Document) Tree() docvalue.Value {
	entries := make(map[string]docvalue.Value, len(d.sections))
	for category, section := range d.sections {
		entries[string(category)] = section
	}
	return docvalue.Map(entries)
}

// WithTree replaces every category section from a tree produced by Tree
// (typically after a path update). Unknown top-level keys are rejected.
func (d Document) WithTree(tree docvalue.Value) (Document, error) {
	if tree.Kind() != docvalue.KindMap {
		return Document{}, fmt.Errorf("document tree must be a map, got %s", tree.Kind())
	}
	updated := d.cloneShallow()
	for _, key := range tree.MapKeys() {
		category, err := ParseCategory(key)
		if err != nil {
			return Document{}, err
		}
		section, _ := tree.MapEntry(key)
		updated.sections[category] = section
	}
	return updated, nil
}

// Equal reports structural equality of the category sections, ignoring
// schema_version and last_updated.
func (d Document) Equal(other Document) bool {
	return d.Tree().Equal(other.Tree())
}

// Decode parses raw JSON into a document, migrating older schema versions to
// CurrentVersion. Unreadable JSON is reported as a plain error (the store
// classifies it as corruption); version problems are SchemaErrors.
func Decode(raw []byte) (Document, error) {
	var envelope map[string]any
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Document{}, fmt.Errorf("parse state document: %w", err)
	}
	return decodeEnvelope(envelope)
}

func decodeEnvelope(envelope map[string]any) (Document, error) {
	rawVersion, ok := envelope["schema_version"]
	if !ok {
		return Document{}, &SchemaError{Reason: "missing schema_version"}
	}
	version, ok := rawVersion.(string)
	if !ok {
		return Document{}, &SchemaError{Reason: "schema_version must be a string"}
	}
	if err := checkVersionKnown(version); err != nil {
		return Document{}, err
	}

	lastUpdated := time.Time{}
	if rawUpdated, ok := envelope["last_updated"].(string); ok && rawUpdated != "" {
		parsed, err := time.Parse(time.RFC3339, rawUpdated)
		if err != nil {
			return Document{}, &SchemaError{Version: version, Reason: fmt.Sprintf("last_updated is not RFC 3339: %v", err)}
		}
		lastUpdated = parsed.UTC()
	}

	document := Document{
		schemaVersion: version,
		lastUpdated:   lastUpdated,
		sections:      map[Category]docvalue.Value{},
	}
	for _, category := range Categories() {
		rawSection, present := envelope[string(category)]
		if !present || rawSection == nil {
			continue
		}
		section, err := docvalue.FromAny(rawSection)
		if err != nil {
			return Document{}, &SchemaError{Version: version, Reason: fmt.Sprintf("section %s: %v", category, err)}
		}
		document.sections[category] = section
	}

	return Migrate(document, CurrentVersion)
}

// Encode serializes the document as indented JSON, the on-disk form.
func (d Document) Encode() ([]byte, error) {
	envelope := d.envelope()
	encoded, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode state document: %w", err)
	}
	return append(encoded, '\n'), nil
}

func (d Document) envelope() map[string]any {
	envelope := map[string]any{
		"schema_version": d.schemaVersion,
		"last_updated":   d.lastUpdated.UTC().Format(time.RFC3339),
	}
	for category, section := range d.sections {
		envelope[string(category)] = section.ToAny()
	}
	return envelope
}

// SectionNames lists the categories present in the document, sorted.
func (d Document) SectionNames() []string {
	names := make([]string, 0, len(d.sections))
	for category := range d.sections {
		names = append(names, string(category))
	}
	sort.Strings(names)
	return names
}
