package statedoc

import (
	"fmt"
	"strconv"
	"strings"
)

// A migrationStep rewrites a document from one schema version to the next.
// Steps must be pure: they return a new document and never touch shared
// state.
type migrationStep struct {
	from  string
	to    string
	apply func(Document) Document
}

// migrations is the ordered chain from the oldest supported version to
// CurrentVersion.
var migrations = []migrationStep{
	{from: VersionV1, to: VersionV2, apply: migrateV1ToV2},
}

// migrateV1ToV2 adds the category sections introduced in 2.0 with empty
// defaults. Existing sections carry over verbatim.
func migrateV1ToV2(document Document) Document {
	migrated := document.cloneShallow()
	migrated.schemaVersion = VersionV2
	for _, category := range Categories() {
		if _, present := migrated.sections[category]; !present {
			migrated.sections[category] = EmptySection(category)
		}
	}
	return migrated
}

// Migrate applies migration steps until the document reaches target.
// Downgrades and unknown targets fail closed with a SchemaError.
func Migrate(document Document, target string) (Document, error) {
	if err := checkVersionKnown(document.schemaVersion); err != nil {
		return Document{}, err
	}
	if document.schemaVersion == target {
		return fillMissingSections(document), nil
	}
	newer, err := versionNewer(document.schemaVersion, target)
	if err != nil {
		return Document{}, &SchemaError{Version: document.schemaVersion, Reason: err.Error()}
	}
	if newer {
		return Document{}, &SchemaError{
			Version: document.schemaVersion,
			Reason:  fmt.Sprintf("document is newer than target %s; refusing lossy downgrade", target),
		}
	}

	current := document
	for _, step := range migrations {
		if current.schemaVersion != step.from {
			continue
		}
		current = step.apply(current)
		if current.schemaVersion == target {
			return current, nil
		}
	}
	return Document{}, &SchemaError{
		Version: document.schemaVersion,
		Reason:  fmt.Sprintf("no migration chain reaches version %s", target),
	}
}

// fillMissingSections supplies empty defaults for absent categories in a
// current-version document, so partially populated files stay addressable.
func fillMissingSections(document Document) Document {
	filled := document.cloneShallow()
	for _, category := range Categories() {
		if _, present := filled.sections[category]; !present {
			filled.sections[category] = EmptySection(category)
		}
	}
	return filled
}

func checkVersionKnown(version string) error {
	switch version {
	case VersionV1, VersionV2:
		return nil
	}
	if _, _, err := parseVersion(version); err != nil {
		return &SchemaError{Version: version, Reason: err.Error()}
	}
	newer, err := versionNewer(version, CurrentVersion)
	if err != nil {
		return &SchemaError{Version: version, Reason: err.Error()}
	}
	if newer {
		return &SchemaError{
			Version: version,
			Reason:  fmt.Sprintf("written by a newer engine (current is %s); upgrade to read it", CurrentVersion),
		}
	}
	return &SchemaError{Version: version, Reason: "unrecognized schema version"}
}

func parseVersion(version string) (major, minor int, err error) {
	parts := strings.Split(version, ".")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("schema version %q is not major.minor", version)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("schema version %q is not major.minor", version)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("schema version %q is not major.minor", version)
	}
	return major, minor, nil
}

func versionNewer(version, reference string) (bool, error) {
	versionMajor, versionMinor, err := parseVersion(version)
	if err != nil {
		return false, err
	}
	referenceMajor, referenceMinor, err := parseVersion(reference)
	if err != nil {
		return false, err
	}
	if versionMajor != referenceMajor {
		return versionMajor > referenceMajor, nil
	}
	return versionMinor > referenceMinor, nil
}
