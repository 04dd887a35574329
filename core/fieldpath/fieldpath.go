// Package fieldpath resolves dotted paths like "system.hostname" against a
// document tree. Each segment indexes into a map value; list indexing is
// intentionally unsupported.
package fieldpath

import (
	"errors"
	"fmt"
	"strings"

	"github.com/davidahmann/hoststate/core/docvalue"
)

// ErrNotFound reports that a path does not exist in the document. It is a
// lookup outcome, not a malformed-path error.
var ErrNotFound = errors.New("field not found")

// InvalidPathError reports a path that is malformed or structurally
// incompatible with the document (descending through a scalar).
type InvalidPathError struct {
	Path   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid path %q: %s", e.Path, e.Reason)
}

func invalidPath(path, format string, args ...any) error {
	return &InvalidPathError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// Split validates and splits a dotted path into segments.
func Split(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, invalidPath(path, "path must not be empty")
	}
	segments := strings.Split(path, ".")
	for _, segment := range segments {
		if segment == "" {
			return nil, invalidPath(path, "empty path segment")
		}
		if strings.ContainsAny(segment, "/\\") || strings.TrimSpace(segment) != segment {
			return nil, invalidPath(path, "segment %q contains unsupported characters", segment)
		}
	}
	return segments, nil
}

// Join composes a dotted path from a prefix and one more segment.
func Join(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return prefix + "." + segment
}

// Get resolves path against root. Returns ErrNotFound when any segment is
// absent and an InvalidPathError when the path is malformed.
func Get(root docvalue.Value, path string) (docvalue.Value, error) {
	segments, err := Split(path)
	if err != nil {
		return docvalue.Value{}, err
	}
	current := root
	for _, segment := range segments {
		if current.Kind() != docvalue.KindMap {
			return docvalue.Value{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		next, ok := current.MapEntry(segment)
		if !ok {
			return docvalue.Value{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		current = next
	}
	return current, nil
}

// Set returns a new tree with path set to value. Missing intermediate maps
// are created; an existing intermediate that is not a map is an
// InvalidPathError, never a silent overwrite.
func Set(root docvalue.Value, path string, value docvalue.Value) (docvalue.Value, error) {
	segments, err := Split(path)
	if err != nil {
		return docvalue.Value{}, err
	}
	if !value.IsValid() {
		return docvalue.Value{}, invalidPath(path, "value must be a string, number, bool, list, or map")
	}
	if root.Kind() != docvalue.KindMap {
		return docvalue.Value{}, invalidPath(path, "document root is %s, not a map", root.Kind())
	}
	return setSegments(root, path, segments, value)
}

func setSegments(node docvalue.Value, path string, segments []string, value docvalue.Value) (docvalue.Value, error) {
	head := segments[0]
	if len(segments) == 1 {
		updated, _ := node.WithEntry(head, value)
		return updated, nil
	}

	child, exists := node.MapEntry(head)
	switch {
	case !exists:
		child = docvalue.EmptyMap()
	case child.Kind() != docvalue.KindMap:
		return docvalue.Value{}, invalidPath(path, "segment %q holds a %s and cannot be descended", head, child.Kind())
	}

	updatedChild, err := setSegments(child, path, segments[1:], value)
	if err != nil {
		return docvalue.Value{}, err
	}
	updated, _ := node.WithEntry(head, updatedChild)
	return updated, nil
}
