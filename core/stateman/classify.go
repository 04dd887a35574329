package stateman

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/davidahmann/hoststate/core/errors"
	"github.com/davidahmann/hoststate/core/fieldpath"
	"github.com/davidahmann/hoststate/core/observer"
	"github.com/davidahmann/hoststate/core/statedoc"
	"github.com/davidahmann/hoststate/core/statestore"
)

// Stable error codes surfaced on operation failures.
const (
	CodeNoStoredState  = "no_stored_state"
	CodeInvalidPath    = "invalid_path"
	CodeSchemaInvalid  = "schema_invalid"
	CodeStateCorrupt   = "state_corrupt"
	CodeStateLocked    = "state_locked"
	CodeIOFailure      = "io_failure"
	CodeObserverFailed = "observer_failed"
	CodeCancelled      = "cancelled"
	CodeInternal       = "internal"
)

// classify wraps an operation failure with a stable category, code, and
// remediation hint. Already-classified errors pass through unchanged so the
// innermost classification wins.
func classify(err error, action string) error {
	if err == nil {
		return nil
	}
	if errors.CodeOf(err) != "" {
		return err
	}
	wrapped := fmt.Errorf("%s: %w", action, err)

	switch {
	case stderrors.Is(err, ErrNoState):
		return errors.Wrap(wrapped, errors.CategoryInvalidInput, CodeNoStoredState,
			"no state file exists yet; run save to create one", false)
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return errors.Wrap(wrapped, errors.CategoryInternalFailure, CodeCancelled,
			"operation cancelled before completion; retry with a longer timeout", true)
	}

	var pathErr *fieldpath.InvalidPathError
	if stderrors.As(err, &pathErr) || stderrors.Is(err, fieldpath.ErrNotFound) {
		return errors.Wrap(wrapped, errors.CategoryInvalidInput, CodeInvalidPath,
			"use a dotted path rooted at a known category, e.g. system.hostname", false)
	}

	var schemaErr *statedoc.SchemaError
	if stderrors.As(err, &schemaErr) {
		return errors.Wrap(wrapped, errors.CategorySchemaInvalid, CodeSchemaInvalid,
			"the document's schema version is not supported by this build", false)
	}

	var corruptErr *statestore.CorruptionError
	if stderrors.As(err, &corruptErr) {
		return errors.Wrap(wrapped, errors.CategoryStateCorrupt, CodeStateCorrupt,
			"the state file is not valid JSON; inspect it or delete it and re-save", false)
	}

	var lockErr *statestore.LockTimeoutError
	if stderrors.As(err, &lockErr) {
		return errors.Wrap(wrapped, errors.CategoryStateContention, CodeStateLocked,
			"another process holds the state lock; retry shortly", true)
	}

	var obsErr *observer.Error
	if stderrors.As(err, &obsErr) {
		return errors.Wrap(wrapped, errors.CategoryObserverFailure, CodeObserverFailed,
			"a host scan failed; check connectivity to the host and retry", true)
	}

	switch action {
	case "save", "import", "update":
		return errors.Wrap(wrapped, errors.CategoryIOFailure, CodeIOFailure,
			"writing the state file failed; check permissions and free space", true)
	}
	return errors.Wrap(wrapped, errors.CategoryInternalFailure, CodeInternal, "", false)
}
