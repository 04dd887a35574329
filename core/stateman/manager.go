// Package stateman composes the store, the scan cache, and the observer
// into the state-management operation surface: load, save, update, compare,
// diff, export, import, and watch.
package stateman

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/davidahmann/hoststate/core/canonjson"
	"github.com/davidahmann/hoststate/core/docvalue"
	"github.com/davidahmann/hoststate/core/fieldpath"
	"github.com/davidahmann/hoststate/core/observer"
	"github.com/davidahmann/hoststate/core/scancache"
	"github.com/davidahmann/hoststate/core/statediff"
	"github.com/davidahmann/hoststate/core/statedoc"
	"github.com/davidahmann/hoststate/core/statestore"
)

// ErrNoState reports that an operation needs a persisted document and none
// exists yet. Callers distinguish it from real failures: the remedy is
// "run save first".
var ErrNoState = stderrors.New("no stored state; run save first")

type Manager struct {
	store  *statestore.Store
	cache  *scancache.Cache
	obs    observer.Observer
	clock  func() time.Time
	logger *slog.Logger
}

type Option func(*Manager)

// WithClock overrides the wall clock, for tests.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithLogger attaches a structured logger; the default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func New(store *statestore.Store, cache *scancache.Cache, obs observer.Observer, opts ...Option) *Manager {
	manager := &Manager{
		store:  store,
		cache:  cache,
		obs:    obs,
		clock:  time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(manager)
	}
	return manager
}

// StatePath returns the path of the backing state file.
func (m *Manager) StatePath() string {
	return m.store.Path()
}

// CacheStats exposes scan-cache counters for diagnostics.
func (m *Manager) CacheStats() scancache.Stats {
	return m.cache.Stats()
}

// Load reads the persisted document. found is false when no state file
// exists, which is a valid "never scanned" outcome.
func (m *Manager) Load(ctx context.Context) (statedoc.Document, bool, error) {
	document, err := m.store.Read()
	if err != nil {
		if stderrors.Is(err, statestore.ErrNotFound) {
			return statedoc.Document{}, false, nil
		}
		return statedoc.Document{}, false, classify(err, "load")
	}
	return document, true, nil
}

// Save assembles a document from cached or freshly observed categories and
// persists it. With forceScan, every category is re-observed regardless of
// cache freshness. Notes are operator-maintained and carry over from the
// previously persisted document; a previous document that exists but cannot
// be read aborts the save.
func (m *Manager) Save(ctx context.Context, forceScan bool) (statedoc.Document, error) {
	if forceScan {
		for _, category := range statedoc.ScanCategories() {
			m.cache.Invalidate(category)
		}
	}

	document := statedoc.New(m.clock())
	for _, category := range statedoc.ScanCategories() {
		payload, _, err := m.cache.GetOrScan(ctx, category, m.scanFunc(category))
		if err != nil {
			return statedoc.Document{}, classify(err, "save")
		}
		document = document.WithSection(category, payload)
	}

	if err := ctx.Err(); err != nil {
		return statedoc.Document{}, classify(err, "save")
	}

	// The notes carryover and the write share one lock acquisition, and a
	// previous document that fails to read aborts the save: a corrupt file
	// stays on disk for the operator to inspect instead of being replaced.
	saved, err := m.store.Mutate(func(previous statedoc.Document, exists bool) (statedoc.Document, error) {
		if exists {
			if notes, ok := previous.Section(statedoc.CategoryNotes); ok {
				document = document.WithSection(statedoc.CategoryNotes, notes)
			}
		}
		return document, nil
	})
	if err != nil {
		return statedoc.Document{}, classify(err, "save")
	}
	m.logger.Info("state saved", "path", m.store.Path(), "force_scan", forceScan)
	return saved, nil
}

// Update sets one field by dotted path and persists the result under a
// single lock acquisition. When no document exists yet, the update starts
// from an empty current-version document.
func (m *Manager) Update(ctx context.Context, path string, value docvalue.Value) (statedoc.Document, error) {
	if _, err := fieldpath.Split(path); err != nil {
		return statedoc.Document{}, classify(err, "update")
	}
	if !value.IsValid() {
		return statedoc.Document{}, classify(
			&fieldpath.InvalidPathError{Path: path, Reason: "value is required"}, "update")
	}

	updated, err := m.store.Mutate(func(current statedoc.Document, exists bool) (statedoc.Document, error) {
		if !exists {
			current = statedoc.New(m.clock())
		}
		tree, err := fieldpath.Set(current.Tree(), path, value)
		if err != nil {
			return statedoc.Document{}, err
		}
		next, err := current.WithTree(tree)
		if err != nil {
			return statedoc.Document{}, &fieldpath.InvalidPathError{Path: path, Reason: err.Error()}
		}
		return next.WithTimestamp(m.clock()), nil
	})
	if err != nil {
		return statedoc.Document{}, classify(err, "update")
	}
	m.logger.Info("state field updated", "path", path)
	return updated, nil
}

// Compare loads the persisted document and diffs it against a fresh
// observation of the same categories. Nothing is persisted and the cache is
// not consulted: drift detection requires current facts.
func (m *Manager) Compare(ctx context.Context) (statediff.Result, error) {
	stored, err := m.store.Read()
	if err != nil {
		if stderrors.Is(err, statestore.ErrNotFound) {
			return statediff.Result{}, classify(ErrNoState, "compare")
		}
		return statediff.Result{}, classify(err, "compare")
	}

	current := statedoc.New(m.clock())
	for _, category := range statedoc.ScanCategories() {
		if err := ctx.Err(); err != nil {
			return statediff.Result{}, classify(err, "compare")
		}
		payload, err := m.obs.Scan(ctx, category)
		if err != nil {
			return statediff.Result{}, classify(err, "compare")
		}
		current = current.WithSection(category, payload)
	}
	// Notes are not observable; carry them over so they never show up as
	// spuriously removed.
	if notes, ok := stored.Section(statedoc.CategoryNotes); ok {
		current = current.WithSection(statedoc.CategoryNotes, notes)
	}

	return statediff.Compare(stored, current), nil
}

// Diff compares the persisted document against a caller-supplied document
// (validated and migrated first) instead of a fresh scan.
func (m *Manager) Diff(ctx context.Context, raw []byte) (statediff.Result, error) {
	stored, err := m.store.Read()
	if err != nil {
		if stderrors.Is(err, statestore.ErrNotFound) {
			return statediff.Result{}, classify(ErrNoState, "diff")
		}
		return statediff.Result{}, classify(err, "diff")
	}
	supplied, err := decodeSupplied(raw)
	if err != nil {
		return statediff.Result{}, classify(err, "diff")
	}
	return statediff.Compare(stored, supplied), nil
}

// Export writes the persisted document to sink in RFC 8785 canonical form.
// It never re-scans; a stale document exports as-is.
func (m *Manager) Export(ctx context.Context, sink io.Writer) error {
	document, err := m.store.Read()
	if err != nil {
		if stderrors.Is(err, statestore.ErrNotFound) {
			return classify(ErrNoState, "export")
		}
		return classify(err, "export")
	}
	encoded, err := document.Encode()
	if err != nil {
		return classify(err, "export")
	}
	canonical, err := canonjson.Canonicalize(encoded)
	if err != nil {
		return classify(err, "export")
	}
	if _, err := sink.Write(append(canonical, '\n')); err != nil {
		return classify(fmt.Errorf("write export: %w", err), "export")
	}
	return nil
}

// Import validates a supplied document, migrates it to the current schema,
// and persists it wholesale, replacing any existing state.
func (m *Manager) Import(ctx context.Context, raw []byte) (statedoc.Document, error) {
	document, err := decodeSupplied(raw)
	if err != nil {
		return statedoc.Document{}, classify(err, "import")
	}
	if err := m.store.Write(document); err != nil {
		return statedoc.Document{}, classify(err, "import")
	}
	m.logger.Info("state imported", "path", m.store.Path(), "schema_version", document.SchemaVersion())
	return document, nil
}

// Watch returns the current value at path plus the document's capture
// timestamp, with no side effects.
func (m *Manager) Watch(ctx context.Context, path string) (docvalue.Value, time.Time, error) {
	document, err := m.store.Read()
	if err != nil {
		if stderrors.Is(err, statestore.ErrNotFound) {
			return docvalue.Value{}, time.Time{}, classify(ErrNoState, "watch")
		}
		return docvalue.Value{}, time.Time{}, classify(err, "watch")
	}
	value, err := fieldpath.Get(document.Tree(), path)
	if err != nil {
		return docvalue.Value{}, time.Time{}, classify(err, "watch")
	}
	return value, document.LastUpdated(), nil
}

func (m *Manager) scanFunc(category statedoc.Category) scancache.ScanFunc {
	return func(ctx context.Context) (docvalue.Value, error) {
		return m.obs.Scan(ctx, category)
	}
}

// decodeSupplied validates a caller-supplied document against the JSON
// schema before decoding and migrating it.
func decodeSupplied(raw []byte) (statedoc.Document, error) {
	if err := statedoc.ValidateEnvelope(raw); err != nil {
		return statedoc.Document{}, err
	}
	return statedoc.Decode(raw)
}
