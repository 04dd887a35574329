// Package storewatch follows a single field of the state file across
// external rewrites. The store replaces the file via rename, so the watcher
// listens on the parent directory and filters events by name.
package storewatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/davidahmann/hoststate/core/docvalue"
)

// ReadFunc resolves the watched field to its current value and capture
// timestamp. Read failures are reported to the subscriber, not fatal.
type ReadFunc func(ctx context.Context) (docvalue.Value, time.Time, error)

// Event is one observation of the watched field.
type Event struct {
	Value      docvalue.Value
	CapturedAt time.Time
	Err        error
}

type Watcher struct {
	statePath string
	read      ReadFunc
	debounce  time.Duration
}

type Option func(*Watcher)

// WithDebounce sets the quiet period after a filesystem event before the
// field is re-read. Rename-based replacement produces event bursts.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

func New(statePath string, read ReadFunc, opts ...Option) *Watcher {
	watcher := &Watcher{
		statePath: filepath.Clean(statePath),
		read:      read,
		debounce:  100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(watcher)
	}
	return watcher
}

// Follow emits the current value, then one Event per observed change of the
// state file, until ctx is cancelled. A read failure after a change is
// delivered as an Event with Err set and following continues.
func (w *Watcher) Follow(ctx context.Context, emit func(Event)) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start file watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.statePath)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.statePath), err)
	}

	last := w.emitCurrent(ctx, emit, Event{})

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return errors.New("file watcher closed unexpectedly")
			}
			if filepath.Clean(event.Name) != w.statePath {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(w.debounce)
			}
		case <-fire:
			timer = nil
			fire = nil
			last = w.emitCurrent(ctx, emit, last)
		case watchErr, ok := <-fsw.Errors:
			if !ok {
				return errors.New("file watcher closed unexpectedly")
			}
			emit(Event{Err: watchErr})
		}
	}
}

// emitCurrent reads the field and emits it when it differs from the
// previous observation.
func (w *Watcher) emitCurrent(ctx context.Context, emit func(Event), previous Event) Event {
	value, capturedAt, err := w.read(ctx)
	if err != nil {
		emit(Event{Err: err})
		return previous
	}
	current := Event{Value: value, CapturedAt: capturedAt}
	if previous.Value.IsValid() && previous.Value.Equal(value) && previous.CapturedAt.Equal(capturedAt) {
		return previous
	}
	emit(current)
	return current
}
