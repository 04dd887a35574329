// Package observer defines the system observation boundary: something that,
// given a category, returns the current facts for it. The engine treats the
// observer as opaque; it must be safe to call repeatedly.
package observer

import (
	"context"
	"fmt"

	"github.com/davidahmann/hoststate/core/docvalue"
	"github.com/davidahmann/hoststate/core/statedoc"
)

// Observer produces a fresh payload for one category. Implementations must
// honor the context deadline; the engine never retries on their behalf.
type Observer interface {
	Scan(ctx context.Context, category statedoc.Category) (docvalue.Value, error)
}

// Error wraps a failed scan with its category so callers can tell an
// observation failure apart from "no data available" (an empty payload).
type Error struct {
	Category statedoc.Category
	Cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("observe %s: %v", e.Category, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Func adapts a plain function to the Observer interface.
type Func func(ctx context.Context, category statedoc.Category) (docvalue.Value, error)

func (f Func) Scan(ctx context.Context, category statedoc.Category) (docvalue.Value, error) {
	return f(ctx, category)
}
