// Package ports defines the contracts the application layer depends on.
// Adapters implement these interfaces; the app package never imports an
// adapter directly.
//
// Conventions:
//   - Context is always the first parameter
//   - Values crossing a port are domain types
//   - Failures are reported with domain errors (ErrNotFound, ErrUnavailable, ...)
package ports

import (
	"context"

	"github.com/jsamuelsen/trmnl-quotes/internal/domain"
)

// QuoteRepository is the persistent quote collection.
//
// Every mutating call is a single load-modify-save unit; implementations
// serialize them so concurrent writers never lose updates.
type QuoteRepository interface {
	// Load returns all quotes in insertion order. A missing, empty or
	// unreadable backing store yields an empty slice and no error.
	Load(ctx context.Context) ([]domain.Quote, error)

	// Save replaces the whole collection.
	Save(ctx context.Context, quotes []domain.Quote) error

	// Add validates the fields, assigns the next id and a timestamp, and
	// appends the new quote. Returns a domain.ValidationError on empty text.
	Add(ctx context.Context, fields domain.QuoteFields) (*domain.Quote, error)

	// Merge appends every candidate whose text is not already stored and
	// returns how many were added. Candidates repeating an earlier
	// candidate's text are skipped too.
	Merge(ctx context.Context, candidates []domain.Quote) (int, error)

	// Count returns the number of stored quotes.
	Count(ctx context.Context) (int, error)
}

// QuoteSource produces candidate quotes for seeding the store.
type QuoteSource interface {
	// Name identifies the source in logs.
	Name() string

	// Fetch returns candidate quotes. IDs are ignored by the store.
	Fetch(ctx context.Context) ([]domain.Quote, error)
}

// QuoteNotifier pushes a single quote to an external display.
type QuoteNotifier interface {
	// Notify delivers one quote. Implementations must honor the context
	// deadline and return domain.ErrUnavailable when the receiver is down.
	Notify(ctx context.Context, delivery domain.Delivery) error
}
