// Package domain contains core business entities and rules.
package domain

import (
	"strings"
	"time"
)

// Default attribution applied when a quote is stored without one.
const (
	DefaultAuthor = "Unknown"
	DefaultSource = "Custom"
)

// Quote is one stored text record with its attribution and insertion time.
// This is a domain entity - it has no knowledge of storage or transport formats.
type Quote struct {
	// ID is the sequential identifier assigned by the store at insertion.
	ID int

	// Text is the quotation itself. It is also the dedup key for merges.
	Text string

	// Author is who said or wrote the quote.
	Author string

	// Source is where the quote came from (a book, a feed, "Custom").
	Source string

	// DateAdded is when the store first accepted the quote. It never changes.
	DateAdded time.Time
}

// QuoteFields carries the caller-supplied attributes of a new quote.
type QuoteFields struct {
	Text   string
	Author string
	Source string
}

// NewQuote validates the fields, fills default attribution and stamps the
// insertion time. The ID is left zero; stores assign it.
func NewQuote(fields QuoteFields, now time.Time) (*Quote, error) {
	text := strings.TrimSpace(fields.Text)
	if text == "" {
		return nil, NewValidationError("text", "quote text is required")
	}

	q := &Quote{
		Text:      fields.Text,
		Author:    fields.Author,
		Source:    fields.Source,
		DateAdded: now,
	}
	q.ApplyDefaults()

	return q, nil
}

// ApplyDefaults fills empty author and source with the default attribution.
func (q *Quote) ApplyDefaults() {
	if strings.TrimSpace(q.Author) == "" {
		q.Author = DefaultAuthor
	}

	if strings.TrimSpace(q.Source) == "" {
		q.Source = DefaultSource
	}
}

// Delivery is one quote pushed to an external display, stamped with the
// moment of dispatch.
type Delivery struct {
	Quote     Quote
	Timestamp time.Time
}
