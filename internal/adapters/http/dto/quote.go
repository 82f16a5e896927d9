package dto

import (
	"fmt"
	"time"

	"github.com/jsamuelsen/trmnl-quotes/internal/app"
	"github.com/jsamuelsen/trmnl-quotes/internal/domain"
)

// CreateQuoteRequest is the body of POST /api/quotes. Author and source are
// optional and default to "Unknown" and "Custom".
type CreateQuoteRequest struct {
	Text   string `json:"text"   validate:"notempty"`
	Author string `json:"author"`
	Source string `json:"source"`
}

// Fields converts the request to the domain input.
func (r *CreateQuoteRequest) Fields() domain.QuoteFields {
	return domain.QuoteFields{
		Text:   r.Text,
		Author: r.Author,
		Source: r.Source,
	}
}

// QuoteResponse is the wire form of a stored quote.
type QuoteResponse struct {
	ID        int       `json:"id"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	Source    string    `json:"source"`
	DateAdded time.Time `json:"date_added"`
}

// NewQuoteResponse converts a domain quote.
func NewQuoteResponse(q *domain.Quote) QuoteResponse {
	return QuoteResponse{
		ID:        q.ID,
		Text:      q.Text,
		Author:    q.Author,
		Source:    q.Source,
		DateAdded: q.DateAdded,
	}
}

// NewQuoteListResponse converts a quote list. It never returns nil so an
// empty store encodes as [].
func NewQuoteListResponse(quotes []domain.Quote) []QuoteResponse {
	out := make([]QuoteResponse, 0, len(quotes))
	for i := range quotes {
		out = append(out, NewQuoteResponse(&quotes[i]))
	}

	return out
}

// ScrapeResponse is returned by POST /api/scrape.
type ScrapeResponse struct {
	Message     string `json:"message"`
	AddedCount  int    `json:"added_count"`
	TotalQuotes int    `json:"total_quotes"`
}

// NewScrapeResponse converts a merge result.
func NewScrapeResponse(res *app.ScrapeResult) ScrapeResponse {
	return ScrapeResponse{
		Message:     fmt.Sprintf("Added %d new quotes", res.Added),
		AddedCount:  res.Added,
		TotalQuotes: res.Total,
	}
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status          string    `json:"status"`
	QuotesCount     int       `json:"quotes_count"`
	IntervalMinutes int       `json:"interval_minutes"`
	Timestamp       time.Time `json:"timestamp"`
}

// StatusResponse is the {"status","message"} shape used by the dispatch
// trigger and the TRMNL lifecycle endpoints.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
