// Package storage holds the persisted quote record shared by the store
// backends, plus the merge rules every backend applies.
package storage

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/jsamuelsen/trmnl-quotes/internal/domain"
)

// HealthCheckName is the readiness check name used by every backend.
const HealthCheckName = "quote-store"

// naiveTimestampLayout is the zone-less ISO-8601 form found in older files.
const naiveTimestampLayout = "2006-01-02T15:04:05.999999999"

// Record is the persisted JSON shape of one quote.
type Record struct {
	ID        int       `json:"id"`
	Text      string    `json:"text"`
	Author    string    `json:"author,omitempty"`
	Source    string    `json:"source,omitempty"`
	DateAdded Timestamp `json:"date_added"`
}

// FromDomain converts a quote into its persisted form.
func FromDomain(q domain.Quote) Record {
	return Record{
		ID:        q.ID,
		Text:      q.Text,
		Author:    q.Author,
		Source:    q.Source,
		DateAdded: Timestamp(q.DateAdded),
	}
}

// ToDomain converts the record back, filling default attribution.
func (r Record) ToDomain() domain.Quote {
	q := domain.Quote{
		ID:        r.ID,
		Text:      r.Text,
		Author:    r.Author,
		Source:    r.Source,
		DateAdded: time.Time(r.DateAdded),
	}
	q.ApplyDefaults()

	return q
}

// Valid reports whether the record carries quote text.
func (r Record) Valid() bool {
	return strings.TrimSpace(r.Text) != ""
}

// Timestamp marshals as RFC 3339 with nanoseconds and also parses the
// zone-less form, which is read as local time.
type Timestamp time.Time

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).Format(time.RFC3339Nano))
}

// UnmarshalJSON implements json.Unmarshaler. Unparseable values become the
// zero time rather than failing the whole document.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		*t = Timestamp{}
		return nil //nolint:nilerr // tolerate non-string timestamps
	}

	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		*t = Timestamp(parsed)
		return nil
	}

	if parsed, err := time.ParseInLocation(naiveTimestampLayout, raw, time.Local); err == nil {
		*t = Timestamp(parsed)
		return nil
	}

	*t = Timestamp{}

	return nil
}

// NextID returns max(id)+1 over the given quotes, starting at 1.
func NextID(quotes []domain.Quote) int {
	maxID := 0
	for _, q := range quotes {
		if q.ID > maxID {
			maxID = q.ID
		}
	}

	return maxID + 1
}

// AssignIDs returns a copy of quotes in which every quote without a positive
// id, or repeating an id seen earlier in the slice, gets the next id after
// the current maximum. Order is kept.
func AssignIDs(quotes []domain.Quote) []domain.Quote {
	out := slices.Clone(quotes)
	next := NextID(out)
	seen := make(map[int]struct{}, len(out))

	for i := range out {
		if _, dup := seen[out[i].ID]; out[i].ID <= 0 || dup {
			out[i].ID = next
			next++
		}

		seen[out[i].ID] = struct{}{}
	}

	return out
}

// TextSet indexes the texts already stored.
type TextSet map[string]struct{}

// NewTextSet builds the dedup index for a collection.
func NewTextSet(quotes []domain.Quote) TextSet {
	seen := make(TextSet, len(quotes))
	for _, q := range quotes {
		seen[q.Text] = struct{}{}
	}

	return seen
}

// Claim records text as seen and reports whether it was new.
func (s TextSet) Claim(text string) bool {
	if _, ok := s[text]; ok {
		return false
	}

	s[text] = struct{}{}

	return true
}

// PrepareCandidate normalizes a merge candidate. It returns false when the
// candidate has no text.
func PrepareCandidate(c domain.Quote, now time.Time) (domain.Quote, bool) {
	if strings.TrimSpace(c.Text) == "" {
		return domain.Quote{}, false
	}

	c.ApplyDefaults()
	if c.DateAdded.IsZero() {
		c.DateAdded = now
	}

	return c, true
}
