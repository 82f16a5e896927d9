// Package sources provides quote sources used to seed the store.
package sources

import (
	"context"
	"time"

	"github.com/jsamuelsen/trmnl-quotes/internal/domain"
)

const (
	dailyStoicSource = "Daily Stoic"
	marcusAurelius   = "Marcus Aurelius"
)

var dailyStoicTexts = []string{
	"The obstacle is the way.",
	"You have power over your mind - not outside events. Realize this, and you will find strength.",
	"It is not death that a man should fear, but he should fear never beginning to live.",
	"The best revenge is not to be like your enemy.",
	"Waste no more time arguing what a good man should be. Be one.",
}

// DailyStoic is a fixed, offline set of Marcus Aurelius quotes.
type DailyStoic struct {
	now func() time.Time
}

// NewDailyStoic creates the source. A nil clock means time.Now.
func NewDailyStoic(now func() time.Time) *DailyStoic {
	if now == nil {
		now = time.Now
	}

	return &DailyStoic{now: now}
}

// Name implements ports.QuoteSource.
func (d *DailyStoic) Name() string {
	return "daily-stoic"
}

// Fetch returns a fresh copy of the five quotes, stamped with the current time.
func (d *DailyStoic) Fetch(ctx context.Context) ([]domain.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stamp := d.now()
	quotes := make([]domain.Quote, 0, len(dailyStoicTexts))

	for _, text := range dailyStoicTexts {
		quotes = append(quotes, domain.Quote{
			Text:      text,
			Author:    marcusAurelius,
			Source:    dailyStoicSource,
			DateAdded: stamp,
		})
	}

	return quotes, nil
}
