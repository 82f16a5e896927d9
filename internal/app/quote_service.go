// Package app contains the use cases of the quote service. It coordinates
// the domain with the store, the seed source and the webhook notifier
// through ports, and knows nothing about HTTP.
package app

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/jsamuelsen/trmnl-quotes/internal/domain"
	"github.com/jsamuelsen/trmnl-quotes/internal/platform/logging"
	"github.com/jsamuelsen/trmnl-quotes/internal/platform/metrics"
	"github.com/jsamuelsen/trmnl-quotes/internal/ports"
)

// Picker returns an index in [0, n). n is always positive.
type Picker func(n int) int

// QuoteService implements the quote use cases.
type QuoteService struct {
	repo    ports.QuoteRepository
	source  ports.QuoteSource
	exec    *Executor
	metrics *metrics.Metrics
	pick    Picker
	logger  *slog.Logger
}

// QuoteServiceConfig contains the dependencies of the quote service.
type QuoteServiceConfig struct {
	// Repository is required.
	Repository ports.QuoteRepository

	// Source feeds Scrape and SeedIfEmpty. Required.
	Source ports.QuoteSource

	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// Picker selects the random quote. Defaults to math/rand/v2.
	Picker Picker
}

// ScrapeResult reports the outcome of merging the seed source.
type ScrapeResult struct {
	Added int
	Total int
}

// NewQuoteService creates the service. It panics when a required dependency
// is missing, since that is a wiring bug.
func NewQuoteService(cfg QuoteServiceConfig) *QuoteService {
	if cfg.Repository == nil {
		panic("app: QuoteServiceConfig.Repository is required")
	}

	if cfg.Source == nil {
		panic("app: QuoteServiceConfig.Source is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pick := cfg.Picker
	if pick == nil {
		pick = rand.IntN
	}

	logger = logger.With(slog.String("component", "app.QuoteService"))

	return &QuoteService{
		repo:    cfg.Repository,
		source:  cfg.Source,
		exec:    NewExecutor(logger),
		metrics: cfg.Metrics,
		pick:    pick,
		logger:  logger,
	}
}

// List returns every stored quote in insertion order.
func (s *QuoteService) List(ctx context.Context) ([]domain.Quote, error) {
	quotes, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}

	s.metrics.SetQuotesStored(len(quotes))

	return quotes, nil
}

// Random returns one stored quote chosen uniformly. It returns a
// domain.NotFoundError when the store is empty.
func (s *QuoteService) Random(ctx context.Context) (*domain.Quote, error) {
	quotes, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}

	return s.pickFrom(quotes)
}

// Create validates and stores a new quote.
func (s *QuoteService) Create(ctx context.Context, fields domain.QuoteFields) (*domain.Quote, error) {
	op := Operation[domain.QuoteFields, *domain.Quote, *domain.Quote, *domain.Quote]{
		Name: "CreateQuote",
		Validate: func(_ context.Context, in domain.QuoteFields) error {
			if strings.TrimSpace(in.Text) == "" {
				return domain.NewValidationError("text", "quote text is required")
			}

			return nil
		},
		Perform: func(ctx context.Context, in domain.QuoteFields) (*domain.Quote, error) {
			return s.repo.Add(ctx, in)
		},
		Verify: func(_ context.Context, _ domain.QuoteFields, q *domain.Quote) (*domain.Quote, error) {
			if q == nil || q.ID <= 0 {
				return nil, domain.NewUnavailableError("quote-store", "no id assigned")
			}

			return q, nil
		},
		Respond: func(ctx context.Context, _ domain.QuoteFields, q *domain.Quote) (*domain.Quote, error) {
			s.metrics.AddQuotes("api", 1)
			logging.FromContextOr(ctx, s.logger).InfoContext(ctx, "quote created",
				slog.Int("quote_id", q.ID),
				slog.String("author", q.Author),
			)

			return q, nil
		},
	}

	return Execute(ctx, s.exec, op, fields)
}

// Scrape merges the seed source into the store.
func (s *QuoteService) Scrape(ctx context.Context) (*ScrapeResult, error) {
	return s.merge(ctx, "scrape")
}

// SeedIfEmpty merges the seed source only when the store holds no quotes.
// It returns the number of quotes added.
func (s *QuoteService) SeedIfEmpty(ctx context.Context) (int, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return 0, err
	}

	s.metrics.SetQuotesStored(count)

	if count > 0 {
		s.logger.DebugContext(ctx, "store already populated, skipping seed", slog.Int("count", count))
		return 0, nil
	}

	res, err := s.merge(ctx, "seed")
	if err != nil {
		return 0, err
	}

	return res.Added, nil
}

// Count returns the number of stored quotes.
func (s *QuoteService) Count(ctx context.Context) (int, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return 0, err
	}

	s.metrics.SetQuotesStored(count)

	return count, nil
}

func (s *QuoteService) merge(ctx context.Context, origin string) (*ScrapeResult, error) {
	var added int

	op := Operation[string, []domain.Quote, []domain.Quote, *ScrapeResult]{
		Name: "MergeQuotes",
		Perform: func(ctx context.Context, _ string) ([]domain.Quote, error) {
			return s.source.Fetch(ctx)
		},
		Verify: func(_ context.Context, _ string, fetched []domain.Quote) ([]domain.Quote, error) {
			candidates := make([]domain.Quote, 0, len(fetched))
			for _, q := range fetched {
				if strings.TrimSpace(q.Text) != "" {
					candidates = append(candidates, q)
				}
			}

			return candidates, nil
		},
		Archive: func(ctx context.Context, _ string, candidates []domain.Quote) error {
			n, err := s.repo.Merge(ctx, candidates)
			added = n

			return err
		},
		Respond: func(ctx context.Context, origin string, _ []domain.Quote) (*ScrapeResult, error) {
			total, err := s.repo.Count(ctx)
			if err != nil {
				return nil, err
			}

			s.metrics.AddQuotes(origin, added)
			s.metrics.SetQuotesStored(total)

			logging.FromContextOr(ctx, s.logger).InfoContext(ctx, "quotes merged",
				slog.String("source", s.source.Name()),
				slog.String("origin", origin),
				slog.Int("added", added),
				slog.Int("total", total),
			)

			return &ScrapeResult{Added: added, Total: total}, nil
		},
	}

	return Execute(ctx, s.exec, op, origin)
}

func (s *QuoteService) pickFrom(quotes []domain.Quote) (*domain.Quote, error) {
	if len(quotes) == 0 {
		return nil, domain.NewNotFoundError("quote", "")
	}

	q := quotes[s.pick(len(quotes))]

	return &q, nil
}
