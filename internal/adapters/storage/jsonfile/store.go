// Package jsonfile implements the quote repository as a single JSON array
// document on disk.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jsamuelsen/trmnl-quotes/internal/adapters/storage"
	"github.com/jsamuelsen/trmnl-quotes/internal/domain"
	"github.com/jsamuelsen/trmnl-quotes/internal/platform/logging"
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for tolerated read failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used to stamp new quotes.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store persists quotes to one JSON file. A single mutex serializes every
// load-modify-save so concurrent adds never lose updates.
type Store struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
	now    func() time.Time
}

// New creates a store backed by the file at path. The file need not exist.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:   path,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With(
		slog.String("component", "jsonfile.Store"),
		slog.String("path", path),
	)

	return s
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored quotes. Missing, empty or corrupt files yield an
// empty collection.
func (s *Store) Load(ctx context.Context) ([]domain.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(ctx), nil
}

// Save overwrites the collection. Quotes without a positive, unique id are
// numbered after the highest one.
func (s *Store) Save(ctx context.Context, quotes []domain.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.save(ctx, storage.AssignIDs(quotes))
}

// Add appends a new quote with the next id.
func (s *Store) Add(ctx context.Context, fields domain.QuoteFields) (*domain.Quote, error) {
	q, err := domain.NewQuote(fields, s.now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	quotes := s.load(ctx)
	q.ID = storage.NextID(quotes)

	if err := s.save(ctx, append(quotes, *q)); err != nil {
		return nil, err
	}

	return q, nil
}

// Merge appends candidates with unseen text and persists once.
func (s *Store) Merge(ctx context.Context, candidates []domain.Quote) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quotes := s.load(ctx)
	seen := storage.NewTextSet(quotes)
	nextID := storage.NextID(quotes)
	now := s.now()

	added := 0

	for _, c := range candidates {
		q, ok := storage.PrepareCandidate(c, now)
		if !ok || !seen.Claim(q.Text) {
			continue
		}

		q.ID = nextID
		nextID++

		quotes = append(quotes, q)
		added++
	}

	if added == 0 {
		return 0, nil
	}

	if err := s.save(ctx, quotes); err != nil {
		return 0, err
	}

	return added, nil
}

// Count returns the number of stored quotes.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.load(ctx)), nil
}

// Name implements ports.HealthChecker.
func (s *Store) Name() string {
	return storage.HealthCheckName
}

// Check reports unhealthy when the file exists but cannot be read, or when
// its directory is missing.
func (s *Store) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := os.Stat(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("store directory: %w", err)
	}

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	return f.Close()
}

func (s *Store) load(ctx context.Context) []domain.Quote {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log(ctx).WarnContext(ctx, "failed to read quote store, treating as empty",
				slog.Any("error", err))
		}

		return []domain.Quote{}
	}

	if len(data) == 0 {
		return []domain.Quote{}
	}

	var records []storage.Record
	if err := json.Unmarshal(data, &records); err != nil {
		s.log(ctx).WarnContext(ctx, "quote store is not a JSON array, treating as empty",
			slog.Any("error", err))

		return []domain.Quote{}
	}

	quotes := make([]domain.Quote, 0, len(records))

	for _, r := range records {
		if !r.Valid() {
			continue
		}

		quotes = append(quotes, r.ToDomain())
	}

	// Files written by older releases carry no ids.
	return storage.AssignIDs(quotes)
}

func (s *Store) save(ctx context.Context, quotes []domain.Quote) error {
	records := make([]storage.Record, 0, len(quotes))
	for _, q := range quotes {
		records = append(records, storage.FromDomain(q))
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding quotes: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing quote store: %w", err)
	}

	s.log(ctx).DebugContext(ctx, "quote store saved", slog.Int("count", len(quotes)))

	return nil
}

func (s *Store) log(ctx context.Context) *slog.Logger {
	return logging.FromContextOr(ctx, s.logger)
}
