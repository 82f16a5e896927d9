// Package boltdb implements the quote repository on an embedded bbolt
// database. Quotes live in one bucket keyed by the big-endian bucket
// sequence, so a cursor walks them in insertion order whatever their ids.
package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/jsamuelsen/trmnl-quotes/internal/adapters/storage"
	"github.com/jsamuelsen/trmnl-quotes/internal/domain"
	"github.com/jsamuelsen/trmnl-quotes/internal/platform/logging"
)

var bucketName = []byte("quotes")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("quote store closed")

// Config holds store settings.
type Config struct {
	// Path is the database file. Parent directories are created.
	Path string

	// OpenTimeout bounds waiting for the file lock. Default 2s.
	OpenTimeout time.Duration

	Logger *slog.Logger

	// Now stamps new quotes. Defaults to time.Now.
	Now func() time.Time
}

// Store is a bbolt-backed quote repository. bbolt serializes write
// transactions, so every mutation is one atomic update.
type Store struct {
	db     *bolt.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (or creates) the database and its bucket.
func Open(cfg *Config) (*Store, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, errors.New("boltdb: path is required")
	}

	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("opening bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating quotes bucket: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Store{
		db:     db,
		logger: logger.With(slog.String("component", "boltdb.Store"), slog.String("path", cfg.Path)),
		now:    now,
	}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns all quotes in insertion order. Undecodable records are
// skipped.
func (s *Store) Load(ctx context.Context) ([]domain.Quote, error) {
	quotes := []domain.Quote{}

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}

		var err error
		quotes, err = s.all(ctx, b)

		return err
	})
	if err != nil {
		if errors.Is(err, bolt.ErrDatabaseNotOpen) {
			return nil, ErrClosed
		}

		return nil, fmt.Errorf("reading quotes: %w", err)
	}

	return quotes, nil
}

// Save replaces the bucket contents with quotes, keeping their order.
// Quotes without a positive, unique id are numbered after the highest one.
func (s *Store) Save(_ context.Context, quotes []domain.Quote) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketName) != nil {
			if err := tx.DeleteBucket(bucketName); err != nil {
				return err
			}
		}

		b, err := tx.CreateBucket(bucketName)
		if err != nil {
			return err
		}

		for _, q := range storage.AssignIDs(quotes) {
			if err := appendQuote(b, q); err != nil {
				return err
			}
		}

		return nil
	})
}

// Add appends a new quote numbered after the highest stored id.
func (s *Store) Add(ctx context.Context, fields domain.QuoteFields) (*domain.Quote, error) {
	q, err := domain.NewQuote(fields, s.now())
	if err != nil {
		return nil, err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)

		existing, err := s.all(ctx, b)
		if err != nil {
			return err
		}

		q.ID = storage.NextID(existing)

		return appendQuote(b, *q)
	})
	if err != nil {
		return nil, fmt.Errorf("adding quote: %w", err)
	}

	return q, nil
}

// Merge appends candidates with unseen text in a single transaction.
func (s *Store) Merge(ctx context.Context, candidates []domain.Quote) (int, error) {
	now := s.now()
	added := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)

		existing, err := s.all(ctx, b)
		if err != nil {
			return err
		}

		seen := storage.NewTextSet(existing)
		nextID := storage.NextID(existing)

		for _, c := range candidates {
			q, ok := storage.PrepareCandidate(c, now)
			if !ok || !seen.Claim(q.Text) {
				continue
			}

			q.ID = nextID
			nextID++

			if err := appendQuote(b, q); err != nil {
				return err
			}

			added++
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("merging quotes: %w", err)
	}

	return added, nil
}

// Count returns the number of stored quotes.
func (s *Store) Count(ctx context.Context) (int, error) {
	quotes, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}

	return len(quotes), nil
}

// Name implements ports.HealthChecker.
func (s *Store) Name() string {
	return storage.HealthCheckName
}

// Check verifies the database answers a read transaction.
func (s *Store) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketName) == nil {
			return errors.New("quotes bucket missing")
		}

		return nil
	})
}

func (s *Store) all(ctx context.Context, b *bolt.Bucket) ([]domain.Quote, error) {
	quotes := []domain.Quote{}

	err := b.ForEach(func(k, v []byte) error {
		if q, ok := s.decode(ctx, k, v); ok {
			quotes = append(quotes, q)
		}

		return nil
	})

	return quotes, err
}

func (s *Store) decode(ctx context.Context, k, v []byte) (domain.Quote, bool) {
	var r storage.Record
	if err := json.Unmarshal(v, &r); err != nil || !r.Valid() {
		logging.FromContextOr(ctx, s.logger).WarnContext(ctx, "skipping malformed quote record",
			slog.Uint64("key", binary.BigEndian.Uint64(padKey(k))))

		return domain.Quote{}, false
	}

	return r.ToDomain(), true
}

// appendQuote stores q under the next bucket sequence.
func appendQuote(b *bolt.Bucket, q domain.Quote) error {
	enc, err := json.Marshal(storage.FromDomain(q))
	if err != nil {
		return err
	}

	seq, err := b.NextSequence()
	if err != nil {
		return err
	}

	return b.Put(itob(seq), enc)
}

func itob(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)

	return buf
}

func padKey(k []byte) []byte {
	if len(k) >= 8 {
		return k[:8]
	}

	buf := make([]byte, 8)
	copy(buf[8-len(k):], k)

	return buf
}
