package boltdb

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/jsamuelsen/trmnl-quotes/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(&Config{
		Path: filepath.Join(t.TempDir(), "data", "quotes.db"),
		Now:  func() time.Time { return time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(&Config{})
	require.Error(t, err)

	_, err = Open(nil)
	require.Error(t, err)
}

func TestLoad_Empty(t *testing.T) {
	store := openTestStore(t)

	quotes, err := store.Load(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, quotes)
	assert.Empty(t, quotes)
}

func TestAdd_SequentialIDs(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 12; i++ {
		q, err := store.Add(ctx, domain.QuoteFields{Text: fmt.Sprintf("q%d", i)})
		require.NoError(t, err)
		assert.Equal(t, i, q.ID)
	}

	quotes, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, quotes, 12)

	// Big-endian sequence keys keep order past single digits.
	for i, q := range quotes {
		assert.Equal(t, i+1, q.ID)
	}
}

func TestAdd_Validation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, domain.QuoteFields{Text: ""})

	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSave_ReplacesAndContinuesAfterMaxID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, domain.QuoteFields{Text: "old"})
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, []domain.Quote{
		{ID: 4, Text: "four", Author: "a", Source: "s"},
	}))

	q, err := store.Add(ctx, domain.QuoteFields{Text: "five"})
	require.NoError(t, err)
	assert.Equal(t, 5, q.ID)

	quotes, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, "four", quotes[0].Text)
}

func TestSave_KeepsOrderAndNumbersMissingIDs(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, []domain.Quote{
		{ID: 3, Text: "C"}, {ID: 1, Text: "A"}, {Text: "X"}, {Text: "Y"},
	}))

	quotes, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, quotes, 4)

	var texts []string
	var ids []int

	for _, q := range quotes {
		texts = append(texts, q.Text)
		ids = append(ids, q.ID)
	}

	assert.Equal(t, []string{"C", "A", "X", "Y"}, texts)
	assert.Equal(t, []int{3, 1, 4, 5}, ids)

	q, err := store.Add(ctx, domain.QuoteFields{Text: "Z"})
	require.NoError(t, err)
	assert.Equal(t, 6, q.ID)

	quotes, err = store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, quotes, 5)
	assert.Equal(t, "Z", quotes[4].Text)
}

func TestSave_RenumbersDuplicateIDs(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, []domain.Quote{
		{ID: 2, Text: "first"}, {ID: 2, Text: "second"},
	}))

	quotes, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, 2, quotes[0].ID)
	assert.Equal(t, 3, quotes[1].ID)
	assert.Equal(t, "second", quotes[1].Text)
}

func TestMerge_Dedup(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, domain.QuoteFields{Text: "existing"})
	require.NoError(t, err)

	candidates := []domain.Quote{
		{Text: "existing"},
		{Text: "new"},
		{Text: "new"},
		{Text: " "},
	}

	added, err := store.Merge(ctx, candidates)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	added, err = store.Merge(ctx, candidates)
	require.NoError(t, err)
	assert.Zero(t, added)

	quotes, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, 2, quotes[1].ID)
	assert.Equal(t, domain.DefaultSource, quotes[1].Source)
}

func TestLoad_SkipsMalformedRecords(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, domain.QuoteFields{Text: "good"})
	require.NoError(t, err)

	require.NoError(t, store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(itob(99), []byte("{broken"))
	}))

	quotes, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "good", quotes[0].Text)
}

func TestAdd_Concurrent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()

			_, err := store.Add(ctx, domain.QuoteFields{Text: fmt.Sprintf("c%d", n)})
			assert.NoError(t, err)
		}(i)
	}

	wg.Wait()

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, count)
}

func TestCheck(t *testing.T) {
	store := openTestStore(t)

	assert.Equal(t, "quote-store", store.Name())
	require.NoError(t, store.Check(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, store.Check(ctx))
}
