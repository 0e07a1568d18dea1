package repos

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mugisham37/product-management-interview-project/internal/models"
	"github.com/stretchr/testify/require"
)

// fakeClock returns successive times from a script, repeating the last one.
type fakeClock struct {
	mu    sync.Mutex
	times []time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.times[0]
	if len(c.times) > 1 {
		c.times = c.times[1:]
	}
	return t
}

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type storeSuite struct {
	open func(t *testing.T, opts ...Option) ProductStore
}

func (s storeSuite) run(t *testing.T) {
	t.Run("CreateAndGet", s.testCreateAndGet)
	t.Run("UpdateBumpsRevision", s.testUpdateBumpsRevision)
	t.Run("MutateErrorWritesNothing", s.testMutateErrorWritesNothing)
	t.Run("LastModifiedNeverGoesBack", s.testLastModifiedNeverGoesBack)
	t.Run("ListAndStamps", s.testListAndStamps)
	t.Run("Delete", s.testDelete)
}

func (s storeSuite) testCreateAndGet(t *testing.T) {
	store := s.open(t, WithClock(func() time.Time { return baseTime }))
	ctx := context.Background()

	p := &models.Product{Name: "Widget", Price: 10, Quantity: 5, IsActive: true}
	require.NoError(t, store.Create(ctx, p))
	require.NotEmpty(t, p.ID)
	require.Equal(t, int64(1), p.Revision)
	require.True(t, p.UpdatedAt.Equal(baseTime))

	got, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, "Widget", got.Name)
	require.Equal(t, 10.0, got.Price)
	require.Equal(t, 5, got.Quantity)
	require.True(t, got.IsActive)
	require.Equal(t, int64(1), got.Revision)
	require.True(t, got.UpdatedAt.Equal(baseTime))

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func (s storeSuite) testUpdateBumpsRevision(t *testing.T) {
	clock := &fakeClock{times: []time.Time{baseTime, baseTime.Add(time.Second), baseTime.Add(2 * time.Second)}}
	store := s.open(t, WithClock(clock.Now))
	ctx := context.Background()

	p := &models.Product{Name: "Widget", Price: 10, Quantity: 5}
	require.NoError(t, store.Create(ctx, p))

	for i := 0; i < 2; i++ {
		_, err := store.Update(ctx, p.ID, func(cur *models.Product) error {
			cur.Price += 1
			return nil
		})
		require.NoError(t, err)
	}

	got, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), got.Revision)
	require.Equal(t, 12.0, got.Price)
	require.Equal(t, 5, got.Quantity)
	require.True(t, got.UpdatedAt.Equal(baseTime.Add(2*time.Second)))
	require.True(t, got.CreatedAt.Equal(baseTime))

	_, err = store.Update(ctx, "missing", func(*models.Product) error { return nil })
	require.ErrorIs(t, err, ErrNotFound)
}

func (s storeSuite) testMutateErrorWritesNothing(t *testing.T) {
	store := s.open(t)
	ctx := context.Background()

	p := &models.Product{Name: "Widget"}
	require.NoError(t, store.Create(ctx, p))

	refused := context.Canceled
	_, err := store.Update(ctx, p.ID, func(cur *models.Product) error {
		cur.Name = "changed"
		return refused
	})
	require.ErrorIs(t, err, refused)

	got, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, "Widget", got.Name)
	require.Equal(t, int64(1), got.Revision)
	require.True(t, got.UpdatedAt.Equal(p.UpdatedAt))
}

func (s storeSuite) testLastModifiedNeverGoesBack(t *testing.T) {
	clock := &fakeClock{times: []time.Time{baseTime, baseTime.Add(-time.Hour)}}
	store := s.open(t, WithClock(clock.Now))
	ctx := context.Background()

	p := &models.Product{Name: "Widget"}
	require.NoError(t, store.Create(ctx, p))
	updated, err := store.Update(ctx, p.ID, func(cur *models.Product) error { return nil })
	require.NoError(t, err)
	require.Equal(t, int64(2), updated.Revision)
	require.True(t, updated.UpdatedAt.Equal(baseTime))
}

func (s storeSuite) testListAndStamps(t *testing.T) {
	clock := &fakeClock{times: []time.Time{baseTime, baseTime.Add(time.Second)}}
	store := s.open(t, WithClock(clock.Now))
	ctx := context.Background()

	a := &models.Product{Name: "a"}
	b := &models.Product{Name: "b"}
	require.NoError(t, store.Create(ctx, a))
	require.NoError(t, store.Create(ctx, b))

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "a", list[0].Name)
	require.Equal(t, "b", list[1].Name)

	stamps, err := store.ListStamps(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []models.VersionStamp{
		{ID: a.ID, Revision: 1, UpdatedAt: baseTime},
		{ID: b.ID, Revision: 1, UpdatedAt: baseTime.Add(time.Second)},
	}, stamps)
}

func (s storeSuite) testDelete(t *testing.T) {
	store := s.open(t)
	ctx := context.Background()

	p := &models.Product{Name: "Widget"}
	require.NoError(t, store.Create(ctx, p))
	require.NoError(t, store.Delete(ctx, p.ID))
	require.ErrorIs(t, store.Delete(ctx, p.ID), ErrNotFound)
	_, err := store.Get(ctx, p.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
