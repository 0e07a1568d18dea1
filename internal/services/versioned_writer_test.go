package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mugisham37/product-management-interview-project/internal/models"
	"github.com/mugisham37/product-management-interview-project/internal/repos"
	"github.com/stretchr/testify/require"
)

func TestRevisionCountsAcceptedWrites(t *testing.T) {
	svc := NewProductService(newTestStore())
	ctx := context.Background()
	p := createWidget(t, svc)
	require.Equal(t, int64(1), p.Revision)

	const writes = 7
	for i := 0; i < writes; i++ {
		rev := p.Revision
		res, err := svc.UpdateWithVersionCheck(ctx, p.ID, models.ProductFields{}, &rev, nil)
		require.NoError(t, err)
		require.Equal(t, OutcomeOK, res.Outcome)
		p = res.Product
	}
	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1+writes), got.Revision)
}

func TestStaleRevisionScenario(t *testing.T) {
	svc := NewProductService(newTestStore())
	ctx := context.Background()

	created := createWidget(t, svc)
	require.Equal(t, int64(1), created.Revision)

	// client A fetches revision 1
	clientA, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)

	// server-side update of the price
	serverRev := int64(1)
	res, err := svc.UpdateWithVersionCheck(ctx, created.ID, models.ProductFields{Price: ptr(12.0)}, &serverRev, nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, res.Outcome)
	require.Equal(t, int64(2), res.Product.Revision)

	staleRev := clientA.Revision
	res, err = svc.UpdateWithVersionCheck(ctx, created.ID, models.ProductFields{Quantity: ptr(6)}, &staleRev, nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeConflict, res.Outcome)
	require.Nil(t, res.Product)
	require.Equal(t, models.FieldVersion, res.Conflict.Reason)
	require.Equal(t, int64(1), *res.Conflict.ExpectedRevision)
	require.Equal(t, int64(2), res.Conflict.CurrentRevision)
	require.Contains(t, res.Conflict.Message, "expected revision 1, current revision 2")

	var ce *ConflictError
	require.ErrorAs(t, res.Err(), &ce)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), got.Revision)
	require.Equal(t, 12.0, got.Price)
	require.Equal(t, 5, got.Quantity)
	require.True(t, got.UpdatedAt.Equal(res.Conflict.ServerLastModified))
}

func TestLastModifiedCheck(t *testing.T) {
	svc := NewProductService(newTestStore())
	ctx := context.Background()
	p := createWidget(t, svc)

	older := p.UpdatedAt.Add(-time.Millisecond)
	res, err := svc.UpdateWithVersionCheck(ctx, p.ID, models.ProductFields{Notes: ptr("x")}, nil, &older)
	require.NoError(t, err)
	require.Equal(t, OutcomeConflict, res.Outcome)
	require.Equal(t, models.FieldUpdatedAt, res.Conflict.Reason)

	unchanged, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), unchanged.Revision)
	require.Equal(t, "", unchanged.Notes)

	same := p.UpdatedAt
	res, err = svc.UpdateWithVersionCheck(ctx, p.ID, models.ProductFields{Notes: ptr("x")}, nil, &same)
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, res.Outcome)
	require.Equal(t, "x", res.Product.Notes)
	require.Equal(t, int64(2), res.Product.Revision)
	require.True(t, res.Product.UpdatedAt.After(p.UpdatedAt))
}

func TestPatchKeepsUntouchedFields(t *testing.T) {
	svc := NewProductService(newTestStore())
	ctx := context.Background()
	p := createWidget(t, svc)

	updated, err := svc.UpdateProduct(ctx, p.ID, models.ProductFields{Category: ptr("tools")})
	require.NoError(t, err)
	require.Equal(t, "tools", updated.Category)
	require.Equal(t, "Widget", updated.Name)
	require.Equal(t, 10.0, updated.Price)
	require.Equal(t, 5, updated.Quantity)
	require.True(t, updated.IsActive)
}

func TestUpdateMissingProduct(t *testing.T) {
	svc := NewProductService(newTestStore())
	res, err := svc.UpdateWithVersionCheck(context.Background(), "nope", models.ProductFields{}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeNotFound, res.Outcome)
	require.ErrorIs(t, res.Err(), repos.ErrNotFound)

	_, err = svc.UpdateProduct(context.Background(), "nope", models.ProductFields{})
	require.ErrorIs(t, err, repos.ErrNotFound)
}

func TestConcurrentWritersOneWinnerPerRevision(t *testing.T) {
	svc := NewProductService(newTestStore())
	ctx := context.Background()
	p := createWidget(t, svc)

	const writers = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	outcomes := map[Outcome]int{}
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(q int) {
			defer wg.Done()
			rev := int64(1)
			res, err := svc.UpdateWithVersionCheck(ctx, p.ID, models.ProductFields{Quantity: ptr(q)}, &rev, nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil && firstErr == nil {
				firstErr = err
			}
			outcomes[res.Outcome]++
		}(i)
	}
	wg.Wait()
	require.NoError(t, firstErr)
	require.Equal(t, 1, outcomes[OutcomeOK])
	require.Equal(t, writers-1, outcomes[OutcomeConflict])

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), got.Revision)
}

// racingStore makes the first Update lose the compare-and-swap, as if another
// writer committed between read and write.
type racingStore struct {
	repos.ProductStore
	raced bool
}

func (s *racingStore) Update(ctx context.Context, id string, mutate func(p *models.Product) error) (*models.Product, error) {
	if !s.raced {
		s.raced = true
		if _, err := s.ProductStore.Update(ctx, id, func(*models.Product) error { return nil }); err != nil {
			return nil, err
		}
		return nil, repos.ErrRevisionMismatch
	}
	return s.ProductStore.Update(ctx, id, mutate)
}

func TestLostRaceReportsConflict(t *testing.T) {
	store := &racingStore{ProductStore: newTestStore()}
	svc := NewProductService(store)
	ctx := context.Background()
	p := createWidget(t, svc)

	rev := int64(1)
	res, err := svc.UpdateWithVersionCheck(ctx, p.ID, models.ProductFields{Quantity: ptr(9)}, &rev, nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeConflict, res.Outcome)
	require.Equal(t, int64(2), res.Conflict.CurrentRevision)
}

func TestLostRaceRetriesPlainUpdate(t *testing.T) {
	store := &racingStore{ProductStore: newTestStore()}
	svc := NewProductService(store)
	ctx := context.Background()
	p := createWidget(t, svc)

	updated, err := svc.UpdateProduct(ctx, p.ID, models.ProductFields{Quantity: ptr(9)})
	require.NoError(t, err)
	require.Equal(t, 9, updated.Quantity)
	require.Equal(t, int64(3), updated.Revision)
}

func TestBulkUpdatePartialSuccess(t *testing.T) {
	svc := NewProductService(newTestStore())
	ctx := context.Background()
	a := createWidget(t, svc)
	b := createWidget(t, svc)
	c := createWidget(t, svc)

	// b moves to revision 2 behind the client's back
	_, err := svc.UpdateProduct(ctx, b.ID, models.ProductFields{Price: ptr(11.0)})
	require.NoError(t, err)

	one := int64(1)
	res, err := svc.BulkUpdate(ctx, []models.VersionedPatch{
		{ID: a.ID, Revision: &one, ProductFields: models.ProductFields{Quantity: ptr(1)}},
		{ID: b.ID, Revision: &one, ProductFields: models.ProductFields{Quantity: ptr(2)}},
		{ID: c.ID, Revision: &one, ProductFields: models.ProductFields{Quantity: ptr(3)}},
	})
	require.NoError(t, err)
	require.Len(t, res.Updated, 2)
	require.Equal(t, a.ID, res.Updated[0].ID)
	require.Equal(t, c.ID, res.Updated[1].ID)
	require.Len(t, res.Conflicts, 1)
	require.Equal(t, b.ID, res.Conflicts[0].ID)
	require.Empty(t, res.Failures)

	got, err := svc.Get(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, 5, got.Quantity)
}

func TestBulkUpdateReportsBadItems(t *testing.T) {
	svc := NewProductService(newTestStore())
	ctx := context.Background()
	a := createWidget(t, svc)

	res, err := svc.BulkUpdate(ctx, []models.VersionedPatch{
		{ProductFields: models.ProductFields{Quantity: ptr(1)}},
		{ID: "ghost", ProductFields: models.ProductFields{Quantity: ptr(1)}},
		{ID: a.ID, ProductFields: models.ProductFields{Quantity: ptr(8)}},
	})
	require.NoError(t, err)
	require.Len(t, res.Updated, 1)
	require.Equal(t, 8, res.Updated[0].Quantity)
	require.Empty(t, res.Conflicts)
	require.Equal(t, []models.BulkFailure{
		{Index: 0, Code: "bad_request", Error: "id is required"},
		{Index: 1, ID: "ghost", Code: "not_found", Error: "product not found"},
	}, res.Failures)
}

func TestCreateRequiresName(t *testing.T) {
	svc := NewProductService(newTestStore())
	_, err := svc.Create(context.Background(), models.ProductFields{Name: ptr("  ")})
	require.True(t, errors.Is(err, ErrBadRequest))
}
