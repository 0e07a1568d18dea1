package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mugisham37/product-management-interview-project/internal/models"
	"github.com/mugisham37/product-management-interview-project/internal/repos"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// tickingClock advances by one second on every call.
type tickingClock struct {
	mu   sync.Mutex
	next time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.Add(time.Second)
	return now
}

func newTestStore() *repos.MemoryStore {
	clock := &tickingClock{next: t0}
	return repos.NewMemoryStore(repos.WithClock(clock.Now))
}

func ptr[T any](v T) *T { return &v }

func createWidget(t *testing.T, svc *ProductService) *models.Product {
	t.Helper()
	p, err := svc.Create(context.Background(), models.ProductFields{
		Name:     ptr("Widget"),
		Price:    ptr(10.0),
		Quantity: ptr(5),
	})
	require.NoError(t, err)
	return p
}
