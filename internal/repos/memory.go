package repos

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mugisham37/product-management-interview-project/internal/models"
)

// MemoryStore is a ProductStore kept in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]models.Product
	opts     options
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{products: make(map[string]models.Product), opts: buildOptions(opts)}
}

func (s *MemoryStore) Create(_ context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; ok && p.ID != "" {
		return fmt.Errorf("product %s already exists", p.ID)
	}
	prepareCreate(s.opts, p)
	s.products[p.ID] = *p
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) List(_ context.Context) ([]models.Product, error) {
	s.mu.RLock()
	out := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) ListStamps(_ context.Context) ([]models.VersionStamp, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.VersionStamp, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, models.StampOf(p))
	}
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, mutate func(p *models.Product) error) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := current
	if err := mutate(&next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.Revision = current.Revision + 1
	next.UpdatedAt = s.opts.stamp(current.UpdatedAt)
	s.products[id] = next
	return &next, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return ErrNotFound
	}
	delete(s.products, id)
	return nil
}
