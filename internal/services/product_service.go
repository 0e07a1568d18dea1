package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mugisham37/product-management-interview-project/internal/models"
	"github.com/mugisham37/product-management-interview-project/internal/repos"
)

// ProductService is the product CRUD surface plus the concurrency-aware
// operations, all backed by one store.
type ProductService struct {
	store    repos.ProductStore
	writer   *VersionedWriter
	detector *ConflictDetector
	auditor  *ConsistencyAuditor
}

func NewProductService(store repos.ProductStore) *ProductService {
	return &ProductService{
		store:    store,
		writer:   NewVersionedWriter(store),
		detector: NewConflictDetector(store),
		auditor:  NewConsistencyAuditor(store),
	}
}

func (s *ProductService) Create(ctx context.Context, fields models.ProductFields) (*models.Product, error) {
	if fields.Name == nil || strings.TrimSpace(*fields.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrBadRequest)
	}
	p := &models.Product{IsActive: true}
	fields.Apply(p)
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *ProductService) Get(ctx context.Context, id string) (*models.Product, error) {
	return s.store.Get(ctx, strings.TrimSpace(id))
}

func (s *ProductService) List(ctx context.Context) ([]models.Product, error) {
	return s.store.List(ctx)
}

// UpdateProduct is an unconditional update: the patch is applied on top of
// whatever revision is current.
func (s *ProductService) UpdateProduct(ctx context.Context, id string, fields models.ProductFields) (*models.Product, error) {
	res, err := s.writer.UpdateWithVersionCheck(ctx, strings.TrimSpace(id), fields, nil, nil)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return res.Product, nil
}

func (s *ProductService) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, strings.TrimSpace(id))
}

func (s *ProductService) UpdateWithVersionCheck(ctx context.Context, id string, patch models.ProductFields, believedRevision *int64, believedLastModified *time.Time) (UpdateResult, error) {
	return s.writer.UpdateWithVersionCheck(ctx, strings.TrimSpace(id), patch, believedRevision, believedLastModified)
}

func (s *ProductService) BulkUpdate(ctx context.Context, patches []models.VersionedPatch) (*models.BulkUpdateResult, error) {
	return s.writer.BulkUpdate(ctx, patches)
}

func (s *ProductService) DetectConflicts(ctx context.Context, clientRecords []models.ClientRecord) ([]models.ConflictRecord, error) {
	return s.detector.DetectConflicts(ctx, clientRecords)
}

func (s *ProductService) CheckConsistency(ctx context.Context) (*models.ConsistencySnapshot, error) {
	return s.auditor.CheckConsistency(ctx)
}
