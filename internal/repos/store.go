package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mugisham37/product-management-interview-project/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrRevisionMismatch is returned by Update when another writer bumped the
	// revision between the read and the write.
	ErrRevisionMismatch = errors.New("revision mismatch")
)

// ProductStore persists products with a revision counter and a last-modified
// time, both bumped together on every accepted write.
type ProductStore interface {
	// Create assigns id (when empty), revision 1 and timestamps, then persists p.
	Create(ctx context.Context, p *models.Product) error
	Get(ctx context.Context, id string) (*models.Product, error)
	List(ctx context.Context) ([]models.Product, error)
	// ListStamps returns only the (id, revision, lastModified) triples.
	ListStamps(ctx context.Context) ([]models.VersionStamp, error)
	// Update reads the current record, lets mutate change its business
	// fields and persists it with revision+1 and a fresh lastModified. If
	// mutate returns an error nothing is written and that error is returned.
	Update(ctx context.Context, id string, mutate func(p *models.Product) error) (*models.Product, error)
	Delete(ctx context.Context, id string) error
}

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used for createdAt/updatedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// stamp returns the timestamp for a write, at millisecond precision and
// never earlier than prev.
func (o options) stamp(prev time.Time) time.Time {
	now := o.now().UTC().Truncate(time.Millisecond)
	if now.Before(prev) {
		return prev
	}
	return now
}

func prepareCreate(o options, p *models.Product) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := o.stamp(time.Time{})
	p.Revision = 1
	p.CreatedAt = now
	p.UpdatedAt = now
}
