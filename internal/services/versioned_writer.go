package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mugisham37/product-management-interview-project/internal/models"
	"github.com/mugisham37/product-management-interview-project/internal/repos"
)

// plainUpdateAttempts bounds retries of an unconditional update that keeps
// losing the store's revision race.
const plainUpdateAttempts = 3

type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeConflict
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeConflict:
		return "conflict"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// UpdateResult is the outcome of a versioned write. Product is set for
// OutcomeOK, Conflict for OutcomeConflict.
type UpdateResult struct {
	Outcome  Outcome
	Product  *models.Product
	Conflict *models.ConflictInfo
}

// Err converts the result into an error, nil on success.
func (r UpdateResult) Err() error {
	switch r.Outcome {
	case OutcomeConflict:
		return &ConflictError{Info: *r.Conflict}
	case OutcomeNotFound:
		return repos.ErrNotFound
	default:
		return nil
	}
}

var errVersionRefused = errors.New("version refused")

type VersionedWriter struct {
	store repos.ProductStore
}

func NewVersionedWriter(store repos.ProductStore) *VersionedWriter {
	return &VersionedWriter{store: store}
}

// UpdateWithVersionCheck applies patch to product id only if the caller's
// believed revision (when given) matches the stored one and the stored
// lastModified (when a believed time is given) is not newer. With neither
// check it is a plain update. The error return is reserved for storage
// failures.
func (w *VersionedWriter) UpdateWithVersionCheck(ctx context.Context, id string, patch models.ProductFields, believedRevision *int64, believedLastModified *time.Time) (UpdateResult, error) {
	unconditional := believedRevision == nil && believedLastModified == nil
	attempts := 1
	if unconditional {
		attempts = plainUpdateAttempts
	}

	var err error
	for i := 0; i < attempts; i++ {
		var refused *models.ConflictInfo
		var updated *models.Product
		updated, err = w.store.Update(ctx, id, func(cur *models.Product) error {
			if info := checkVersion(cur, believedRevision, believedLastModified); info != nil {
				refused = info
				return errVersionRefused
			}
			patch.Apply(cur)
			return nil
		})
		switch {
		case err == nil:
			return UpdateResult{Outcome: OutcomeOK, Product: updated}, nil
		case errors.Is(err, errVersionRefused):
			return UpdateResult{Outcome: OutcomeConflict, Conflict: refused}, nil
		case errors.Is(err, repos.ErrNotFound):
			return UpdateResult{Outcome: OutcomeNotFound}, nil
		case errors.Is(err, repos.ErrRevisionMismatch):
			if unconditional {
				continue
			}
			return w.lostRace(ctx, id, believedRevision, believedLastModified)
		default:
			return UpdateResult{}, err
		}
	}
	return UpdateResult{}, fmt.Errorf("update %s: %w", id, err)
}

// lostRace reports a conflict for a write that passed the version check but
// lost the store's compare-and-swap to a concurrent writer.
func (w *VersionedWriter) lostRace(ctx context.Context, id string, believedRevision *int64, believedLastModified *time.Time) (UpdateResult, error) {
	cur, err := w.store.Get(ctx, id)
	if errors.Is(err, repos.ErrNotFound) {
		return UpdateResult{Outcome: OutcomeNotFound}, nil
	}
	if err != nil {
		return UpdateResult{}, err
	}
	info := conflictInfo(cur, models.FieldVersion, believedRevision, believedLastModified)
	return UpdateResult{Outcome: OutcomeConflict, Conflict: &info}, nil
}

func checkVersion(cur *models.Product, believedRevision *int64, believedLastModified *time.Time) *models.ConflictInfo {
	if believedRevision != nil && *believedRevision != cur.Revision {
		info := conflictInfo(cur, models.FieldVersion, believedRevision, believedLastModified)
		return &info
	}
	if believedLastModified != nil && cur.UpdatedAt.After(believedLastModified.Truncate(time.Millisecond)) {
		info := conflictInfo(cur, models.FieldUpdatedAt, believedRevision, believedLastModified)
		return &info
	}
	return nil
}

func conflictInfo(cur *models.Product, reason string, believedRevision *int64, believedLastModified *time.Time) models.ConflictInfo {
	info := models.ConflictInfo{
		ID:                   cur.ID,
		Reason:               reason,
		ExpectedRevision:     believedRevision,
		CurrentRevision:      cur.Revision,
		ExpectedLastModified: believedLastModified,
		ServerLastModified:   cur.UpdatedAt,
	}
	if reason == models.FieldVersion && believedRevision != nil {
		info.Message = fmt.Sprintf("version conflict: expected revision %d, current revision %d", *believedRevision, cur.Revision)
	} else if believedLastModified != nil {
		info.Message = fmt.Sprintf("version conflict: record modified at %s, after %s",
			cur.UpdatedAt.Format(time.RFC3339Nano), believedLastModified.UTC().Format(time.RFC3339Nano))
	} else {
		info.Message = fmt.Sprintf("version conflict: current revision %d", cur.Revision)
	}
	return info
}

// BulkUpdate applies every patch independently. A failing patch never stops
// the rest of the batch.
func (w *VersionedWriter) BulkUpdate(ctx context.Context, patches []models.VersionedPatch) (*models.BulkUpdateResult, error) {
	out := &models.BulkUpdateResult{
		Updated:   make([]models.Product, 0, len(patches)),
		Conflicts: make([]models.ConflictInfo, 0),
		Failures:  make([]models.BulkFailure, 0),
	}
	for i, p := range patches {
		if p.ID == "" {
			out.Failures = append(out.Failures, models.BulkFailure{Index: i, Code: "bad_request", Error: "id is required"})
			continue
		}
		res, err := w.UpdateWithVersionCheck(ctx, p.ID, p.ProductFields, p.Revision, p.BelievedLastModified())
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			out.Failures = append(out.Failures, models.BulkFailure{Index: i, ID: p.ID, Code: "internal", Error: err.Error()})
			continue
		}
		switch res.Outcome {
		case OutcomeOK:
			out.Updated = append(out.Updated, *res.Product)
		case OutcomeConflict:
			out.Conflicts = append(out.Conflicts, *res.Conflict)
		case OutcomeNotFound:
			out.Failures = append(out.Failures, models.BulkFailure{Index: i, ID: p.ID, Code: "not_found", Error: "product not found"})
		}
	}
	return out, nil
}
