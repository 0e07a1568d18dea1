package services

import (
	"context"
	"errors"
	"reflect"
	"time"

	"github.com/mugisham37/product-management-interview-project/internal/models"
	"github.com/mugisham37/product-management-interview-project/internal/repos"
)

// existenceClaim is the client value reported when the client still holds a
// record the server no longer has.
const existenceClaim = "exists"

type ConflictDetector struct {
	store repos.ProductStore
}

func NewConflictDetector(store repos.ProductStore) *ConflictDetector {
	return &ConflictDetector{store: store}
}

// DetectConflicts compares each client record with the server's current copy
// and returns the server records that have at least one conflict. Records
// without an id are ignored.
func (d *ConflictDetector) DetectConflicts(ctx context.Context, clientRecords []models.ClientRecord) ([]models.ConflictRecord, error) {
	out := make([]models.ConflictRecord, 0)
	for _, cr := range clientRecords {
		if cr.ID == "" {
			continue
		}
		server, err := d.store.Get(ctx, cr.ID)
		if err != nil && !errors.Is(err, repos.ErrNotFound) {
			return nil, err
		}
		if errors.Is(err, repos.ErrNotFound) {
			server = nil
		}
		conflicts := CompareOne(cr, server)
		if len(conflicts) == 0 {
			continue
		}
		rec := models.ConflictRecord{Product: models.Product{ID: cr.ID}, Conflicts: conflicts}
		if server != nil {
			rec.Product = *server
		}
		out = append(out, rec)
	}
	return out, nil
}

// CompareOne returns the conflicts between a client record and the server
// record with the same id; server is nil when the record no longer exists.
// A server record that is not newer than the client's updatedAt never
// conflicts.
func CompareOne(client models.ClientRecord, server *models.Product) []models.ConflictDescriptor {
	if server == nil {
		return []models.ConflictDescriptor{{
			RecordID:    client.ID,
			Field:       models.FieldExistence,
			ClientValue: existenceClaim,
			ServerValue: nil,
		}}
	}
	if client.UpdatedAt != nil && !server.UpdatedAt.After(client.UpdatedAt.Truncate(time.Millisecond)) {
		return nil
	}

	lastModified := server.UpdatedAt
	var out []models.ConflictDescriptor
	if client.Revision != nil && *client.Revision != server.Revision {
		out = append(out, models.ConflictDescriptor{
			RecordID:           server.ID,
			Field:              models.FieldVersion,
			ClientValue:        *client.Revision,
			ServerValue:        server.Revision,
			ServerLastModified: &lastModified,
		})
	}
	for _, field := range models.TrackedFields {
		cv, ok := client.Lookup(field)
		if !ok {
			continue
		}
		sv, _ := server.Lookup(field)
		if reflect.DeepEqual(cv, sv) {
			continue
		}
		out = append(out, models.ConflictDescriptor{
			RecordID:           server.ID,
			Field:              field,
			ClientValue:        cv,
			ServerValue:        sv,
			ServerLastModified: &lastModified,
		})
	}
	return out
}
