package services

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/mugisham37/product-management-interview-project/internal/models"
	"github.com/mugisham37/product-management-interview-project/internal/repos"
)

const checksumSeparator = "|"

type ConsistencyAuditor struct {
	store repos.ProductStore
}

func NewConsistencyAuditor(store repos.ProductStore) *ConsistencyAuditor {
	return &ConsistencyAuditor{store: store}
}

// CheckConsistency fingerprints the whole collection from its version stamps
// only, so a client can tell whether anything changed without fetching it.
func (a *ConsistencyAuditor) CheckConsistency(ctx context.Context) (*models.ConsistencySnapshot, error) {
	stamps, err := a.store.ListStamps(ctx)
	if err != nil {
		return nil, err
	}
	return Snapshot(stamps), nil
}

// Snapshot computes the consistency snapshot of a set of stamps. The input is
// not modified.
func Snapshot(stamps []models.VersionStamp) *models.ConsistencySnapshot {
	sorted := canonicalOrder(stamps)
	snap := &models.ConsistencySnapshot{
		TotalRecords: len(sorted),
		Checksum:     checksum(sorted),
	}
	if len(sorted) > 0 {
		last := sorted[0].UpdatedAt
		snap.LastModified = &last
	}
	return snap
}

// Checksum returns the fingerprint of stamps regardless of their order.
func Checksum(stamps []models.VersionStamp) string {
	return checksum(canonicalOrder(stamps))
}

// canonicalOrder sorts by lastModified descending, then id ascending.
func canonicalOrder(stamps []models.VersionStamp) []models.VersionStamp {
	sorted := make([]models.VersionStamp, len(stamps))
	copy(sorted, stamps)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].UpdatedAt.Equal(sorted[j].UpdatedAt) {
			return sorted[i].UpdatedAt.After(sorted[j].UpdatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

func checksum(sorted []models.VersionStamp) string {
	parts := make([]string, len(sorted))
	for i, s := range sorted {
		parts[i] = s.ID + ":" + strconv.FormatInt(s.Revision, 10) + ":" + strconv.FormatInt(models.Millis(s.UpdatedAt), 10)
	}
	return strconv.FormatInt(int64(rollingHash(strings.Join(parts, checksumSeparator))), 36)
}

// rollingHash is the 32-bit h*31+c string hash over UTF-16 code units.
// Overflow wraps, which is the intended truncation.
func rollingHash(s string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(c)
	}
	return h
}
