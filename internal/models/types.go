package models

import "time"

// Sentinel field names used by ConflictDescriptor for whole-record mismatches.
const (
	FieldExistence = "existence"
	FieldVersion   = "version"
	FieldUpdatedAt = "updatedAt"
)

// TrackedFields lists the business fields compared by conflict detection, in
// the order descriptors are emitted.
var TrackedFields = []string{
	"name",
	"description",
	"price",
	"quantity",
	"category",
	"imageUrl",
	"sku",
	"weight",
	"isActive",
	"minStockLevel",
	"costPrice",
	"notes",
}

type Product struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Price         float64   `json:"price"`
	Quantity      int       `json:"quantity"`
	Category      string    `json:"category"`
	ImageURL      string    `json:"imageUrl"`
	SKU           string    `json:"sku"`
	Weight        float64   `json:"weight"`
	IsActive      bool      `json:"isActive"`
	MinStockLevel int       `json:"minStockLevel"`
	CostPrice     float64   `json:"costPrice"`
	Notes         string    `json:"notes"`
	Revision      int64     `json:"revision"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Lookup returns the value of a tracked business field by its JSON name.
func (p *Product) Lookup(field string) (any, bool) {
	switch field {
	case "name":
		return p.Name, true
	case "description":
		return p.Description, true
	case "price":
		return p.Price, true
	case "quantity":
		return p.Quantity, true
	case "category":
		return p.Category, true
	case "imageUrl":
		return p.ImageURL, true
	case "sku":
		return p.SKU, true
	case "weight":
		return p.Weight, true
	case "isActive":
		return p.IsActive, true
	case "minStockLevel":
		return p.MinStockLevel, true
	case "costPrice":
		return p.CostPrice, true
	case "notes":
		return p.Notes, true
	}
	return nil, false
}

// ProductFields is a partial set of business fields. A nil pointer means the
// field was not supplied.
type ProductFields struct {
	Name          *string  `json:"name,omitempty"`
	Description   *string  `json:"description,omitempty"`
	Price         *float64 `json:"price,omitempty"`
	Quantity      *int     `json:"quantity,omitempty"`
	Category      *string  `json:"category,omitempty"`
	ImageURL      *string  `json:"imageUrl,omitempty"`
	SKU           *string  `json:"sku,omitempty"`
	Weight        *float64 `json:"weight,omitempty"`
	IsActive      *bool    `json:"isActive,omitempty"`
	MinStockLevel *int     `json:"minStockLevel,omitempty"`
	CostPrice     *float64 `json:"costPrice,omitempty"`
	Notes         *string  `json:"notes,omitempty"`
}

// FieldsOf returns the full business-field set of p.
func FieldsOf(p Product) ProductFields {
	return ProductFields{
		Name:          &p.Name,
		Description:   &p.Description,
		Price:         &p.Price,
		Quantity:      &p.Quantity,
		Category:      &p.Category,
		ImageURL:      &p.ImageURL,
		SKU:           &p.SKU,
		Weight:        &p.Weight,
		IsActive:      &p.IsActive,
		MinStockLevel: &p.MinStockLevel,
		CostPrice:     &p.CostPrice,
		Notes:         &p.Notes,
	}
}

// Apply copies every supplied field onto p. Fields left nil keep their value.
func (f ProductFields) Apply(p *Product) {
	if f.Name != nil {
		p.Name = *f.Name
	}
	if f.Description != nil {
		p.Description = *f.Description
	}
	if f.Price != nil {
		p.Price = *f.Price
	}
	if f.Quantity != nil {
		p.Quantity = *f.Quantity
	}
	if f.Category != nil {
		p.Category = *f.Category
	}
	if f.ImageURL != nil {
		p.ImageURL = *f.ImageURL
	}
	if f.SKU != nil {
		p.SKU = *f.SKU
	}
	if f.Weight != nil {
		p.Weight = *f.Weight
	}
	if f.IsActive != nil {
		p.IsActive = *f.IsActive
	}
	if f.MinStockLevel != nil {
		p.MinStockLevel = *f.MinStockLevel
	}
	if f.CostPrice != nil {
		p.CostPrice = *f.CostPrice
	}
	if f.Notes != nil {
		p.Notes = *f.Notes
	}
}

// Lookup returns the supplied value of a tracked field. ok is false when the
// field is unknown or was not supplied.
func (f ProductFields) Lookup(field string) (any, bool) {
	switch field {
	case "name":
		return deref(f.Name)
	case "description":
		return deref(f.Description)
	case "price":
		return deref(f.Price)
	case "quantity":
		return deref(f.Quantity)
	case "category":
		return deref(f.Category)
	case "imageUrl":
		return deref(f.ImageURL)
	case "sku":
		return deref(f.SKU)
	case "weight":
		return deref(f.Weight)
	case "isActive":
		return deref(f.IsActive)
	case "minStockLevel":
		return deref(f.MinStockLevel)
	case "costPrice":
		return deref(f.CostPrice)
	case "notes":
		return deref(f.Notes)
	}
	return nil, false
}

func deref[T any](v *T) (any, bool) {
	if v == nil {
		return nil, false
	}
	return *v, true
}

// ClientRecord is one entry of a client's cached snapshot as sent for
// conflict detection.
type ClientRecord struct {
	ID        string     `json:"id"`
	Revision  *int64     `json:"revision,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	ProductFields
}

// ClientRecordOf builds the snapshot entry a client holding p would send.
func ClientRecordOf(p Product) ClientRecord {
	rev := p.Revision
	at := p.UpdatedAt
	return ClientRecord{
		ID:            p.ID,
		Revision:      &rev,
		UpdatedAt:     &at,
		ProductFields: FieldsOf(p),
	}
}

// VersionedPatch is a field patch guarded by the revision and/or
// last-modified time the caller believes is current. LastModified is epoch
// milliseconds.
type VersionedPatch struct {
	ID           string `json:"id,omitempty"`
	Revision     *int64 `json:"revision,omitempty"`
	LastModified *int64 `json:"lastModified,omitempty"`
	ProductFields
}

// BelievedLastModified converts LastModified into a time, nil when unset.
func (p VersionedPatch) BelievedLastModified() *time.Time {
	if p.LastModified == nil {
		return nil
	}
	t := FromMillis(*p.LastModified)
	return &t
}

type ConflictDescriptor struct {
	RecordID           string     `json:"recordId"`
	Field              string     `json:"field"`
	ClientValue        any        `json:"clientValue"`
	ServerValue        any        `json:"serverValue"`
	ServerLastModified *time.Time `json:"serverLastModified"`
}

// ConflictRecord is the current server record together with the conflicts
// found against the client's copy of it.
type ConflictRecord struct {
	Product
	Conflicts []ConflictDescriptor `json:"conflicts"`
}

// ConflictInfo describes a refused versioned write.
type ConflictInfo struct {
	ID                   string     `json:"id"`
	Reason               string     `json:"reason"`
	ExpectedRevision     *int64     `json:"expectedRevision,omitempty"`
	CurrentRevision      int64      `json:"currentRevision"`
	ExpectedLastModified *time.Time `json:"expectedLastModified,omitempty"`
	ServerLastModified   time.Time  `json:"serverLastModified"`
	Message              string     `json:"message"`
}

type BulkFailure struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type BulkUpdateResult struct {
	Updated   []Product      `json:"updated"`
	Conflicts []ConflictInfo `json:"conflicts"`
	Failures  []BulkFailure  `json:"failures"`
}

type ConsistencySnapshot struct {
	TotalRecords int        `json:"totalRecords"`
	LastModified *time.Time `json:"lastModified"`
	Checksum     string     `json:"checksum"`
}

// VersionStamp is the (id, revision, lastModified) triple of one record.
type VersionStamp struct {
	ID        string    `json:"id"`
	Revision  int64     `json:"revision"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func StampOf(p Product) VersionStamp {
	return VersionStamp{ID: p.ID, Revision: p.Revision, UpdatedAt: p.UpdatedAt}
}

// Millis returns t as epoch milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
