package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mugisham37/product-management-interview-project/internal/handlers"
	"github.com/mugisham37/product-management-interview-project/internal/logging"
	"github.com/mugisham37/product-management-interview-project/internal/metrics"
	"github.com/mugisham37/product-management-interview-project/internal/models"
	"github.com/mugisham37/product-management-interview-project/internal/repos"
	"github.com/mugisham37/product-management-interview-project/internal/services"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func setupRouter(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := repos.OpenSQLite("file::memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := repos.MigrateSQLite(db); err != nil {
		t.Fatal(err)
	}

	svc := services.NewProductService(repos.NewSQLiteRepo(db, repos.WithClock(tickingClock())))
	m := metrics.New()
	h := handlers.NewProductHandler(svc, m, logging.Nop())
	return NewRouter(h, m, logging.Nop())
}

// tickingClock advances one second per call so successive writes always get
// distinct lastModified values.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func do(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: bad envelope %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec, env
}

func createProduct(t *testing.T, r http.Handler, body string) models.Product {
	t.Helper()
	rec, env := do(t, r, http.MethodPost, "/api/v1/products", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rec.Code, rec.Body.String())
	}
	var p models.Product
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestCRUDFlow(t *testing.T) {
	r := setupRouter(t)

	p := createProduct(t, r, `{"name":"Widget","price":10,"quantity":5}`)
	if p.ID == "" || p.Revision != 1 || !p.IsActive {
		t.Fatalf("unexpected created product: %+v", p)
	}

	rec, env := do(t, r, http.MethodGet, "/api/v1/products", "")
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("list status=%d body=%s", rec.Code, rec.Body.String())
	}
	var list []models.Product
	_ = json.Unmarshal(env.Data, &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 product, got %d", len(list))
	}

	rec, env = do(t, r, http.MethodPut, "/api/v1/products/"+p.ID, `{"quantity":7}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rec.Code, rec.Body.String())
	}
	var updated models.Product
	_ = json.Unmarshal(env.Data, &updated)
	if updated.Revision != 2 || updated.Quantity != 7 || updated.Name != "Widget" {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	rec, _ = do(t, r, http.MethodDelete, "/api/v1/products/"+p.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status=%d body=%s", rec.Code, rec.Body.String())
	}
	rec, env = do(t, r, http.MethodGet, "/api/v1/products/"+p.ID+"/version", "")
	if rec.Code != http.StatusNotFound || env.Success {
		t.Fatalf("expected 404 after delete, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestCreateRequiresName(t *testing.T) {
	r := setupRouter(t)
	rec, env := do(t, r, http.MethodPost, "/api/v1/products", `{"price":1}`)
	if rec.Code != http.StatusBadRequest || env.Success {
		t.Fatalf("expected 400, got %d body=%s", rec.Code, rec.Body.String())
	}
	rec, _ = do(t, r, http.MethodPost, "/api/v1/products", `{"name":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", rec.Code)
	}
}

func TestConflictResponse409(t *testing.T) {
	r := setupRouter(t)
	p := createProduct(t, r, `{"name":"Widget","price":10,"quantity":5}`)

	rec, env := do(t, r, http.MethodGet, "/api/v1/products/"+p.ID+"/version", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("version status=%d", rec.Code)
	}
	var seen models.Product
	_ = json.Unmarshal(env.Data, &seen)
	if seen.Revision != 1 {
		t.Fatalf("expected revision 1, got %d", seen.Revision)
	}

	rec, env = do(t, r, http.MethodPut, "/api/v1/products/"+p.ID+"/versioned", `{"price":12,"revision":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("first versioned write status=%d body=%s", rec.Code, rec.Body.String())
	}
	var first models.Product
	_ = json.Unmarshal(env.Data, &first)
	if first.Revision != 2 || first.Price != 12 {
		t.Fatalf("unexpected first write result: %+v", first)
	}

	rec, env = do(t, r, http.MethodPut, "/api/v1/products/"+p.ID+"/versioned", `{"quantity":4,"revision":1}`)
	if rec.Code != http.StatusConflict || env.Success {
		t.Fatalf("expected 409, got %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(env.Message, "expected revision 1") || !strings.Contains(env.Message, "current revision 2") {
		t.Fatalf("conflict message does not name revisions: %q", env.Message)
	}
	var info models.ConflictInfo
	_ = json.Unmarshal(env.Data, &info)
	if info.CurrentRevision != 2 || info.ExpectedRevision == nil || *info.ExpectedRevision != 1 {
		t.Fatalf("unexpected conflict info: %+v", info)
	}

	_, env = do(t, r, http.MethodGet, "/api/v1/products/"+p.ID, "")
	var after models.Product
	_ = json.Unmarshal(env.Data, &after)
	if after.Quantity != 5 || after.Revision != 2 {
		t.Fatalf("rejected write changed the record: %+v", after)
	}

	rec, _ = do(t, r, http.MethodPut, "/api/v1/products/missing/versioned", `{"price":1,"revision":1}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestConsistencyCheck(t *testing.T) {
	r := setupRouter(t)

	rec, env := do(t, r, http.MethodPost, "/api/v1/products/consistency-check", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var snap models.ConsistencySnapshot
	_ = json.Unmarshal(env.Data, &snap)
	if snap.TotalRecords != 0 || snap.Checksum != "0" || snap.LastModified != nil {
		t.Fatalf("unexpected empty snapshot: %+v", snap)
	}

	p := createProduct(t, r, `{"name":"Widget"}`)
	_, env = do(t, r, http.MethodPost, "/api/v1/products/consistency-check", "")
	var one models.ConsistencySnapshot
	_ = json.Unmarshal(env.Data, &one)
	if one.TotalRecords != 1 || one.Checksum == "0" {
		t.Fatalf("unexpected snapshot: %+v", one)
	}
	if !one.LastModified.Equal(p.UpdatedAt) {
		t.Fatalf("lastModified %v, want %v", one.LastModified, p.UpdatedAt)
	}

	do(t, r, http.MethodPut, "/api/v1/products/"+p.ID, `{"notes":"restocked"}`)
	_, env = do(t, r, http.MethodPost, "/api/v1/products/consistency-check", "")
	var two models.ConsistencySnapshot
	_ = json.Unmarshal(env.Data, &two)
	if two.Checksum == one.Checksum {
		t.Fatalf("checksum did not change after a write: %s", two.Checksum)
	}
}

func TestDetectConflicts(t *testing.T) {
	r := setupRouter(t)
	a := createProduct(t, r, `{"name":"A","price":1}`)
	b := createProduct(t, r, `{"name":"B","price":2}`)

	clientCopy, _ := json.Marshal([]models.ClientRecord{models.ClientRecordOf(a), models.ClientRecordOf(b)})

	do(t, r, http.MethodPut, "/api/v1/products/"+a.ID, `{"price":5}`)
	do(t, r, http.MethodDelete, "/api/v1/products/"+b.ID, "")

	rec, env := do(t, r, http.MethodPost, "/api/v1/products/detect-conflicts", string(clientCopy))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var found []models.ConflictRecord
	if err := json.Unmarshal(env.Data, &found); err != nil {
		t.Fatal(err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 conflicted records, got %d: %s", len(found), string(env.Data))
	}
	fields := map[string][]string{}
	for _, rec := range found {
		for _, c := range rec.Conflicts {
			fields[c.RecordID] = append(fields[c.RecordID], c.Field)
		}
	}
	if got := fields[b.ID]; len(got) != 1 || got[0] != models.FieldExistence {
		t.Fatalf("deleted record conflicts = %v", got)
	}
	if !contains(fields[a.ID], "price") {
		t.Fatalf("modified record conflicts = %v", fields[a.ID])
	}

	rec, _ = do(t, r, http.MethodPost, "/api/v1/products/detect-conflicts", `[{"name":"no id"}]`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for record without id, got %d", rec.Code)
	}
}

func TestBulkUpdatePartialSuccess(t *testing.T) {
	r := setupRouter(t)
	a := createProduct(t, r, `{"name":"A","quantity":1}`)
	b := createProduct(t, r, `{"name":"B","quantity":1}`)
	do(t, r, http.MethodPut, "/api/v1/products/"+b.ID, `{"quantity":2}`)

	body := fmt.Sprintf(`[
		{"id":%q,"revision":1,"quantity":10},
		{"id":%q,"revision":1,"quantity":20},
		{"quantity":30},
		{"id":"missing","quantity":40}
	]`, a.ID, b.ID)
	rec, env := do(t, r, http.MethodPatch, "/api/v1/products/bulk-update", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var res models.BulkUpdateResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Updated) != 1 || res.Updated[0].ID != a.ID || res.Updated[0].Quantity != 10 {
		t.Fatalf("unexpected updated: %+v", res.Updated)
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0].ID != b.ID || res.Conflicts[0].CurrentRevision != 2 {
		t.Fatalf("unexpected conflicts: %+v", res.Conflicts)
	}
	if len(res.Failures) != 2 || res.Failures[0].Code != "bad_request" || res.Failures[1].Code != "not_found" {
		t.Fatalf("unexpected failures: %+v", res.Failures)
	}

	rec, _ = do(t, r, http.MethodPatch, "/api/v1/products/bulk-update", `{"id":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-array body, got %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	r := setupRouter(t)
	rec, _ := do(t, r, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rec.Code)
	}
	p := createProduct(t, r, `{"name":"Widget"}`)
	do(t, r, http.MethodPut, "/api/v1/products/"+p.ID+"/versioned", `{"price":3,"revision":9}`)

	rec, _ = do(t, r, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `product_sync_versioned_writes_total{outcome="conflict"} 1`) {
		t.Fatalf("conflict write not counted:\n%s", rec.Body.String())
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
