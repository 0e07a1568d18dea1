package cloudsync

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mugisham37/product-management-interview-project/internal/config"
	"github.com/mugisham37/product-management-interview-project/internal/logging"
	"github.com/mugisham37/product-management-interview-project/internal/metrics"
	"github.com/mugisham37/product-management-interview-project/internal/models"
	"github.com/mugisham37/product-management-interview-project/internal/resolver"
	"github.com/mugisham37/product-management-interview-project/internal/services"
)

// entry is the client's view of one product: Base is the last copy seen on
// the server, Local the unsynced edit on top of it (nil when clean).
type entry struct {
	Base  models.Product  `json:"base"`
	Local *models.Product `json:"local,omitempty"`
}

func (e *entry) current() models.Product {
	if e.Local != nil {
		return *e.Local
	}
	return e.Base
}

// pendingEdit captures a dirty entry at the start of a cycle. local is the
// exact pointer held by the entry, so edits made during the cycle are not
// cleared by it.
type pendingEdit struct {
	base  models.Product
	local *models.Product
}

func (p pendingEdit) clientRecord() models.ClientRecord {
	rev := p.base.Revision
	at := p.base.UpdatedAt
	return models.ClientRecord{
		ID:            p.base.ID,
		Revision:      &rev,
		UpdatedAt:     &at,
		ProductFields: models.FieldsOf(*p.local),
	}
}

func (p pendingEdit) patch() models.VersionedPatch {
	rev := p.base.Revision
	ms := models.Millis(p.base.UpdatedAt)
	return models.VersionedPatch{
		ID:            p.base.ID,
		Revision:      &rev,
		LastModified:  &ms,
		ProductFields: models.FieldsOf(*p.local),
	}
}

// CycleReport summarises one sync cycle.
type CycleReport struct {
	Skipped    bool                 `json:"skipped"`
	Pushed     int                  `json:"pushed"`
	Conflicts  int                  `json:"conflicts"`
	Resolution *resolver.Resolution `json:"resolution,omitempty"`
	Checksum   string               `json:"checksum"`
}

type ManagerOption func(*SyncManager)

func WithLogger(log *logging.Logger) ManagerOption {
	return func(m *SyncManager) {
		if log != nil {
			m.log = log
		}
	}
}

func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *SyncManager) { m.metrics = mt }
}

// WithPrompter wires the party asked about conflicts under prompt-user.
func WithPrompter(p resolver.Prompter) ManagerOption {
	return func(m *SyncManager) { m.prompter = p }
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *SyncManager) { m.now = now }
}

// SyncManager keeps a local product snapshot in step with the server. Local
// edits are pushed as versioned writes; conflicts go to the resolver with the
// configured strategy.
type SyncManager struct {
	mu      sync.Mutex
	cycleMu sync.Mutex

	client   *Client
	cfg      config.ClientConfig
	strategy resolver.Strategy
	resolver *resolver.Resolver
	prompter resolver.Prompter
	log      *logging.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	entries map[string]*entry
	status  statusTracker
}

func NewSyncManager(client *Client, cfg config.ClientConfig, opts ...ManagerOption) (*SyncManager, error) {
	strategy, err := resolver.ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	m := &SyncManager{
		client:   client,
		cfg:      cfg,
		strategy: strategy,
		log:      logging.Nop(),
		now:      time.Now,
		entries:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	ropts := []resolver.Option{resolver.WithParallelism(cfg.ResolveParallelism)}
	if m.prompter != nil {
		ropts = append(ropts, resolver.WithPrompter(m.prompter))
	}
	m.resolver = resolver.New(client, m.log, ropts...)
	return m, nil
}

// Records returns the client's current view, local edits included, ordered
// by id.
func (m *SyncManager) Records() []models.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Product, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.current())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Pending returns the number of records with unsynced local edits.
func (m *SyncManager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.Local != nil {
			n++
		}
	}
	return n
}

func (m *SyncManager) Status() SyncStatus {
	return m.status.Snapshot()
}

// Edit applies fields to the local copy of id. The change is pushed on the
// next cycle.
func (m *SyncManager) Edit(id string, fields models.ProductFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return ErrNotFound
	}
	next := e.current()
	fields.Apply(&next)
	next.UpdatedAt = m.now().UTC().Truncate(time.Millisecond)
	e.Local = &next
	return nil
}

// InitialSync loads the persisted snapshot, if any, and runs one cycle.
func (m *SyncManager) InitialSync(ctx context.Context) error {
	if m.cfg.SnapshotFile != "" {
		if err := m.LoadSnapshot(m.cfg.SnapshotFile); err != nil {
			return err
		}
	}
	_, err := m.SyncOnce(ctx)
	return err
}

// Run syncs on every tick until ctx is done. Failed cycles are logged and
// retried on the next tick.
func (m *SyncManager) Run(ctx context.Context) {
	interval := time.Duration(m.cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := m.SyncOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				m.log.Warnf("sync cycle failed: %v", err)
				continue
			}
			if !report.Skipped {
				m.log.Infof("sync cycle done: pushed=%d conflicts=%d checksum=%s", report.Pushed, report.Conflicts, report.Checksum)
			}
		}
	}
}

// SyncOnce runs one cycle. Cycles never overlap.
func (m *SyncManager) SyncOnce(ctx context.Context) (*CycleReport, error) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	start := time.Now()
	report, err := m.syncOnce(ctx)
	elapsed := time.Since(start)
	if err != nil {
		m.metrics.SyncCycle("error", elapsed)
		m.status.MarkSyncError(err.Error())
		return nil, err
	}
	result := "synced"
	if report.Skipped {
		result = "skipped"
	}
	m.metrics.SyncCycle(result, elapsed)
	m.status.MarkSyncSuccess(report.Checksum, m.Pending(), report.Conflicts, m.now())
	if m.cfg.SnapshotFile != "" {
		if err := m.SaveSnapshot(m.cfg.SnapshotFile); err != nil {
			m.log.Warnf("save snapshot %s: %v", m.cfg.SnapshotFile, err)
		}
	}
	return report, nil
}

func (m *SyncManager) syncOnce(ctx context.Context) (*CycleReport, error) {
	pending := m.pendingEdits()
	if len(pending) == 0 {
		snap, err := m.client.ConsistencyCheck(ctx)
		if err != nil {
			return nil, fmt.Errorf("consistency check: %w", err)
		}
		if local := m.localChecksum(); snap.Checksum == local {
			return &CycleReport{Skipped: true, Checksum: local}, nil
		}
	}

	report := &CycleReport{}
	conflicted := make(map[string]bool)
	var descriptors []models.ConflictDescriptor

	if len(pending) > 0 {
		records := make([]models.ClientRecord, 0, len(pending))
		for _, id := range sortedIDs(pending) {
			records = append(records, pending[id].clientRecord())
		}
		found, err := m.client.DetectConflicts(ctx, records)
		if err != nil {
			return nil, fmt.Errorf("detect conflicts: %w", err)
		}
		for _, rec := range found {
			if _, ok := pending[rec.ID]; !ok {
				m.log.Warnf("server reported conflicts for %s, which has no pending edit; ignoring", rec.ID)
				continue
			}
			conflicted[rec.ID] = true
			descriptors = append(descriptors, rec.Conflicts...)
		}

		patches := make([]models.VersionedPatch, 0, len(pending))
		for _, id := range sortedIDs(pending) {
			if !conflicted[id] {
				patches = append(patches, pending[id].patch())
			}
		}
		if len(patches) > 0 {
			res, err := m.client.BulkUpdate(ctx, patches)
			if err != nil {
				return nil, fmt.Errorf("push edits: %w", err)
			}
			for _, p := range res.Updated {
				pe, ok := pending[p.ID]
				if !ok {
					m.log.Warnf("server reported an update of %s, which was not pushed; ignoring", p.ID)
					continue
				}
				m.settle(p, pe.local)
				report.Pushed++
			}
			for _, c := range res.Conflicts {
				if _, ok := pending[c.ID]; !ok {
					m.log.Warnf("server reported a conflict for %s, which was not pushed; ignoring", c.ID)
					continue
				}
				conflicted[c.ID] = true
				descriptors = append(descriptors, versionDescriptor(c))
			}
			for _, f := range res.Failures {
				if _, ok := pending[f.ID]; f.Code == "not_found" && ok {
					conflicted[f.ID] = true
					descriptors = append(descriptors, models.ConflictDescriptor{RecordID: f.ID, Field: models.FieldExistence, ClientValue: "exists"})
					continue
				}
				m.log.Warnf("push %s failed: %s", f.ID, f.Error)
			}
		}
	}

	server, err := m.client.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	m.refresh(server, conflicted)

	if len(conflicted) > 0 {
		report.Conflicts = len(conflicted)
		res, err := m.resolve(ctx, descriptors, conflicted, pending, server)
		if err != nil {
			return nil, fmt.Errorf("resolve conflicts: %w", err)
		}
		report.Resolution = res
	}
	report.Checksum = m.localChecksum()
	return report, nil
}

func (m *SyncManager) resolve(ctx context.Context, descriptors []models.ConflictDescriptor, conflicted map[string]bool, pending map[string]pendingEdit, server []models.Product) (*resolver.Resolution, error) {
	ids := make([]string, 0, len(conflicted))
	for id := range conflicted {
		if pe, ok := pending[id]; ok && pe.local != nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	clientRecords := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		clientRecords = append(clientRecords, *pending[id].local)
	}
	servers := make(map[string]models.Product, len(ids))
	serverRecords := make([]models.Product, 0, len(ids))
	for _, s := range server {
		if conflicted[s.ID] {
			servers[s.ID] = s
			serverRecords = append(serverRecords, s)
		}
	}

	res, err := m.resolver.Resolve(ctx, descriptors, clientRecords, serverRecords, m.strategy)
	if err != nil {
		return nil, err
	}
	m.metrics.Resolution(string(res.Strategy))
	for _, f := range res.Failures {
		m.log.Warnf("resolve %s: %s", f.ID, f.Error)
	}

	resolved := make(map[string]models.Product, len(res.Records))
	for _, r := range res.Records {
		resolved[r.ID] = r
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		captured := pending[id].local
		e := m.entries[id]
		if e == nil {
			continue
		}
		s, onServer := servers[id]
		r, ok := resolved[id]
		switch {
		case !ok:
			// resolved away: the server no longer has the record
			if e.Local == captured {
				delete(m.entries, id)
			}
		case sameVersion(r, *captured):
			// the unwritten client copy won; rebase it for the next push
			if !onServer {
				m.log.Warnf("product %s was deleted on the server; dropping local edit", id)
				delete(m.entries, id)
				continue
			}
			e.Base = s
		default:
			e.Base = r
			if e.Local == captured {
				e.Local = nil
			}
		}
	}
	return res, nil
}

func sameVersion(a, b models.Product) bool {
	return a.Revision == b.Revision && a.UpdatedAt.Equal(b.UpdatedAt)
}

func versionDescriptor(c models.ConflictInfo) models.ConflictDescriptor {
	var client any
	if c.ExpectedRevision != nil {
		client = *c.ExpectedRevision
	}
	at := c.ServerLastModified
	return models.ConflictDescriptor{
		RecordID:           c.ID,
		Field:              models.FieldVersion,
		ClientValue:        client,
		ServerValue:        c.CurrentRevision,
		ServerLastModified: &at,
	}
}

func (m *SyncManager) pendingEdits() map[string]pendingEdit {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]pendingEdit)
	for id, e := range m.entries {
		if e.Local != nil {
			out[id] = pendingEdit{base: e.Base, local: e.Local}
		}
	}
	return out
}

// settle records a pushed write. The local edit is cleared unless it was
// replaced while the push was in flight.
func (m *SyncManager) settle(p models.Product, captured *models.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[p.ID]
	if !ok {
		m.entries[p.ID] = &entry{Base: p}
		return
	}
	e.Base = p
	if e.Local == captured {
		e.Local = nil
	}
}

// refresh takes the server list as the new base for every clean record.
// Conflicted ids are left to the resolver; dirty records missing on the
// server are kept so the next cycle reports them.
func (m *SyncManager) refresh(server []models.Product, skip map[string]bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool, len(server))
	for _, s := range server {
		seen[s.ID] = true
		if skip[s.ID] {
			continue
		}
		e, ok := m.entries[s.ID]
		if !ok {
			m.entries[s.ID] = &entry{Base: s}
			continue
		}
		if e.Local == nil {
			e.Base = s
		}
	}
	for id, e := range m.entries {
		if !seen[id] && !skip[id] && e.Local == nil {
			delete(m.entries, id)
		}
	}
}

// Checksum is the consistency checksum of the last server state the client
// has seen. It equals the server's checksum when nothing changed remotely.
func (m *SyncManager) Checksum() string {
	return m.localChecksum()
}

func (m *SyncManager) localChecksum() string {
	m.mu.Lock()
	stamps := make([]models.VersionStamp, 0, len(m.entries))
	for _, e := range m.entries {
		stamps = append(stamps, models.StampOf(e.Base))
	}
	m.mu.Unlock()
	return services.Checksum(stamps)
}

func sortedIDs(pending map[string]pendingEdit) []string {
	ids := make([]string, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
