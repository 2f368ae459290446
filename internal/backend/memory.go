package backend

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/lewtec/scriptorium/internal/domain"
	"github.com/lewtec/scriptorium/internal/geometry"
)

// MemoryClient is an in-process Client holding records in a map. Fail, when
// set, is consulted before every call and may inject an error.
type MemoryClient struct {
	mu      sync.Mutex
	records map[int64]domain.Record
	nextID  int64
	calls   []string

	Fail func(method string, id int64, rec domain.Record) error
}

// NewMemoryClient creates an empty in-process backend.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{records: make(map[int64]domain.Record)}
}

// Seed stores rec under its own id, as if it had been saved earlier.
func (m *MemoryClient) Seed(rec domain.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	m.nextID = max(m.nextID, rec.ID)
}

// Calls returns "METHOD id" for every call made so far.
func (m *MemoryClient) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

func (m *MemoryClient) record(method string, id int64, rec domain.Record) error {
	m.mu.Lock()
	m.calls = append(m.calls, fmt.Sprintf("%s %d", method, id))
	fail := m.Fail
	m.mu.Unlock()
	if fail != nil {
		return fail(method, id, rec)
	}
	return nil
}

func (m *MemoryClient) List(ctx context.Context, imageID string, classification *int64) ([]domain.Record, error) {
	if err := m.record("GET", 0, domain.Record{Image: imageID}); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Record{}
	for _, r := range m.records {
		if r.Image != imageID {
			continue
		}
		if classification != nil && (r.Classification == nil || *r.Classification != *classification) {
			continue
		}
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b domain.Record) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *MemoryClient) Create(ctx context.Context, rec domain.Record) (domain.Record, error) {
	if err := m.record("POST", 0, rec); err != nil {
		return domain.Record{}, err
	}
	if _, err := geometry.ParseFragment(rec.Geometry); err != nil {
		return domain.Record{}, &StatusError{Method: "POST", URL: "/annotations", Code: 400, Body: err.Error()}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	now := time.Now().UTC()
	rec.ID = m.nextID
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.records[rec.ID] = rec
	return rec, nil
}

func (m *MemoryClient) Update(ctx context.Context, id int64, patch domain.RecordPatch) (domain.Record, error) {
	if err := m.record("PATCH", id, domain.Record{ID: id}); err != nil {
		return domain.Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return domain.Record{}, &StatusError{Method: "PATCH", URL: fmt.Sprintf("/annotations/%d", id), Code: 404}
	}
	if patch.Geometry != nil {
		rec.Geometry = *patch.Geometry
	}
	if patch.Body != nil {
		rec.Body = *patch.Body
	}
	if patch.Classification != nil {
		rec.Classification = patch.Classification
	}
	if patch.Hand != nil {
		rec.Hand = patch.Hand
	}
	rec.UpdatedAt = time.Now().UTC()
	m.records[id] = rec
	return rec, nil
}

func (m *MemoryClient) Delete(ctx context.Context, id int64) error {
	if err := m.record("DELETE", id, domain.Record{ID: id}); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return &StatusError{Method: "DELETE", URL: fmt.Sprintf("/annotations/%d", id), Code: 404}
	}
	delete(m.records, id)
	return nil
}

var _ Client = (*MemoryClient)(nil)
