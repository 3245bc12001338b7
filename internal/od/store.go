package od

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists OD requests. Decide must be a single conditional write:
// it succeeds only while the request is pending.
type Store interface {
	Create(ctx context.Context, r Request) (Request, error)
	Get(ctx context.Context, id string) (Request, error)
	List(ctx context.Context, status Status, limit int) ([]Request, error)
	ListForStudent(ctx context.Context, studentID string, limit int) ([]Request, error)
	Counts(ctx context.Context, studentID string) (Counts, error)
	Decide(ctx context.Context, id string, d Decision) (Request, error)
}

// MemoryStore is the in-process store used by STORE_BACKEND=memory.
type MemoryStore struct {
	mu   sync.Mutex
	seq  int
	byID map[string]*memEntry
}

type memEntry struct {
	seq int
	req Request
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*memEntry)}
}

func (m *MemoryStore) Create(_ context.Context, r Request) (Request, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.Status = StatusPending

	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.byID[r.ID] = &memEntry{seq: m.seq, req: r}
	return r, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return e.req, nil
}

func (m *MemoryStore) List(_ context.Context, status Status, limit int) ([]Request, error) {
	return m.filter(func(r Request) bool { return status == "" || r.Status == status }, limit), nil
}

func (m *MemoryStore) ListForStudent(_ context.Context, studentID string, limit int) ([]Request, error) {
	return m.filter(func(r Request) bool { return r.StudentID == studentID }, limit), nil
}

func (m *MemoryStore) Counts(_ context.Context, studentID string) (Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c Counts
	for _, e := range m.byID {
		if studentID == "" || e.req.StudentID == studentID {
			c.add(e.req.Status, 1)
		}
	}
	return c, nil
}

func (m *MemoryStore) Decide(_ context.Context, id string, d Decision) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	if e.req.Status != StatusPending {
		return Request{}, ErrAlreadyDecided
	}
	at := d.DecidedAt
	e.req.Status = d.Status
	e.req.AdminNotes = d.Notes
	e.req.DecidedBy = d.DecidedBy
	e.req.DecidedAt = &at
	return e.req, nil
}

func (m *MemoryStore) filter(keep func(Request) bool, limit int) []Request {
	m.mu.Lock()
	entries := make([]*memEntry, 0, len(m.byID))
	for _, e := range m.byID {
		if keep(e.req) {
			entries = append(entries, e)
		}
	}
	m.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.req.CreatedAt.Equal(b.req.CreatedAt) {
			return a.req.CreatedAt.After(b.req.CreatedAt)
		}
		return a.seq > b.seq
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]Request, len(entries))
	for i, e := range entries {
		out[i] = e.req
	}
	return out
}
