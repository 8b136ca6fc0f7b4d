package actionlog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/instance-action-log/instance-action-log/internal/db/models"
)

// Store is the narrow persistence port the recorder writes through.
// Implementations must tolerate concurrent Append calls from independent
// requests; ListByTarget returns records in insertion order.
type Store interface {
	Append(ctx context.Context, rec *models.InstanceActionLog) (string, error)
	ListByTarget(ctx context.Context, targetID string) ([]*models.InstanceActionLog, error)
}

// MemoryStore is a process-local Store, used for tests and for running the
// service without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*models.InstanceActionLog
	now     func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// Append assigns the id, sequence and creation time, then stores a copy of rec.
func (m *MemoryStore) Append(_ context.Context, rec *models.InstanceActionLog) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec.ID = uuid.New().String()
	rec.Sequence = int64(len(m.records)) + 1
	rec.CreatedAt = m.now()

	stored := *rec
	m.records = append(m.records, &stored)
	return rec.ID, nil
}

// ListByTarget returns copies of the non-deleted records for targetID.
func (m *MemoryStore) ListByTarget(_ context.Context, targetID string) ([]*models.InstanceActionLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.InstanceActionLog, 0)
	for _, rec := range m.records {
		if rec.TargetID == targetID && !rec.SoftDeleted {
			c := *rec
			out = append(out, &c)
		}
	}
	return out, nil
}

// Len reports the number of stored records, including soft-deleted ones.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
