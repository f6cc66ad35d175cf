package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/darlinproweb/Barber-project/internal/models"
)

// MemStore — потокобезопасная реализация Store в памяти. Используется в тестах
// и при запуске без базы данных. Мьютекс играет роль транзакции хранилища:
// каждая операция неделима относительно остальных.
type MemStore struct {
	mu      sync.Mutex
	nextID  uint
	entries map[uint]*models.QueueEntry

	// DisableAtomic имитирует бэкенд без атомарной вставки: InsertEntryAtomic
	// возвращает ErrAtomicUnsupported, проверяя деградированный путь.
	DisableAtomic bool
}

func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[uint]*models.QueueEntry)}
}

func (m *MemStore) InsertEntryAtomic(ctx context.Context, ne NewEntry) (*models.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DisableAtomic {
		return nil, ErrAtomicUnsupported
	}
	return m.insertLocked(ne, m.maxActiveLocked()+1), nil
}

func (m *MemStore) InsertEntry(ctx context.Context, ne NewEntry, position int) (*models.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(ne, position), nil
}

func (m *MemStore) insertLocked(ne NewEntry, position int) *models.QueueEntry {
	m.nextID++
	now := time.Now()
	entry := &models.QueueEntry{
		CustomerID:              ne.CustomerID,
		Name:                    ne.Name,
		Phone:                   ne.Phone,
		Position:                position,
		Status:                  models.StatusWaiting,
		EntryTime:               ne.EntryTime,
		EstimatedServiceMinutes: ne.EstimatedServiceMinutes,
	}
	entry.ID = m.nextID
	entry.CreatedAt = now
	entry.UpdatedAt = now
	m.entries[entry.ID] = entry
	copied := *entry
	return &copied
}

func (m *MemStore) MaxActivePosition(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxActiveLocked(), nil
}

func (m *MemStore) maxActiveLocked() int {
	max := 0
	for _, e := range m.entries {
		if e.IsActive() && e.Position > max {
			max = e.Position
		}
	}
	return max
}

func (m *MemStore) SelectActive(ctx context.Context) ([]models.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectActiveLocked(), nil
}

func (m *MemStore) selectActiveLocked() []models.QueueEntry {
	var active []models.QueueEntry
	for _, e := range m.entries {
		if e.IsActive() {
			active = append(active, *e)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Position != active[j].Position {
			return active[i].Position < active[j].Position
		}
		if !active[i].EntryTime.Equal(active[j].EntryTime) {
			return active[i].EntryTime.Before(active[j].EntryTime)
		}
		return active[i].ID < active[j].ID
	})
	return active
}

func (m *MemStore) CountActive(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.IsActive() {
			n++
		}
	}
	return n, nil
}

func (m *MemStore) GetByID(ctx context.Context, id uint) (*models.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *e
	return &copied, nil
}

func (m *MemStore) GetActiveByCustomerID(ctx context.Context, customerID string) (*models.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.CustomerID == customerID && e.IsActive() {
			copied := *e
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) LatestByCustomerID(ctx context.Context, customerID string) (*models.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.QueueEntry
	for _, e := range m.entries {
		if e.CustomerID != customerID {
			continue
		}
		if latest == nil || e.ID > latest.ID {
			latest = e
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (m *MemStore) InServiceEntry(ctx context.Context) (*models.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.Status == models.StatusInService {
			copied := *e
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) NextWaiting(ctx context.Context) (*models.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var next *models.QueueEntry
	for _, e := range m.entries {
		if e.Status != models.StatusWaiting {
			continue
		}
		if next == nil || before(e, next) {
			next = e
		}
	}
	if next == nil {
		return nil, ErrNotFound
	}
	copied := *next
	return &copied, nil
}

func before(a, b *models.QueueEntry) bool {
	if a.Position != b.Position {
		return a.Position < b.Position
	}
	if !a.EntryTime.Equal(b.EntryTime) {
		return a.EntryTime.Before(b.EntryTime)
	}
	return a.ID < b.ID
}

func (m *MemStore) UpdateStatus(ctx context.Context, id uint, from, to string, fields map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return ErrNotFound
	}
	if e.Status != from {
		return ErrInvalidState
	}
	if to == models.StatusInService {
		for _, other := range m.entries {
			if other.ID != id && other.Status == models.StatusInService {
				return ErrAlreadyServing
			}
		}
	}

	e.Status = to
	e.UpdatedAt = time.Now()
	if d, ok := fields["service_duration_minutes"]; ok {
		if minutes, ok := d.(int); ok {
			e.ServiceDurationMinutes = minutes
		}
	}
	return nil
}

func (m *MemStore) RenumberActive(ctx context.Context) ([]models.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, pos := range DensePositions(m.selectActiveLocked()) {
		m.entries[id].Position = pos
		m.entries[id].UpdatedAt = time.Now()
	}
	return m.selectActiveLocked(), nil
}

func (m *MemStore) CompletedSince(ctx context.Context, since time.Time) ([]models.QueueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.QueueEntry
	for _, e := range m.entries {
		if e.Status == models.StatusCompleted && !e.UpdatedAt.Before(since) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *MemStore) PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var purged int64
	for id, e := range m.entries {
		terminal := e.Status == models.StatusCompleted || e.Status == models.StatusCancelled
		if terminal && e.UpdatedAt.Before(cutoff) {
			delete(m.entries, id)
			purged++
		}
	}
	return purged, nil
}
