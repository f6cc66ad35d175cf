package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/darlinproweb/Barber-project/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func admitN(t *testing.T, engine *Engine, n int) []*models.QueueEntry {
	t.Helper()
	entries := make([]*models.QueueEntry, 0, n)
	for i := 0; i < n; i++ {
		entry, err := engine.Admit(context.Background(), AdmitRequest{Name: "Клиент", Phone: "555-0000"})
		require.NoError(t, err)
		entries = append(entries, entry)
	}
	return entries
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(models.StatusWaiting, models.StatusInService))
	assert.True(t, CanTransition(models.StatusWaiting, models.StatusCancelled))
	assert.True(t, CanTransition(models.StatusInService, models.StatusCompleted))

	// Недопустимые переходы.
	assert.False(t, CanTransition(models.StatusWaiting, models.StatusCompleted))
	assert.False(t, CanTransition(models.StatusInService, models.StatusCancelled))
	assert.False(t, CanTransition(models.StatusCompleted, models.StatusWaiting))
	assert.False(t, CanTransition(models.StatusCancelled, models.StatusWaiting))
	assert.False(t, CanTransition(models.StatusCompleted, models.StatusInService))
}

func TestCallNextEmptyQueue(t *testing.T) {
	engine, _ := newTestEngine()

	_, err := engine.CallNext(context.Background())
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestCallNextPicksSmallestPosition(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()
	entries := admitN(t, engine, 2)

	called, err := engine.CallNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, entries[0].ID, called.ID, "Вызван должен быть клиент с позицией 1")
	assert.Equal(t, models.StatusInService, called.Status)

	// Второй вызов до завершения обслуживания — ошибка единственного барбера.
	_, err = engine.CallNext(ctx)
	assert.ErrorIs(t, err, ErrAlreadyServing)
}

func TestCompleteServiceLifecycle(t *testing.T) {
	engine, store := newTestEngine()
	ctx := context.Background()
	admitN(t, engine, 2)

	called, err := engine.CallNext(ctx)
	require.NoError(t, err)

	completed, err := engine.CompleteService(ctx, called.ID, 25)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, completed.Status)
	assert.Equal(t, 25, completed.ServiceDurationMinutes)

	// Завершённая запись покинула активный набор, оставшийся клиент — позиция 1.
	active, err := store.SelectActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 1, active[0].Position)

	// Барбер снова свободен.
	next, err := engine.CallNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, active[0].ID, next.ID)
}

func TestCompleteServiceOnWaitingEntry(t *testing.T) {
	engine, _ := newTestEngine()
	entries := admitN(t, engine, 1)

	_, err := engine.CompleteService(context.Background(), entries[0].ID, 20)
	assert.ErrorIs(t, err, ErrInvalidState, "Завершение ожидающей записи должно быть отвергнуто")
}

func TestCompleteServiceNotFound(t *testing.T) {
	engine, _ := newTestEngine()

	_, err := engine.CompleteService(context.Background(), 999, 20)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompleteServiceDurationBounds(t *testing.T) {
	engine, _ := newTestEngine()

	_, err := engine.CompleteService(context.Background(), 1, 301)
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr, "Длительность больше 300 минут должна быть отвергнута")
}

func TestCancelEntryRenumbers(t *testing.T) {
	engine, store := newTestEngine()
	ctx := context.Background()
	entries := admitN(t, engine, 3)

	// Отменяем среднего: оставшиеся должны сжаться в (1, 2).
	_, err := engine.CancelEntry(ctx, entries[1].ID)
	require.NoError(t, err)

	active, err := store.SelectActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, entries[0].ID, active[0].ID)
	assert.Equal(t, 1, active[0].Position)
	assert.Equal(t, entries[2].ID, active[1].ID)
	assert.Equal(t, 2, active[1].Position, "Бывшая позиция 3 должна стать позицией 2")
}

func TestCancelEntryInService(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()
	admitN(t, engine, 1)

	called, err := engine.CallNext(ctx)
	require.NoError(t, err)

	_, err = engine.CancelEntry(ctx, called.ID)
	assert.ErrorIs(t, err, ErrInvalidState, "Запись в обслуживании не отменяется, её нужно завершить")
}

func TestCancelByCustomer(t *testing.T) {
	engine, store := newTestEngine()
	ctx := context.Background()

	entry, err := engine.Admit(ctx, AdmitRequest{Name: "Ана", Phone: "555-0001"})
	require.NoError(t, err)

	cancelled, err := engine.CancelByCustomer(ctx, entry.CustomerID)
	require.NoError(t, err)
	require.NotNil(t, cancelled)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	count, err := store.CountActive(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCancelByCustomerNoActiveEntry(t *testing.T) {
	engine, _ := newTestEngine()

	// Нет активной записи — молчаливый успех без изменений.
	cancelled, err := engine.CancelByCustomer(context.Background(), "customer_000_missing")
	assert.NoError(t, err)
	assert.Nil(t, cancelled)
}

func TestCancelByCustomerInService(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	entry, err := engine.Admit(ctx, AdmitRequest{Name: "Ана", Phone: "555-0001"})
	require.NoError(t, err)

	_, err = engine.CallNext(ctx)
	require.NoError(t, err)

	_, err = engine.CancelByCustomer(ctx, entry.CustomerID)
	assert.ErrorIs(t, err, ErrInvalidState, "Клиент в кресле уже не может отменить запись")
}

func TestSingleServerInvariantUnderConcurrentCalls(t *testing.T) {
	engine, store := newTestEngine()
	ctx := context.Background()
	admitN(t, engine, 5)

	// Несколько одновременных вызовов: ровно один должен пройти.
	var wg sync.WaitGroup
	var succeeded int32
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.CallNext(ctx); err == nil {
				atomic.AddInt32(&succeeded, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), succeeded)

	serving, err := store.InServiceEntry(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInService, serving.Status)
}

func TestPublishedEvents(t *testing.T) {
	store := NewMemStore()
	pub := &capturePublisher{}
	engine := NewEngine(store, pub, 0)
	ctx := context.Background()

	entry, err := engine.Admit(ctx, AdmitRequest{Name: "Ана", Phone: "555-0001"})
	require.NoError(t, err)
	called, err := engine.CallNext(ctx)
	require.NoError(t, err)
	_, err = engine.CompleteService(ctx, called.ID, 10)
	require.NoError(t, err)

	require.Len(t, pub.events, 3)
	assert.Equal(t, EventCustomerJoined, pub.events[0].eventType)
	assert.Equal(t, 1, pub.events[0].queueLength)
	assert.Equal(t, EventCustomerCalled, pub.events[1].eventType)
	assert.Equal(t, EventServiceCompleted, pub.events[2].eventType)
	assert.Equal(t, 0, pub.events[2].queueLength, "После завершения очередь пуста")
	assert.Equal(t, entry.CustomerID, pub.events[2].entry.CustomerID)
}

type capturedEvent struct {
	eventType   string
	entry       *models.QueueEntry
	queueLength int
}

type capturePublisher struct {
	events []capturedEvent
}

func (p *capturePublisher) PublishChange(eventType string, entry *models.QueueEntry, queueLength int) {
	p.events = append(p.events, capturedEvent{eventType: eventType, entry: entry, queueLength: queueLength})
}
