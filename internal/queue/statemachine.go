package queue

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/darlinproweb/Barber-project/internal/models"
)

// Типы событий, публикуемых после зафиксированного изменения состояния.
const (
	EventCustomerJoined    = "customer_joined"
	EventCustomerCalled    = "customer_called"
	EventServiceCompleted  = "service_completed"
	EventCustomerCancelled = "customer_cancelled"
)

// Publisher — граница ядра: получает событие после зафиксированного изменения.
// Доставка at-least-once; подписчики перечитывают состояние из хранилища.
type Publisher interface {
	PublishChange(eventType string, entry *models.QueueEntry, queueLength int)
}

// transitions — таблица допустимых переходов статуса. Терминальные статусы
// не реактивируются: повторное вступление всегда создаёт новую запись.
var transitions = map[string]map[string]bool{
	models.StatusWaiting: {
		models.StatusInService: true,
		models.StatusCancelled: true,
	},
	models.StatusInService: {
		models.StatusCompleted: true,
	},
}

// CanTransition сообщает, допустим ли переход from -> to.
func CanTransition(from, to string) bool {
	return transitions[from][to]
}

// Engine — машина состояний очереди: единственная точка, через которую
// проходят все изменения статусов и нумерации.
type Engine struct {
	store   Store
	seq     *Sequencer
	pub     Publisher
	timeout time.Duration
}

// DefaultStoreTimeout — предел ожидания одной операции хранилища.
const DefaultStoreTimeout = 5 * time.Second

func NewEngine(store Store, pub Publisher, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &Engine{
		store:   store,
		seq:     NewSequencer(store),
		pub:     pub,
		timeout: timeout,
	}
}

// Store возвращает адаптер хранилища движка.
func (e *Engine) Store() Store { return e.store }

// CallNext переводит ожидающую запись с минимальной позицией в in_service.
// Пока один клиент обслуживается, следующего позвать нельзя (ErrAlreadyServing):
// барбер один, сначала нужно завершить текущее обслуживание.
func (e *Engine) CallNext(ctx context.Context) (*models.QueueEntry, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	next, err := e.store.NextWaiting(ctx)
	if errors.Is(err, ErrNotFound) {
		// Отличаем пустую очередь от занятого барбера.
		if _, svcErr := e.store.InServiceEntry(ctx); svcErr == nil {
			return nil, ErrAlreadyServing
		}
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, e.storeErr(err)
	}

	// Условное обновление на стороне хранилища атомарно отвергает второй
	// CallNext, пришедший наперегонки.
	if err := e.store.UpdateStatus(ctx, next.ID, models.StatusWaiting, models.StatusInService, nil); err != nil {
		return nil, e.storeErr(err)
	}
	next.Status = models.StatusInService

	e.publish(ctx, EventCustomerCalled, next)
	return next, nil
}

// CompleteService завершает текущее обслуживание: in_service -> completed,
// фиксирует фактическую длительность и запускает перенумерацию.
func (e *Engine) CompleteService(ctx context.Context, entryID uint, durationMinutes int) (*models.QueueEntry, error) {
	if durationMinutes < 0 || durationMinutes > 300 {
		return nil, &ValidationError{Details: []string{"длительность обслуживания должна быть от 0 до 300 минут"}}
	}

	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	entry, err := e.store.GetByID(ctx, entryID)
	if err != nil {
		return nil, e.storeErr(err)
	}
	if !CanTransition(entry.Status, models.StatusCompleted) {
		return nil, ErrInvalidState
	}

	fields := map[string]interface{}{"service_duration_minutes": durationMinutes}
	if err := e.store.UpdateStatus(ctx, entry.ID, models.StatusInService, models.StatusCompleted, fields); err != nil {
		return nil, e.storeErr(err)
	}
	entry.Status = models.StatusCompleted
	entry.ServiceDurationMinutes = durationMinutes

	e.renumberAfter(ctx, "завершения обслуживания")
	e.publish(ctx, EventServiceCompleted, entry)
	return entry, nil
}

// CancelEntry отменяет ожидающую запись по внутреннему идентификатору
// (операторский путь). Запись в обслуживании этим путём не отменяется —
// её нужно завершить.
func (e *Engine) CancelEntry(ctx context.Context, entryID uint) (*models.QueueEntry, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	entry, err := e.store.GetByID(ctx, entryID)
	if err != nil {
		return nil, e.storeErr(err)
	}
	return e.cancel(ctx, entry)
}

// CancelByCustomer отменяет активную запись по идентификатору клиента
// (публичный путь самообслуживания: право даёт знание customer_id).
// Если активной записи нет — молча успешен, чтобы не раскрывать,
// существовал ли такой клиент.
func (e *Engine) CancelByCustomer(ctx context.Context, customerID string) (*models.QueueEntry, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	entry, err := e.store.GetActiveByCustomerID(ctx, customerID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, e.storeErr(err)
	}
	return e.cancel(ctx, entry)
}

func (e *Engine) cancel(ctx context.Context, entry *models.QueueEntry) (*models.QueueEntry, error) {
	if !CanTransition(entry.Status, models.StatusCancelled) {
		return nil, ErrInvalidState
	}
	if err := e.store.UpdateStatus(ctx, entry.ID, models.StatusWaiting, models.StatusCancelled, nil); err != nil {
		return nil, e.storeErr(err)
	}
	entry.Status = models.StatusCancelled

	e.renumberAfter(ctx, "отмены записи")
	e.publish(ctx, EventCustomerCancelled, entry)
	return entry, nil
}

// Reconcile запускает перенумерацию вне основного потока операций.
// Используется фоновой задачей для самовосстановления нумерации после сбоя.
func (e *Engine) Reconcile(ctx context.Context) error {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()
	_, err := e.seq.Renumber(ctx)
	return e.storeErr(err)
}

// renumberAfter запускает перенумерацию после удаления записи из активного
// набора. Статус уже зафиксирован и является первичным фактом; при сбое
// нумерацию досчитает фоновая задача, откат не выполняется.
func (e *Engine) renumberAfter(ctx context.Context, reason string) {
	if _, err := e.seq.Renumber(ctx); err != nil {
		log.Printf("Перенумерация после %s не удалась (будет повторена фоном): %v", reason, err)
	}
}

func (e *Engine) publish(ctx context.Context, eventType string, entry *models.QueueEntry) {
	if e.pub == nil {
		return
	}
	length, err := e.store.CountActive(ctx)
	if err != nil {
		log.Printf("Не удалось получить длину очереди для события %s: %v", eventType, err)
	}
	e.pub.PublishChange(eventType, entry, length)
}

// opCtx ограничивает операцию таймаутом хранилища, если дедлайн ещё не задан.
func (e *Engine) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.timeout)
}

// storeErr переводит таймауты и обрывы контекста в повторяемую ошибку.
func (e *Engine) storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrStoreUnavailable
	}
	return err
}
