package queue

import (
	"context"
	"time"

	"github.com/darlinproweb/Barber-project/internal/models"
)

// NewEntry — данные новой записи до назначения позиции.
type NewEntry struct {
	CustomerID              string
	Name                    string
	Phone                   string
	EstimatedServiceMinutes int
	EntryTime               time.Time
}

// Store — контракт адаптера хранилища записей очереди. Хранилище является
// единственной точкой синхронизации: вся сериализация конкурентных операций
// обязана происходить на его стороне.
type Store interface {
	// InsertEntryAtomic вычисляет следующую позицию и вставляет запись одной
	// неделимой операцией. Возвращает ErrAtomicUnsupported, если бэкенд не
	// поддерживает такую транзакцию, — тогда контроллер допуска использует
	// деградированный путь MaxActivePosition + InsertEntry.
	InsertEntryAtomic(ctx context.Context, ne NewEntry) (*models.QueueEntry, error)

	// InsertEntry вставляет запись с заранее вычисленной позицией.
	// Деградированный путь: между чтением максимума и вставкой возможна гонка.
	InsertEntry(ctx context.Context, ne NewEntry, position int) (*models.QueueEntry, error)

	// MaxActivePosition возвращает максимальную позицию среди активных записей,
	// 0 — если активных нет.
	MaxActivePosition(ctx context.Context) (int, error)

	// SelectActive возвращает все записи в статусах waiting/in_service,
	// упорядоченные по (position, entry_time, id).
	SelectActive(ctx context.Context) ([]models.QueueEntry, error)

	// CountActive возвращает число активных записей.
	CountActive(ctx context.Context) (int, error)

	// GetByID возвращает запись по внутреннему идентификатору (ErrNotFound).
	GetByID(ctx context.Context, id uint) (*models.QueueEntry, error)

	// GetActiveByCustomerID возвращает активную запись клиента (ErrNotFound).
	GetActiveByCustomerID(ctx context.Context, customerID string) (*models.QueueEntry, error)

	// LatestByCustomerID возвращает последнюю запись клиента в любом статусе
	// (ErrNotFound). Используется публичной выдачей статуса.
	LatestByCustomerID(ctx context.Context, customerID string) (*models.QueueEntry, error)

	// InServiceEntry возвращает запись в статусе in_service (ErrNotFound).
	InServiceEntry(ctx context.Context) (*models.QueueEntry, error)

	// NextWaiting возвращает ожидающую запись с минимальной позицией;
	// при равенстве позиций — раньше вступившую, затем раньше вставленную.
	// ErrNotFound, если ожидающих нет.
	NextWaiting(ctx context.Context) (*models.QueueEntry, error)

	// UpdateStatus — условное обновление: переводит запись из статуса from в
	// to вместе с дополнительными полями. ErrNotFound — записи нет,
	// ErrInvalidState — текущий статус не равен from. При to == in_service
	// обязано атомарно отвергнуть переход (ErrAlreadyServing), если другая
	// запись уже обслуживается.
	UpdateStatus(ctx context.Context, id uint, from, to string, fields map[string]interface{}) error

	// RenumberActive перечитывает активные записи и переписывает их позиции в
	// плотную последовательность 1..N одной сериализованной операцией
	// (вычисление — DensePositions). Возвращает итоговый активный список.
	RenumberActive(ctx context.Context) ([]models.QueueEntry, error)

	// CompletedSince возвращает записи, завершённые начиная с указанного
	// момента. Для средней длительности обслуживания за день.
	CompletedSince(ctx context.Context, since time.Time) ([]models.QueueEntry, error)

	// PurgeTerminalBefore удаляет завершённые и отменённые записи старше
	// cutoff. Возвращает число удалённых строк.
	PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
