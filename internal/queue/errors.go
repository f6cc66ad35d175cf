package queue

import (
	"errors"
	"strings"
)

// Таксономия ошибок ядра очереди. Обработчики транслируют их в коды ответа.
var (
	// ErrNotFound — запись с указанным идентификатором не существует.
	ErrNotFound = errors.New("запись в очереди не найдена")
	// ErrInvalidState — запрошенный переход статуса недопустим для текущего состояния записи.
	ErrInvalidState = errors.New("недопустимый переход статуса")
	// ErrQueueEmpty — нет ни одной записи в статусе waiting.
	ErrQueueEmpty = errors.New("в очереди нет ожидающих клиентов")
	// ErrAlreadyServing — уже есть запись в статусе in_service; сначала нужно завершить её.
	ErrAlreadyServing = errors.New("клиент уже обслуживается")
	// ErrDuplicateActiveCustomer — клиент с таким customer_id уже состоит в очереди.
	ErrDuplicateActiveCustomer = errors.New("клиент уже состоит в очереди")
	// ErrStoreUnavailable — хранилище недоступно или операция превысила таймаут; можно повторить позже.
	ErrStoreUnavailable = errors.New("хранилище временно недоступно")
	// ErrAtomicUnsupported — бэкенд не умеет атомарную вставку; вызывающий код
	// переходит на деградированный двухшаговый путь.
	ErrAtomicUnsupported = errors.New("атомарная вставка не поддерживается хранилищем")
)

// ValidationError — ошибка валидации входных данных. Не повторяется,
// возвращается вызывающему дословно со списком причин.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return "ошибка валидации: " + strings.Join(e.Details, "; ")
}

// IsRetryable сообщает, имеет ли смысл повторить операцию.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
