package queue

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/darlinproweb/Barber-project/internal/models"
	"github.com/google/uuid"
)

// Ограничения входных данных при вступлении в очередь.
const (
	MinNameLen            = 2
	MaxNameLen            = 100
	MaxPhoneLen           = 20
	MaxEstimatedMinutes   = 120
	DefaultServiceMinutes = 15

	// WalkInPhone — заглушка телефона для клиента, добавленного на месте.
	WalkInPhone = "walk-in"
)

// AdmitRequest — заявка на вступление в очередь.
type AdmitRequest struct {
	Name                    string
	Phone                   string
	EstimatedServiceMinutes int    // 0 — не указано, берётся значение по умолчанию
	IsWalkIn                bool   // true — барбер добавляет клиента на месте
	CustomerID              string // не пустой только при повторной отправке той же заявки
}

// Admit валидирует заявку, генерирует customer_id и вставляет запись со
// статусом waiting, делегируя назначение позиции секвенсеру. Возвращает
// созданную запись с назначенной позицией.
func (e *Engine) Admit(ctx context.Context, req AdmitRequest) (*models.QueueEntry, error) {
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	name := SanitizeString(req.Name, MaxNameLen)
	phone := SanitizeString(req.Phone, MaxPhoneLen)
	if req.IsWalkIn && phone == "" {
		phone = WalkInPhone
	}

	if details := validateAdmit(name, phone, req.EstimatedServiceMinutes); len(details) > 0 {
		return nil, &ValidationError{Details: details}
	}

	estimate := req.EstimatedServiceMinutes
	if estimate == 0 {
		estimate = DefaultServiceMinutes
	}

	customerID := req.CustomerID
	if customerID == "" {
		customerID = NewCustomerID(req.IsWalkIn)
	} else if _, err := e.store.GetActiveByCustomerID(ctx, customerID); err == nil {
		// Повторная отправка: этот клиент уже стоит в очереди.
		return nil, ErrDuplicateActiveCustomer
	}

	entry, err := e.seq.Insert(ctx, NewEntry{
		CustomerID:              customerID,
		Name:                    name,
		Phone:                   phone,
		EstimatedServiceMinutes: estimate,
		EntryTime:               time.Now(),
	})
	if err != nil {
		return nil, e.storeErr(err)
	}

	e.publish(ctx, EventCustomerJoined, entry)
	return entry, nil
}

// NewCustomerID генерирует псевдо-идентификатор клиента: префикс различает
// удалённых клиентов и walk-in, метка времени плюс случайный суффикс делают
// коллизию пренебрежимо вероятной (не исключённой по построению).
func NewCustomerID(isWalkIn bool) string {
	prefix := "customer"
	if isWalkIn {
		prefix = "walkin"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), suffix)
}

// SanitizeString обрезает строку до maxLen и вычищает символы, пригодные для
// инъекций в разметку или запросы.
func SanitizeString(input string, maxLen int) string {
	s := strings.TrimSpace(input)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ';':
			return -1
		}
		return r
	}, s)
	runes := []rune(s)
	if len(runes) > maxLen {
		runes = runes[:maxLen]
	}
	return string(runes)
}

func validateAdmit(name, phone string, estimate int) []string {
	var details []string

	switch {
	case name == "":
		details = append(details, "имя обязательно")
	case len([]rune(name)) < MinNameLen:
		details = append(details, fmt.Sprintf("имя должно содержать не менее %d символов", MinNameLen))
	case !isPrintableName(name):
		details = append(details, "имя содержит недопустимые символы")
	}

	switch {
	case phone == "":
		details = append(details, "телефон обязателен")
	case !isValidPhone(phone) && phone != WalkInPhone:
		details = append(details, "телефон имеет неверный формат")
	}

	if estimate < 0 || estimate > MaxEstimatedMinutes {
		details = append(details, fmt.Sprintf("оценка времени должна быть положительной и не более %d минут", MaxEstimatedMinutes))
	}

	return details
}

func isPrintableName(name string) bool {
	for _, r := range name {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

func isValidPhone(phone string) bool {
	digits := 0
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == '-' || r == '(' || r == ')' || r == '.' || r == ' ':
		default:
			return false
		}
	}
	return digits > 0
}
