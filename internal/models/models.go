package models

import (
	"time"

	"gorm.io/gorm"
)

// Статусы записи в очереди.
const (
	StatusWaiting   = "waiting"
	StatusInService = "in_service"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// ActiveStatuses — статусы, участвующие в живой нумерации очереди.
var ActiveStatuses = []string{StatusWaiting, StatusInService}

type Barber struct {
	gorm.Model
	Name         string `gorm:"not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
}

type QueueEntry struct {
	gorm.Model
	CustomerID              string    `gorm:"index;not null"` // Псевдо-идентификатор клиента (customer_... или walkin_...)
	Name                    string    `gorm:"not null"`       // Имя клиента (после санитизации)
	Phone                   string    `gorm:"not null"`       // Телефон; для walk-in — заглушка
	Position                int       `gorm:"index;not null"` // Текущая позиция (плотная 1..N среди активных записей)
	Status                  string    `gorm:"index;not null"` // waiting | in_service | completed | cancelled
	EntryTime               time.Time `gorm:"index;not null"` // Время вступления в очередь
	EstimatedServiceMinutes int       `gorm:"not null;default:15"`
	ServiceDurationMinutes  int       // Фактическая длительность, заполняется при завершении
}

// IsActive сообщает, участвует ли запись в живой нумерации.
func (e *QueueEntry) IsActive() bool {
	return e.Status == StatusWaiting || e.Status == StatusInService
}
