package notifier

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"time"

	"github.com/darlinproweb/Barber-project/internal/models"
	"github.com/darlinproweb/Barber-project/internal/queue"
)

// Bus — канал доставки событий подписчикам (реализуется ws-хабом).
// Доставка at-least-once: подписчики перечитывают состояние из хранилища и
// не полагаются на порядок событий.
type Bus interface {
	Broadcast(message []byte)
}

// Event — полезная нагрузка одного изменения состояния очереди.
type Event struct {
	EventType   string `json:"event_type"`
	EntryID     uint   `json:"entry_id"`
	CustomerID  string `json:"customer_id"`
	Status      string `json:"status"`
	Position    int    `json:"position"`
	QueueLength int    `json:"queue_length"`
}

// PositionInfo — персональный статус клиента в очереди.
type PositionInfo struct {
	Status               string `json:"status"`
	Position             int    `json:"position,omitempty"`
	PeopleAhead          int    `json:"people_ahead"`
	EstimatedWaitMinutes int    `json:"estimated_wait_minutes"`
}

// Stats — агрегированная сводка для панели барбера.
type Stats struct {
	TotalInQueue         int `json:"total_in_queue"`
	TotalServedToday     int `json:"total_served_today"`
	AvgServiceMinutes    int `json:"avg_service_time"`
	EstimatedWaitMinutes int `json:"estimated_wait_time"`
}

// Notifier публикует события изменений и считает производные метрики.
type Notifier struct {
	store queue.Store
	bus   Bus
}

func New(store queue.Store, bus Bus) *Notifier {
	return &Notifier{store: store, bus: bus}
}

// PublishChange реализует queue.Publisher: одно событие на одно
// зафиксированное изменение.
func (n *Notifier) PublishChange(eventType string, entry *models.QueueEntry, queueLength int) {
	if n.bus == nil || entry == nil {
		return
	}
	payload, err := json.Marshal(Event{
		EventType:   eventType,
		EntryID:     entry.ID,
		CustomerID:  entry.CustomerID,
		Status:      entry.Status,
		Position:    entry.Position,
		QueueLength: queueLength,
	})
	if err != nil {
		log.Println("Не удалось сериализовать событие очереди:", err)
		return
	}
	n.bus.Broadcast(payload)
}

// Position считает персональную оценку ожидания клиента: впереди стоит
// position-1 человек, ожидание — это их число, умноженное на СОБСТВЕННУЮ
// оценку записи. Не путать с агрегатом Stats: там среднее по дню.
func (n *Notifier) Position(ctx context.Context, entry *models.QueueEntry) PositionInfo {
	info := PositionInfo{Status: entry.Status}
	if entry.Status != models.StatusWaiting {
		return info
	}
	info.Position = entry.Position
	info.PeopleAhead = entry.Position - 1
	if info.PeopleAhead < 0 {
		info.PeopleAhead = 0
	}
	info.EstimatedWaitMinutes = info.PeopleAhead * entry.EstimatedServiceMinutes
	return info
}

// Stats считает сводку панели: общее ожидание = размер очереди, умноженный на
// среднюю фактическую длительность обслуживания с начала текущего дня
// (15 минут, пока сегодня никого не обслужили).
func (n *Notifier) Stats(ctx context.Context) (*Stats, error) {
	total, err := n.store.CountActive(ctx)
	if err != nil {
		return nil, err
	}

	completed, err := n.store.CompletedSince(ctx, startOfDay(time.Now()))
	if err != nil {
		return nil, err
	}

	avg := queue.DefaultServiceMinutes
	if len(completed) > 0 {
		sum := 0
		for _, e := range completed {
			d := e.ServiceDurationMinutes
			if d <= 0 {
				d = queue.DefaultServiceMinutes
			}
			sum += d
		}
		avg = int(math.Round(float64(sum) / float64(len(completed))))
	}

	wait := 0
	if total > 0 {
		wait = total * avg
	}

	return &Stats{
		TotalInQueue:         total,
		TotalServedToday:     len(completed),
		AvgServiceMinutes:    avg,
		EstimatedWaitMinutes: wait,
	}, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
