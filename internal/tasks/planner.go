package tasks

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/darlinproweb/Barber-project/internal/queue"
	"github.com/robfig/cron/v3"
)

var (
	engine *queue.Engine
	store  queue.Store
)

// ReconcilePositions повторно запускает перенумерацию активных записей.
// Статус — первичный факт, нумерация — производная проекция: если после
// завершения или отмены перенумерация не прошла, этот проход её досчитает.
// Идемпотентна, лишний запуск ничего не меняет.
func ReconcilePositions() {
	if engine == nil {
		return
	}
	if err := engine.Reconcile(context.Background()); err != nil {
		log.Println("Фоновая перенумерация не удалась:", err)
	}
}

// PurgeOldEntries удаляет завершённые и отменённые записи старше срока
// хранения (RETENTION_DAYS, по умолчанию 30 дней).
func PurgeOldEntries() {
	if store == nil {
		return
	}

	days := 30
	if v := os.Getenv("RETENTION_DAYS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			days = parsed
		}
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	purged, err := store.PurgeTerminalBefore(context.Background(), cutoff)
	if err != nil {
		log.Println("Ошибка при удалении старых записей очереди:", err)
		return
	}
	if purged > 0 {
		log.Printf("Удалено %d старых записей очереди.\n", purged)
	}
}

// InitScheduler инициализирует планировщик cron-задач.
func InitScheduler(e *queue.Engine) *cron.Cron {
	engine = e
	store = e.Store()

	c := cron.New(cron.WithSeconds())

	// Самовосстановление нумерации каждую минуту.
	_, err := c.AddFunc("0 * * * * *", ReconcilePositions)
	if err != nil {
		log.Println("Ошибка запуска cron-задачи ReconcilePositions:", err)
	}

	// Очистка старых записей каждый день в 03:00.
	_, err = c.AddFunc("0 0 3 * * *", PurgeOldEntries)
	if err != nil {
		log.Println("Ошибка запуска cron-задачи PurgeOldEntries:", err)
	}

	c.Start()
	log.Println("Cron-планировщик запущен.")
	return c
}
