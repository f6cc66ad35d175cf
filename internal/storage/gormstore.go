package storage

import (
	"context"
	"errors"
	"time"

	"github.com/darlinproweb/Barber-project/internal/models"
	"github.com/darlinproweb/Barber-project/internal/queue"
	"gorm.io/gorm"
)

// queueLockKey — ключ advisory-блокировки postgres, сериализующей назначение
// позиций и перенумерацию. Очередь одна, ключ фиксированный.
const queueLockKey = 4217

// GormStore реализует queue.Store поверх gorm/postgres.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// InsertEntryAtomic назначает позицию и вставляет запись в одной транзакции
// под advisory-блокировкой: два одновременных вступления не могут получить
// одну позицию. На бэкенде без advisory-блокировок (не postgres) возвращает
// queue.ErrAtomicUnsupported.
func (s *GormStore) InsertEntryAtomic(ctx context.Context, ne queue.NewEntry) (*models.QueueEntry, error) {
	if s.db.Dialector.Name() != "postgres" {
		return nil, queue.ErrAtomicUnsupported
	}

	entry := newEntryModel(ne)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", queueLockKey).Error; err != nil {
			return err
		}
		var maxPos int
		row := tx.Model(&models.QueueEntry{}).
			Where("status IN ?", models.ActiveStatuses).
			Select("COALESCE(MAX(position),0)").Row()
		if err := row.Scan(&maxPos); err != nil {
			return err
		}
		entry.Position = maxPos + 1
		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *GormStore) InsertEntry(ctx context.Context, ne queue.NewEntry, position int) (*models.QueueEntry, error) {
	entry := newEntryModel(ne)
	entry.Position = position
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func newEntryModel(ne queue.NewEntry) *models.QueueEntry {
	return &models.QueueEntry{
		CustomerID:              ne.CustomerID,
		Name:                    ne.Name,
		Phone:                   ne.Phone,
		Status:                  models.StatusWaiting,
		EntryTime:               ne.EntryTime,
		EstimatedServiceMinutes: ne.EstimatedServiceMinutes,
	}
}

func (s *GormStore) MaxActivePosition(ctx context.Context) (int, error) {
	var maxPos int
	row := s.db.WithContext(ctx).Model(&models.QueueEntry{}).
		Where("status IN ?", models.ActiveStatuses).
		Select("COALESCE(MAX(position),0)").Row()
	if err := row.Scan(&maxPos); err != nil {
		return 0, err
	}
	return maxPos, nil
}

func (s *GormStore) SelectActive(ctx context.Context) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := s.db.WithContext(ctx).
		Where("status IN ?", models.ActiveStatuses).
		Order("position ASC, entry_time ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *GormStore) CountActive(ctx context.Context) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.QueueEntry{}).
		Where("status IN ?", models.ActiveStatuses).
		Count(&count).Error
	return int(count), err
}

func (s *GormStore) GetByID(ctx context.Context, id uint) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	if err := s.db.WithContext(ctx).First(&entry, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &entry, nil
}

func (s *GormStore) GetActiveByCustomerID(ctx context.Context, customerID string) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := s.db.WithContext(ctx).
		Where("customer_id = ? AND status IN ?", customerID, models.ActiveStatuses).
		First(&entry).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &entry, nil
}

func (s *GormStore) LatestByCustomerID(ctx context.Context, customerID string) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("id DESC").
		First(&entry).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &entry, nil
}

func (s *GormStore) InServiceEntry(ctx context.Context) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := s.db.WithContext(ctx).
		Where("status = ?", models.StatusInService).
		First(&entry).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &entry, nil
}

func (s *GormStore) NextWaiting(ctx context.Context) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := s.db.WithContext(ctx).
		Where("status = ?", models.StatusWaiting).
		Order("position ASC, entry_time ASC, id ASC").
		First(&entry).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &entry, nil
}

// UpdateStatus — условное обновление статуса. Переход в in_service выполняется
// под advisory-блокировкой с проверкой, что никто другой не обслуживается.
func (s *GormStore) UpdateStatus(ctx context.Context, id uint, from, to string, fields map[string]interface{}) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if to == models.StatusInService {
			if s.db.Dialector.Name() == "postgres" {
				if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", queueLockKey).Error; err != nil {
					return err
				}
			}
			var serving int64
			if err := tx.Model(&models.QueueEntry{}).
				Where("status = ? AND id <> ?", models.StatusInService, id).
				Count(&serving).Error; err != nil {
				return err
			}
			if serving > 0 {
				return queue.ErrAlreadyServing
			}
		}

		updates := map[string]interface{}{"status": to}
		for k, v := range fields {
			updates[k] = v
		}

		res := tx.Model(&models.QueueEntry{}).
			Where("id = ? AND status = ?", id, from).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var exists int64
			if err := tx.Model(&models.QueueEntry{}).Where("id = ?", id).Count(&exists).Error; err != nil {
				return err
			}
			if exists == 0 {
				return queue.ErrNotFound
			}
			return queue.ErrInvalidState
		}
		return nil
	})
}

// RenumberActive переписывает позиции активных записей в плотную
// последовательность 1..N под той же advisory-блокировкой, что и назначение
// позиций. Записи с уже правильным номером не переписываются, поэтому
// повторный запуск без изменений ничего не трогает.
func (s *GormStore) RenumberActive(ctx context.Context) ([]models.QueueEntry, error) {
	var result []models.QueueEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.db.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", queueLockKey).Error; err != nil {
				return err
			}
		}

		var active []models.QueueEntry
		if err := tx.
			Where("status IN ?", models.ActiveStatuses).
			Order("position ASC, entry_time ASC, id ASC").
			Find(&active).Error; err != nil {
			return err
		}

		for id, pos := range queue.DensePositions(active) {
			if err := tx.Model(&models.QueueEntry{}).
				Where("id = ?", id).
				Update("position", pos).Error; err != nil {
				return err
			}
		}

		return tx.
			Where("status IN ?", models.ActiveStatuses).
			Order("position ASC, entry_time ASC, id ASC").
			Find(&result).Error
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *GormStore) CompletedSince(ctx context.Context, since time.Time) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at >= ?", models.StatusCompleted, since).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *GormStore) PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []string{models.StatusCompleted, models.StatusCancelled}, cutoff).
		Delete(&models.QueueEntry{})
	return res.RowsAffected, res.Error
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return queue.ErrNotFound
	}
	return err
}
