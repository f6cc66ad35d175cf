package queue

import (
	"context"
	"errors"
	"log"
	"sort"

	"github.com/darlinproweb/Barber-project/internal/models"
)

// Sequencer отвечает за плотность и уникальность позиций среди активных записей.
type Sequencer struct {
	store Store
}

func NewSequencer(store Store) *Sequencer {
	return &Sequencer{store: store}
}

// Insert вставляет новую запись с назначением позиции. Сначала пробует
// атомарный путь хранилища; если бэкенд его не поддерживает, переходит на
// двухшаговый путь "прочитать максимум — вставить". Двухшаговый путь слабее:
// два одновременных вступления могут получить одну позицию, это принятая и
// задокументированная деградация, а не равноправный вариант.
func (s *Sequencer) Insert(ctx context.Context, ne NewEntry) (*models.QueueEntry, error) {
	entry, err := s.store.InsertEntryAtomic(ctx, ne)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, ErrAtomicUnsupported) {
		return nil, err
	}

	log.Println("Хранилище без атомарной вставки: используется деградированный путь назначения позиции")

	maxPos, err := s.store.MaxActivePosition(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.InsertEntry(ctx, ne, maxPos+1)
}

// Renumber переписывает позиции активных записей в плотную последовательность
// 1..N. Идемпотентна: повторный вызов без промежуточных изменений даёт те же
// номера. Сериализация с назначением позиций — на стороне хранилища.
func (s *Sequencer) Renumber(ctx context.Context) ([]models.QueueEntry, error) {
	return s.store.RenumberActive(ctx)
}

// DensePositions вычисляет плотную нумерацию 1..N для активных записей.
// Порядок стабилен: по текущей позиции, при равенстве — по времени вступления,
// затем по порядку вставки. Возвращает только записи, чья позиция меняется.
// Используется реализациями Store внутри их сериализованного шага.
func DensePositions(entries []models.QueueEntry) map[uint]int {
	sorted := make([]models.QueueEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Position != sorted[j].Position {
			return sorted[i].Position < sorted[j].Position
		}
		if !sorted[i].EntryTime.Equal(sorted[j].EntryTime) {
			return sorted[i].EntryTime.Before(sorted[j].EntryTime)
		}
		return sorted[i].ID < sorted[j].ID
	})

	changes := make(map[uint]int)
	for i, e := range sorted {
		if want := i + 1; e.Position != want {
			changes[e.ID] = want
		}
	}
	return changes
}
