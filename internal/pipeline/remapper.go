package pipeline

import (
	"strings"
	"sync"

	"fictures-server/internal/metrics"
	"fictures-server/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Remapper хранит соответствие временных ID (их назначает генератор) и ID из базы.
// Ссылка без соответствия не подменяется исходной строкой: она отбрасывается с предупреждением.
type Remapper struct {
	mu      sync.Mutex
	tables  map[models.EntityKind]map[string]uuid.UUID
	aliases map[models.EntityKind]map[string]uuid.UUID
	drops   []*models.MappingError
	logger  *zap.Logger
}

func NewRemapper(logger *zap.Logger) *Remapper {
	return &Remapper{
		tables:  make(map[models.EntityKind]map[string]uuid.UUID),
		aliases: make(map[models.EntityKind]map[string]uuid.UUID),
		logger:  logger.Named("Remapper"),
	}
}

// Register добавляет соответствие после вставки сущности.
func (r *Remapper) Register(kind models.EntityKind, tempID string, durableID uuid.UUID) {
	if tempID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tables[kind]
	if !ok {
		t = make(map[string]uuid.UUID)
		r.tables[kind] = t
	}
	t[tempID] = durableID
}

// Alias - запасной ключ поиска (имя персонажа или места), без учёта регистра.
// Генератор иногда ссылается по имени вместо ID.
func (r *Remapper) Alias(kind models.EntityKind, alias string, durableID uuid.UUID) {
	key := normalizeAlias(alias)
	if key == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.aliases[kind]
	if !ok {
		a = make(map[string]uuid.UUID)
		r.aliases[kind] = a
	}
	if _, exists := a[key]; !exists {
		a[key] = durableID
	}
}

// Remap возвращает durable ID или MappingError. Промах логируется и учитывается.
func (r *Remapper) Remap(kind models.EntityKind, tempID string) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.tables[kind][tempID]; ok {
		return id, nil
	}
	if id, ok := r.aliases[kind][normalizeAlias(tempID)]; ok {
		return id, nil
	}
	mErr := &models.MappingError{Kind: kind, TempID: tempID}
	r.drops = append(r.drops, mErr)
	metrics.MappingErrorsTotal.WithLabelValues(string(kind)).Inc()
	r.logger.Warn("Dropping unresolved reference", zap.String("kind", string(kind)), zap.String("temp_id", tempID))
	return uuid.Nil, mErr
}

// RemapOptional: пустая ссылка остаётся пустой, неизвестная отбрасывается.
func (r *Remapper) RemapOptional(kind models.EntityKind, tempID string) *uuid.UUID {
	if strings.TrimSpace(tempID) == "" {
		return nil
	}
	id, err := r.Remap(kind, tempID)
	if err != nil {
		return nil
	}
	return &id
}

// RemapList переписывает список ссылок, выкидывая неизвестные и повторы. Порядок сохраняется.
func (r *Remapper) RemapList(kind models.EntityKind, tempIDs []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(tempIDs))
	seen := make(map[uuid.UUID]struct{}, len(tempIDs))
	for _, tempID := range tempIDs {
		if strings.TrimSpace(tempID) == "" {
			continue
		}
		id, err := r.Remap(kind, tempID)
		if err != nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Drops - все отброшенные ссылки за запуск.
func (r *Remapper) Drops() []*models.MappingError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.MappingError(nil), r.drops...)
}

// Known сообщает, есть ли соответствие для временного ID.
func (r *Remapper) Known(kind models.EntityKind, tempID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tables[kind][tempID]
	return ok
}

func normalizeAlias(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
