// internal/lifecycle/orchestrator.go
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/GhostRepo-0315/CS230-Project/internal/assignment"
	"github.com/GhostRepo-0315/CS230-Project/internal/metastore"
	"github.com/GhostRepo-0315/CS230-Project/internal/storage"
	"github.com/GhostRepo-0315/CS230-Project/internal/utils"
)

// Planner выдаёт таблицу размещения для нового файла
type Planner interface {
	Plan(ctx context.Context, fileID string, totalChunks int) (assignment.Table, error)
}

// errUnchanged прерывает транзакцию без записи, когда изменений нет
var errUnchanged = errors.New("unchanged")

// Orchestrator ведёт жизненный цикл чанков файла: регистрация, назначение узлов,
// учёт загрузок и проверка полноты. Все изменения одного файла выполняются
// под мьютексом этого файла.
type Orchestrator struct {
	store   metastore.MetaStore
	planner Planner
	known   map[string]bool
	locks   *keyLocker
	log     zerolog.Logger
}

// New создаёт оркестратор. known - идентификаторы узлов пула для проверки
// таблиц размещения (nil отключает проверку).
func New(store metastore.MetaStore, planner Planner, known map[string]bool, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:   store,
		planner: planner,
		known:   known,
		locks:   newKeyLocker(),
		log:     log,
	}
}

func validFileName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}

func (o *Orchestrator) storeErr(fileID string, err error) error {
	if errors.Is(err, metastore.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownFileID, fileID)
	}
	if errors.Is(err, metastore.ErrExists) {
		return fmt.Errorf("%w: %s", ErrDuplicateFileID, fileID)
	}
	return err
}

// RegisterFile создаёт запись в состоянии Registered с таблицей размещения от Planner
func (o *Orchestrator) RegisterFile(ctx context.Context, fileID, fileName string, totalChunks int) (*metastore.FileMeta, error) {
	if !storage.ValidFileID(fileID) {
		return nil, fmt.Errorf("%w: file id %q", ErrInvalidMetadata, fileID)
	}
	if !validFileName(fileName) {
		return nil, fmt.Errorf("%w: file name %q", ErrInvalidMetadata, fileName)
	}
	if totalChunks <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTotalChunks, totalChunks)
	}

	unlock := o.locks.Lock(fileID)
	defer unlock()

	if _, err := o.store.GetFileMeta(fileID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateFileID, fileID)
	} else if !errors.Is(err, metastore.ErrNotFound) {
		return nil, err
	}
	if _, err := o.store.Retired(fileID); err == nil {
		return nil, fmt.Errorf("%w: %s already merged", ErrDuplicateFileID, fileID)
	}

	tbl, err := o.planner.Plan(ctx, fileID, totalChunks)
	if err != nil {
		return nil, fmt.Errorf("plan placement for %s: %w", fileID, err)
	}
	if err := tbl.Validate(totalChunks, o.known); err != nil {
		return nil, fmt.Errorf("plan placement for %s: %w", fileID, err)
	}

	now := time.Now().UTC()
	meta := &metastore.FileMeta{
		FileID:       fileID,
		FileName:     fileName,
		TotalChunks:  totalChunks,
		Plan:         tbl.Nodes,
		PlanPolicy:   tbl.Policy,
		Assigned:     make(map[int]string),
		Uploaded:     make(map[int]string),
		State:        metastore.StateRegistered,
		RegisteredAt: now,
		UpdatedAt:    now,
	}
	if err := o.store.CreateFile(meta); err != nil {
		return nil, o.storeErr(fileID, err)
	}

	o.log.Info().
		Str("fileID", fileID).
		Str("fileName", fileName).
		Int("totalChunks", totalChunks).
		Str("policy", tbl.Policy).
		Msg("file registered")

	return meta.Clone(), nil
}

// AssignChunk возвращает узел чанка. Первый запрос индекса забирает следующую
// неиспользованную запись таблицы; повторные запросы возвращают тот же узел.
func (o *Orchestrator) AssignChunk(ctx context.Context, fileID string, index int) (string, error) {
	unlock := o.locks.Lock(fileID)
	defer unlock()

	meta, err := o.store.GetFileMeta(fileID)
	if err != nil {
		return "", o.storeErr(fileID, err)
	}
	if index < 0 || index >= meta.TotalChunks {
		return "", fmt.Errorf("%w: %d not in [0, %d)", ErrChunkIndexOutOfRange, index, meta.TotalChunks)
	}
	if node, ok := meta.Assigned[index]; ok {
		return node, nil
	}
	if meta.State == metastore.StateFailed || meta.State == metastore.StateMerged {
		return "", fmt.Errorf("%w: file %s is %s", ErrInvalidState, fileID, meta.State)
	}

	var node string
	_, err = o.store.Update(fileID, func(m *metastore.FileMeta) error {
		if m.PlanCursor >= len(m.Plan) {
			return fmt.Errorf("%w: placement plan of %s exhausted", ErrInvalidState, fileID)
		}
		node = m.Plan[m.PlanCursor]
		m.PlanCursor++
		m.Assigned[index] = node
		if m.State == metastore.StateRegistered {
			m.State = metastore.StateAssigning
		}
		return nil
	})
	if err != nil {
		return "", o.storeErr(fileID, err)
	}

	o.log.Debug().Str("fileID", fileID).Int("chunkIndex", index).Str("node", node).Msg("chunk assigned")
	return node, nil
}

// RecordUpload отмечает чанк загруженным. Повтор для того же индекса не меняет
// множество загруженных; непустой checksum при этом обновляется.
func (o *Orchestrator) RecordUpload(ctx context.Context, fileID string, index int, checksum string) (*metastore.FileMeta, error) {
	if checksum != "" && !utils.ValidSHA256(checksum) {
		return nil, fmt.Errorf("%w: checksum %q", ErrInvalidMetadata, checksum)
	}
	checksum = strings.ToLower(checksum)

	unlock := o.locks.Lock(fileID)
	defer unlock()

	meta, err := o.store.Update(fileID, func(m *metastore.FileMeta) error {
		if index < 0 || index >= m.TotalChunks {
			return fmt.Errorf("%w: %d not in [0, %d)", ErrChunkIndexOutOfRange, index, m.TotalChunks)
		}
		if _, ok := m.Assigned[index]; !ok {
			return fmt.Errorf("%w: chunk %d of %s", ErrChunkNotAssigned, index, fileID)
		}
		if m.State == metastore.StateMerged {
			return fmt.Errorf("%w: file %s is merged", ErrInvalidState, fileID)
		}

		if prev, ok := m.Uploaded[index]; ok {
			if checksum == "" || checksum == prev {
				return errUnchanged
			}
			m.Uploaded[index] = checksum
			return nil
		}

		m.Uploaded[index] = checksum
		switch m.State {
		case metastore.StateRegistered, metastore.StateAssigning:
			m.State = metastore.StateUploading
		}
		if len(m.Uploaded) == m.TotalChunks && m.State == metastore.StateUploading {
			m.State = metastore.StateComplete
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		meta, err = o.store.GetFileMeta(fileID)
	}
	if err != nil {
		return nil, o.storeErr(fileID, err)
	}

	o.log.Debug().
		Str("fileID", fileID).
		Int("chunkIndex", index).
		Int("uploaded", len(meta.Uploaded)).
		Int("totalChunks", meta.TotalChunks).
		Str("state", string(meta.State)).
		Msg("chunk recorded")

	return meta, nil
}

// CheckCompleteness возвращает признак полноты и недостающие индексы по возрастанию
func (o *Orchestrator) CheckCompleteness(ctx context.Context, fileID string) (bool, []int, error) {
	meta, err := o.store.GetFileMeta(fileID)
	if err != nil {
		return false, nil, o.storeErr(fileID, err)
	}
	missing := meta.Missing()
	return len(missing) == 0, missing, nil
}

// Retire удаляет метаданные после слияния; для уже удалённого id - no-op
func (o *Orchestrator) Retire(ctx context.Context, fileID string) error {
	unlock := o.locks.Lock(fileID)
	defer unlock()
	return o.store.Retire(fileID)
}

// Info возвращает копию метаданных
func (o *Orchestrator) Info(ctx context.Context, fileID string) (*metastore.FileMeta, error) {
	meta, err := o.store.GetFileMeta(fileID)
	if err != nil {
		return nil, o.storeErr(fileID, err)
	}
	return meta, nil
}

// List возвращает все незавершённые файлы (для внешней очистки зависших загрузок)
func (o *Orchestrator) List(ctx context.Context) ([]*metastore.FileMeta, error) {
	return o.store.ListFiles()
}

// fail переводит файл в Failed; вызывающий держит блокировку файла
func (o *Orchestrator) fail(fileID string, cause error, index int, node string) {
	_, err := o.store.Update(fileID, func(m *metastore.FileMeta) error {
		m.State = metastore.StateFailed
		m.Failure = &metastore.Failure{
			Kind:       Kind(cause),
			ChunkIndex: index,
			Node:       node,
			Reason:     cause.Error(),
			At:         time.Now().UTC(),
		}
		return nil
	})
	if err != nil {
		o.log.Error().Err(err).Str("fileID", fileID).Msg("failed to record failure")
		return
	}

	o.log.Warn().
		Err(cause).
		Str("fileID", fileID).
		Int("chunkIndex", index).
		Str("node", node).
		Msg("file failed")
}
