// internal/lifecycle/reconstructor.go
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/GhostRepo-0315/CS230-Project/internal/metastore"
	"github.com/GhostRepo-0315/CS230-Project/internal/storage"
	"github.com/GhostRepo-0315/CS230-Project/internal/utils"
)

const (
	DefaultFetchTimeout = 30 * time.Second
	DefaultParallelism  = 4
)

// ChunkFetcher читает и удаляет чанки на узлах (storage.Router)
type ChunkFetcher interface {
	Get(ctx context.Context, nodeID, fileID string, index int) ([]byte, error)
	Delete(ctx context.Context, nodeID, fileID string, index int) error
}

// Reconstructor собирает файл из чанков после завершения загрузки
type Reconstructor struct {
	orch   *Orchestrator
	chunks ChunkFetcher

	OutputDir    string        // Каталог итоговых файлов; пустой - результат только в памяти
	FetchTimeout time.Duration // Таймаут получения одного чанка
	Parallelism  int           // Сколько чанков читается одновременно
	KeepChunks   bool          // Не удалять чанки с узлов после сборки

	log zerolog.Logger
}

// Result - итог сборки
type Result struct {
	FileID        string
	FileName      string
	Path          string
	Data          []byte
	AlreadyMerged bool
	Meta          *metastore.FileMeta
}

func NewReconstructor(orch *Orchestrator, chunks ChunkFetcher, outputDir string, log zerolog.Logger) *Reconstructor {
	return &Reconstructor{
		orch:         orch,
		chunks:       chunks,
		OutputDir:    outputDir,
		FetchTimeout: DefaultFetchTimeout,
		Parallelism:  DefaultParallelism,
		log:          log,
	}
}

// outputPath раскладывает итоги по fileID: файлы с одинаковым именем не затирают друг друга
func (r *Reconstructor) outputPath(fileID, fileName string) string {
	if r.OutputDir == "" {
		return ""
	}
	return filepath.Join(r.OutputDir, fileID, fileName)
}

// Merge собирает чанки в порядке индексов, записывает итог во временный файл,
// переименовывает его, переводит файл в Merged и удаляет метаданные.
// Повторный вызов для уже собранного файла возвращает AlreadyMerged.
func (r *Reconstructor) Merge(ctx context.Context, fileID string) (*Result, error) {
	unlock := r.orch.locks.Lock(fileID)
	defer unlock()

	meta, err := r.orch.store.GetFileMeta(fileID)
	if errors.Is(err, metastore.ErrNotFound) {
		rf, rerr := r.orch.store.Retired(fileID)
		if rerr != nil {
			return nil, r.orch.storeErr(fileID, err)
		}
		return &Result{
			FileID:        fileID,
			FileName:      rf.FileName,
			Path:          r.outputPath(fileID, rf.FileName),
			AlreadyMerged: true,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	if meta.State == metastore.StateMerged {
		// Итог уже записан, запись осталась в files
		if err := r.orch.store.Retire(fileID); err != nil {
			return nil, fmt.Errorf("retire %s: %w", fileID, err)
		}
		return &Result{
			FileID:        fileID,
			FileName:      meta.FileName,
			Path:          r.outputPath(fileID, meta.FileName),
			AlreadyMerged: true,
			Meta:          meta,
		}, nil
	}

	if missing := meta.Missing(); len(missing) > 0 {
		return nil, &MissingChunksError{FileID: fileID, Missing: missing}
	}
	if meta.State != metastore.StateComplete && meta.State != metastore.StateFailed {
		return nil, fmt.Errorf("%w: cannot merge %s in state %s", ErrInvalidState, fileID, meta.State)
	}

	start := time.Now()
	parts, err := r.fetchAll(ctx, meta)
	if err != nil {
		if ctx.Err() != nil {
			// Вызывающий ушёл, чанки не виноваты
			return nil, ctx.Err()
		}
		index, node := -1, ""
		var missingErr *ChunkFileMissingError
		var fetchErr *NodeFetchError
		switch {
		case errors.As(err, &missingErr):
			index, node = missingErr.Index, missingErr.Node
		case errors.As(err, &fetchErr):
			index, node = fetchErr.Index, fetchErr.Node
		}
		r.orch.fail(fileID, err, index, node)
		return nil, err
	}

	size := 0
	for _, p := range parts {
		size += len(p)
	}
	data := make([]byte, 0, size)
	for _, p := range parts {
		data = append(data, p...)
	}

	path := r.outputPath(fileID, meta.FileName)
	if path != "" {
		if err := r.commit(path, data); err != nil {
			r.orch.fail(fileID, err, -1, "")
			return nil, err
		}
	}

	// Переход в Merged и перенос в retired - одна транзакция: при ошибке
	// запись остаётся Complete/Failed и сборку можно повторить
	if err := r.orch.store.Retire(fileID); err != nil {
		return nil, fmt.Errorf("retire %s: %w", fileID, err)
	}
	merged := meta.Clone()
	merged.State = metastore.StateMerged
	merged.Failure = nil
	merged.UpdatedAt = time.Now().UTC()

	r.log.Info().
		Str("fileID", fileID).
		Str("fileName", meta.FileName).
		Int("totalChunks", meta.TotalChunks).
		Int("size", size).
		Dur("took", time.Since(start)).
		Msg("file merged")

	if !r.KeepChunks {
		// Файл уже собран: удаление не зависит от того, ждёт ли клиент ответа
		r.cleanup(context.WithoutCancel(ctx), merged)
	}

	return &Result{
		FileID:   fileID,
		FileName: meta.FileName,
		Path:     path,
		Data:     data,
		Meta:     merged,
	}, nil
}

// fetchAll читает все чанки; порядок в результате совпадает с индексами
func (r *Reconstructor) fetchAll(ctx context.Context, meta *metastore.FileMeta) ([][]byte, error) {
	parts := make([][]byte, meta.TotalChunks)

	g, gctx := errgroup.WithContext(ctx)
	limit := r.Parallelism
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for i := 0; i < meta.TotalChunks; i++ {
		if _, ok := meta.Assigned[i]; !ok {
			return nil, fmt.Errorf("%w: chunk %d of %s", ErrChunkNotAssigned, i, meta.FileID)
		}
	}

	for i := 0; i < meta.TotalChunks; i++ {
		index := i
		node := meta.Assigned[index]
		checksum := meta.Uploaded[index]

		g.Go(func() error {
			data, err := r.fetch(gctx, node, meta.FileID, index)
			if err != nil {
				return err
			}
			if !utils.ChecksumMatches(data, checksum) {
				return &NodeFetchError{Index: index, Node: node, Err: ErrChecksumMismatch}
			}
			parts[index] = data
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parts, nil
}

func (r *Reconstructor) timeout() time.Duration {
	if r.FetchTimeout <= 0 {
		return DefaultFetchTimeout
	}
	return r.FetchTimeout
}

func (r *Reconstructor) fetch(ctx context.Context, node, fileID string, index int) ([]byte, error) {
	fctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	data, err := r.chunks.Get(fctx, node, fileID, index)
	if err == nil {
		return data, nil
	}
	if errors.Is(err, storage.ErrChunkNotFound) {
		return nil, &ChunkFileMissingError{Index: index, Node: node}
	}
	return nil, &NodeFetchError{Index: index, Node: node, Err: err}
}

// commit пишет итог во временный файл рядом с целевым и переименовывает его
func (r *Reconstructor) commit(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &MergeIOError{Op: "mkdir", Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".merge-*")
	if err != nil {
		return &MergeIOError{Op: "create", Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &MergeIOError{Op: "write", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &MergeIOError{Op: "sync", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &MergeIOError{Op: "close", Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &MergeIOError{Op: "rename", Err: err}
	}
	return nil
}

// cleanup удаляет чанки с узлов; ошибки только логируются
func (r *Reconstructor) cleanup(ctx context.Context, meta *metastore.FileMeta) {
	for _, index := range meta.UploadedIndexes() {
		node := meta.Assigned[index]
		dctx, cancel := context.WithTimeout(ctx, r.timeout())
		err := r.chunks.Delete(dctx, node, meta.FileID, index)
		cancel()
		if err != nil {
			r.log.Warn().
				Err(err).
				Str("fileID", meta.FileID).
				Int("chunkIndex", index).
				Str("node", node).
				Msg("failed to delete merged chunk")
		}
	}
}
