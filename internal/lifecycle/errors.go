package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidMetadata      = errors.New("invalid metadata")
	ErrInvalidTotalChunks   = fmt.Errorf("%w: total chunks must be positive", ErrInvalidMetadata)
	ErrDuplicateFileID      = errors.New("duplicate file id")
	ErrUnknownFileID        = errors.New("unknown file id")
	ErrChunkIndexOutOfRange = errors.New("chunk index out of range")
	ErrChunkNotAssigned     = errors.New("chunk has no assigned node")
	ErrInvalidState         = errors.New("operation not allowed in current state")
	ErrMissingChunks        = errors.New("missing chunks")
	ErrChunkFileMissing     = errors.New("chunk file missing on node")
	ErrNodeFetchFailure     = errors.New("node fetch failure")
	ErrChecksumMismatch     = errors.New("chunk checksum mismatch")
	ErrMergeIO              = errors.New("merge io failure")
)

// MissingChunksError - не все чанки загружены
type MissingChunksError struct {
	FileID  string
	Missing []int
}

func (e *MissingChunksError) Error() string {
	parts := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		parts[i] = fmt.Sprint(m)
	}
	return fmt.Sprintf("file %s: missing chunks [%s]", e.FileID, strings.Join(parts, " "))
}

func (e *MissingChunksError) Unwrap() error { return ErrMissingChunks }

// ChunkFileMissingError - чанк отмечен загруженным, но на узле его нет
type ChunkFileMissingError struct {
	Index int
	Node  string
}

func (e *ChunkFileMissingError) Error() string {
	return fmt.Sprintf("chunk %d missing on node %s", e.Index, e.Node)
}

func (e *ChunkFileMissingError) Unwrap() error { return ErrChunkFileMissing }

// NodeFetchError - узел не ответил, истёк таймаут или данные повреждены
type NodeFetchError struct {
	Index int
	Node  string
	Err   error
}

func (e *NodeFetchError) Error() string {
	return fmt.Sprintf("fetch chunk %d from node %s: %v", e.Index, e.Node, e.Err)
}

func (e *NodeFetchError) Unwrap() []error { return []error{ErrNodeFetchFailure, e.Err} }

// MergeIOError - ошибка записи итогового файла
type MergeIOError struct {
	Op  string
	Err error
}

func (e *MergeIOError) Error() string {
	return fmt.Sprintf("merge %s: %v", e.Op, e.Err)
}

func (e *MergeIOError) Unwrap() []error { return []error{ErrMergeIO, e.Err} }

// Kind возвращает короткое имя вида ошибки для журналов и ответов
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidMetadata):
		return "InvalidMetadata"
	case errors.Is(err, ErrDuplicateFileID):
		return "DuplicateFileId"
	case errors.Is(err, ErrUnknownFileID):
		return "UnknownFileId"
	case errors.Is(err, ErrChunkIndexOutOfRange):
		return "ChunkIndexOutOfRange"
	case errors.Is(err, ErrChunkNotAssigned):
		return "ChunkNotAssigned"
	case errors.Is(err, ErrInvalidState):
		return "InvalidState"
	case errors.Is(err, ErrMissingChunks):
		return "MissingChunks"
	case errors.Is(err, ErrChunkFileMissing):
		return "ChunkFileMissing"
	case errors.Is(err, ErrNodeFetchFailure):
		return "NodeFetchFailure"
	case errors.Is(err, ErrMergeIO):
		return "MergeIOFailure"
	}
	return "Internal"
}
