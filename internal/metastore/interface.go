package metastore

import (
	"errors"
	"sort"
	"time"
)

var (
	ErrNotFound = errors.New("file not found")
	ErrExists   = errors.New("file already exists")
)

// State - стадия жизненного цикла файла
type State string

const (
	StateRegistered State = "registered"
	StateAssigning  State = "assigning"
	StateUploading  State = "uploading"
	StateComplete   State = "complete"
	StateMerged     State = "merged"
	StateFailed     State = "failed"
)

// Failure описывает причину перехода в Failed
type Failure struct {
	Kind       string    `json:"kind"`
	ChunkIndex int       `json:"chunkIndex"` // -1, если ошибка не связана с чанком
	Node       string    `json:"node,omitempty"`
	Reason     string    `json:"reason"`
	At         time.Time `json:"at"`
}

// FileMeta содержит метаданные о файле
type FileMeta struct {
	FileID       string         `json:"fileId"`      // Уникальный идентификатор файла
	FileName     string         `json:"fileName"`    // Имя файла
	TotalChunks  int            `json:"totalChunks"` // Общее количество частей
	Plan         []string       `json:"plan"`        // Таблица размещения (узлы по порядку)
	PlanPolicy   string         `json:"planPolicy,omitempty"`
	PlanCursor   int            `json:"planCursor"` // Следующая неиспользованная запись Plan
	Assigned     map[int]string `json:"assigned"`   // Индекс чанка -> узел
	Uploaded     map[int]string `json:"uploaded"`   // Индекс чанка -> SHA-256 ("" если неизвестен)
	State        State          `json:"state"`
	Failure      *Failure       `json:"failure,omitempty"`
	RegisteredAt time.Time      `json:"registeredAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// RetiredFile - след слитого файла для повторных запросов завершения
type RetiredFile struct {
	FileID    string    `json:"fileId"`
	FileName  string    `json:"fileName"`
	RetiredAt time.Time `json:"retiredAt"`
}

// Clone возвращает глубокую копию
func (m *FileMeta) Clone() *FileMeta {
	c := *m
	c.Plan = append([]string(nil), m.Plan...)
	c.Assigned = make(map[int]string, len(m.Assigned))
	for k, v := range m.Assigned {
		c.Assigned[k] = v
	}
	c.Uploaded = make(map[int]string, len(m.Uploaded))
	for k, v := range m.Uploaded {
		c.Uploaded[k] = v
	}
	if m.Failure != nil {
		f := *m.Failure
		c.Failure = &f
	}
	return &c
}

// Missing возвращает [0, TotalChunks) \ Uploaded по возрастанию
func (m *FileMeta) Missing() []int {
	missing := []int{}
	for i := 0; i < m.TotalChunks; i++ {
		if _, ok := m.Uploaded[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

// UploadedIndexes возвращает загруженные индексы по возрастанию
func (m *FileMeta) UploadedIndexes() []int {
	out := make([]int, 0, len(m.Uploaded))
	for i := range m.Uploaded {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// MetaStore интерфейс для хранения метаданных
type MetaStore interface {
	// CreateFile создаёт запись; ErrExists, если id занят (в том числе слитым файлом)
	CreateFile(meta *FileMeta) error

	// GetFileMeta возвращает метаданные о файле
	GetFileMeta(fileID string) (*FileMeta, error)

	// Update читает, изменяет и сохраняет запись в одной транзакции.
	// Ошибка fn отменяет запись.
	Update(fileID string, fn func(meta *FileMeta) error) (*FileMeta, error)

	// ListFiles возвращает все незавершённые записи
	ListFiles() ([]*FileMeta, error)

	// Retire удаляет запись и оставляет след в retired; повторный вызов - no-op
	Retire(fileID string) error

	// Retired возвращает след слитого файла
	Retired(fileID string) (*RetiredFile, error)

	// Close закрывает хранилище
	Close() error
}
