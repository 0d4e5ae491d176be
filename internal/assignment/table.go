// internal/assignment/table.go
package assignment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Текущая версия схемы таблицы
const Version = 1

var (
	ErrSchema      = errors.New("assignment: unsupported table version")
	ErrLength      = errors.New("assignment: table length does not match total chunks")
	ErrUnknownNode = errors.New("assignment: unknown node")
)

// Table - упорядоченная таблица размещения: Nodes[i] - узел для i-го назначения
type Table struct {
	Version   int       `json:"version"`
	FileID    string    `json:"fileId,omitempty"`
	Policy    string    `json:"policy,omitempty"`
	EpisodeID string    `json:"episodeId,omitempty"`
	Nodes     []string  `json:"nodes"`
	CreatedAt time.Time `json:"createdAt"`
}

// New создаёт таблицу текущей версии
func New(fileID string, nodes []string) Table {
	return Table{
		Version:   Version,
		FileID:    fileID,
		Nodes:     nodes,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate проверяет версию, точную длину и принадлежность узлов пулу.
// known == nil отключает проверку узлов.
func (t Table) Validate(totalChunks int, known map[string]bool) error {
	if t.Version != Version {
		return fmt.Errorf("%w: %d", ErrSchema, t.Version)
	}
	if len(t.Nodes) != totalChunks {
		return fmt.Errorf("%w: %d entries for %d chunks", ErrLength, len(t.Nodes), totalChunks)
	}
	for i, n := range t.Nodes {
		if n == "" {
			return fmt.Errorf("%w: empty node at index %d", ErrUnknownNode, i)
		}
		if known != nil && !known[n] {
			return fmt.Errorf("%w: %q at index %d", ErrUnknownNode, n, i)
		}
	}
	return nil
}

// Load читает таблицу из JSON-файла. Длина проверяется вызывающим.
func Load(path string) (Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Table{}, err
	}
	var t Table
	if err := json.Unmarshal(b, &t); err != nil {
		return Table{}, fmt.Errorf("assignment: decode %s: %w", path, err)
	}
	if t.Version != Version {
		return Table{}, fmt.Errorf("%w: %d in %s", ErrSchema, t.Version, path)
	}
	return t, nil
}

// Save пишет таблицу атомарно: во временный файл, затем rename
func (t Table) Save(path string) error {
	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// StaticPlanner раздаёт всем файлам префикс одной таблицы развёртывания
type StaticPlanner struct {
	Table Table
	Known map[string]bool
}

// Plan берёт первые totalChunks записей и проверяет получившуюся таблицу
func (p *StaticPlanner) Plan(_ context.Context, fileID string, totalChunks int) (Table, error) {
	if totalChunks > len(p.Table.Nodes) {
		return Table{}, fmt.Errorf("%w: deployment table has %d entries, file needs %d", ErrLength, len(p.Table.Nodes), totalChunks)
	}

	nodes := make([]string, totalChunks)
	copy(nodes, p.Table.Nodes[:totalChunks])

	t := p.Table
	t.FileID = fileID
	t.Nodes = nodes
	if err := t.Validate(totalChunks, p.Known); err != nil {
		return Table{}, err
	}
	return t, nil
}
