package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

var fileIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidFileID проверяет, что id безопасно использовать как имя каталога
func ValidFileID(id string) bool {
	return fileIDPattern.MatchString(id) && id != "." && id != ".."
}

// DiskStore хранит чанки в каталоге root/<fileID>/<index>
type DiskStore struct {
	root string
}

// NewDiskStore создаёт каталог хранения
func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}
	return &DiskStore{root: root}, nil
}

func (d *DiskStore) Root() string { return d.root }

func (d *DiskStore) path(fileID string, index int) (string, error) {
	if !ValidFileID(fileID) {
		return "", fmt.Errorf("invalid file id %q", fileID)
	}
	if index < 0 {
		return "", fmt.Errorf("invalid chunk index %d", index)
	}
	return filepath.Join(d.root, fileID, strconv.Itoa(index)), nil
}

// Put пишет чанк из r во временный файл, сверяет SHA-256 (если checksum не пуст)
// и переименовывает. Повторная запись заменяет чанк. Возвращает фактический хеш.
func (d *DiskStore) Put(fileID string, index int, r io.Reader, checksum string) (string, error) {
	chunkPath, err := d.path(fileID, index)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(chunkPath), 0755); err != nil {
		return "", err
	}

	// Создаем временный файл
	file, err := os.CreateTemp(filepath.Dir(chunkPath), strconv.Itoa(index)+".*.tmp")
	if err != nil {
		return "", err
	}
	tmpPath := file.Name()

	// Читаем данные и вычисляем хеш
	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(file, h), r); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	actual := hex.EncodeToString(h.Sum(nil))
	if checksum != "" && checksum != actual {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: expected %s, got %s", ErrChecksum, checksum, actual)
	}

	if err := os.Rename(tmpPath, chunkPath); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	return actual, nil
}

// Open открывает чанк на чтение
func (d *DiskStore) Open(fileID string, index int) (*os.File, error) {
	chunkPath, err := d.path(fileID, index)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(chunkPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%d", ErrChunkNotFound, fileID, index)
	}
	return f, err
}

// Get читает чанк целиком
func (d *DiskStore) Get(fileID string, index int) ([]byte, error) {
	f, err := d.Open(fileID, index)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Delete удаляет чанк и пустой каталог файла
func (d *DiskStore) Delete(fileID string, index int) error {
	chunkPath, err := d.path(fileID, index)
	if err != nil {
		return err
	}
	if err := os.Remove(chunkPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s/%d", ErrChunkNotFound, fileID, index)
		}
		return err
	}
	// Каталог удаляется только пустым
	os.Remove(filepath.Dir(chunkPath))
	return nil
}

// Stats подсчитывает количество чанков и их общий размер
func (d *DiskStore) Stats() (chunks int, size int64, err error) {
	err = filepath.WalkDir(d.root, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() || filepath.Ext(path) == ".tmp" {
			return nil
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		chunks++
		size += info.Size()
		return nil
	})
	return chunks, size, err
}
