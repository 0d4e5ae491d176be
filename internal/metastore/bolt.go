// internal/metastore/bolt.go
package metastore

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	filesBucket   = []byte("files")
	retiredBucket = []byte("retired")
)

// BoltStore реализация MetaStore на основе BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore создает новое хранилище метаданных на основе BoltDB
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	// Создаем необходимые бакеты
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{filesBucket, retiredBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// CreateFile сохраняет новую запись о файле
func (bs *BoltStore) CreateFile(meta *FileMeta) error {
	return bs.db.Update(func(tx *bolt.Tx) error {
		key := []byte(meta.FileID)
		if tx.Bucket(filesBucket).Get(key) != nil || tx.Bucket(retiredBucket).Get(key) != nil {
			return fmt.Errorf("%w: %s", ErrExists, meta.FileID)
		}
		return putMeta(tx.Bucket(filesBucket), meta)
	})
}

// GetFileMeta возвращает метаданные о файле
func (bs *BoltStore) GetFileMeta(fileID string) (*FileMeta, error) {
	var meta *FileMeta

	err := bs.db.View(func(tx *bolt.Tx) error {
		var err error
		meta, err = getMeta(tx.Bucket(filesBucket), fileID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return meta, nil
}

// Update изменяет запись внутри одной транзакции записи
func (bs *BoltStore) Update(fileID string, fn func(meta *FileMeta) error) (*FileMeta, error) {
	var out *FileMeta

	err := bs.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(filesBucket)

		meta, err := getMeta(b, fileID)
		if err != nil {
			return err
		}
		if err := fn(meta); err != nil {
			return err
		}
		meta.UpdatedAt = time.Now().UTC()

		out = meta
		return putMeta(b, meta)
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// ListFiles возвращает все записи из бакета files
func (bs *BoltStore) ListFiles() ([]*FileMeta, error) {
	var out []*FileMeta

	err := bs.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(filesBucket).ForEach(func(k, v []byte) error {
			var meta FileMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			normalize(&meta)
			out = append(out, &meta)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Retire переносит запись в бакет retired
func (bs *BoltStore) Retire(fileID string) error {
	return bs.db.Update(func(tx *bolt.Tx) error {
		files := tx.Bucket(filesBucket)
		key := []byte(fileID)

		data := files.Get(key)
		if data == nil {
			// Уже удалена или не существовала
			return nil
		}

		var meta FileMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return err
		}

		encoded, err := json.Marshal(RetiredFile{
			FileID:    fileID,
			FileName:  meta.FileName,
			RetiredAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		if err := tx.Bucket(retiredBucket).Put(key, encoded); err != nil {
			return err
		}
		return files.Delete(key)
	})
}

// Retired возвращает след слитого файла или ErrNotFound
func (bs *BoltStore) Retired(fileID string) (*RetiredFile, error) {
	var rf RetiredFile

	err := bs.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(retiredBucket).Get([]byte(fileID))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, fileID)
		}
		return json.Unmarshal(data, &rf)
	})
	if err != nil {
		return nil, err
	}

	return &rf, nil
}

// Close закрывает хранилище
func (bs *BoltStore) Close() error {
	return bs.db.Close()
}

func getMeta(b *bolt.Bucket, fileID string) (*FileMeta, error) {
	data := b.Get([]byte(fileID))
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}

	var meta FileMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	normalize(&meta)
	return &meta, nil
}

func putMeta(b *bolt.Bucket, meta *FileMeta) error {
	encoded, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return b.Put([]byte(meta.FileID), encoded)
}

// Пустые карты после JSON приходят как nil
func normalize(meta *FileMeta) {
	if meta.Assigned == nil {
		meta.Assigned = make(map[int]string)
	}
	if meta.Uploaded == nil {
		meta.Uploaded = make(map[int]string)
	}
}
