package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Заголовок с SHA-256 содержимого чанка
const ChecksumHeader = "X-Chunk-SHA256"

var (
	ErrChunkNotFound = errors.New("chunk not found")
	ErrChecksum      = errors.New("chunk checksum mismatch")
)

// Client интерфейс для взаимодействия с серверами хранения
type Client interface {
	// UploadChunk загружает чанк (fileID, index) на указанный сервер хранения
	UploadChunk(ctx context.Context, nodeURL, fileID string, index int, data []byte, checksum string) error

	// DownloadChunk скачивает чанк с указанного сервера хранения
	DownloadChunk(ctx context.Context, nodeURL, fileID string, index int) ([]byte, error)

	// DeleteChunk удаляет чанк с сервера хранения
	DeleteChunk(ctx context.Context, nodeURL, fileID string, index int) error
}

// HTTPClient реализация Client для взаимодействия с серверами хранения через HTTP
type HTTPClient struct {
	client  *http.Client
	timeout time.Duration
}

// New создает новый HTTP клиент; timeout ограничивает каждый запрос
func New(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{},
		timeout: timeout,
	}
}

func chunkURL(nodeURL, fileID string, index int) string {
	return fmt.Sprintf("%s/chunks/%s/%d", nodeURL, url.PathEscape(fileID), index)
}

func (c *HTTPClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// UploadChunk загружает чанк на указанный сервер хранения
func (c *HTTPClient) UploadChunk(ctx context.Context, nodeURL, fileID string, index int, data []byte, checksum string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, chunkURL(nodeURL, fileID, index), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Length", strconv.Itoa(len(data)))
	if checksum != "" {
		req.Header.Set(ChecksumHeader, checksum)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if resp.StatusCode == http.StatusUnprocessableEntity {
			return fmt.Errorf("%w: %s", ErrChecksum, bytes.TrimSpace(body))
		}
		return fmt.Errorf("failed to upload chunk: %d - %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	return nil
}

// DownloadChunk скачивает чанк с указанного сервера хранения
func (c *HTTPClient) DownloadChunk(ctx context.Context, nodeURL, fileID string, index int) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, chunkURL(nodeURL, fileID, index), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return io.ReadAll(resp.Body)
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s/%d on %s", ErrChunkNotFound, fileID, index, nodeURL)
	default:
		return nil, fmt.Errorf("failed to download chunk: %d", resp.StatusCode)
	}
}

// DeleteChunk удаляет чанк; отсутствие чанка не считается ошибкой
func (c *HTTPClient) DeleteChunk(ctx context.Context, nodeURL, fileID string, index int) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, chunkURL(nodeURL, fileID, index), nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("failed to delete chunk: %d", resp.StatusCode)
	}
	return nil
}
