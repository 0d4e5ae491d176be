package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// LocalURL помечает узел, чьи чанки лежат на диске самого оркестратора
const LocalURL = "local"

var ErrUnknownNode = errors.New("unknown storage node")

// Node - узел хранения
type Node struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (n Node) Local() bool { return n.URL == LocalURL }

// ParsePool разбирает список "id=url,id=url". Без "id=" идентификатором служит url.
func ParsePool(pool string) ([]Node, error) {
	var nodes []Node
	seen := make(map[string]bool)
	for _, part := range strings.Split(pool, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		n := Node{ID: part, URL: part}
		if id, u, ok := strings.Cut(part, "="); ok {
			n = Node{ID: strings.TrimSpace(id), URL: strings.TrimRight(strings.TrimSpace(u), "/")}
		} else {
			n.URL = strings.TrimRight(n.URL, "/")
		}
		if n.ID == "" || n.URL == "" {
			return nil, fmt.Errorf("invalid storage node %q", part)
		}
		if seen[n.ID] {
			return nil, fmt.Errorf("duplicate storage node id %q", n.ID)
		}
		seen[n.ID] = true
		nodes = append(nodes, n)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("empty storage pool")
	}
	return nodes, nil
}

// Router направляет операции с чанками на узел по его идентификатору:
// локальные узлы обслуживает DiskStore, остальные - Client по HTTP.
type Router struct {
	nodes  map[string]Node
	order  []string
	local  *DiskStore
	remote Client
}

// NewRouter создаёт маршрутизатор. local может быть nil, если в пуле нет локального узла.
func NewRouter(nodes []Node, local *DiskStore, remote Client) (*Router, error) {
	r := &Router{nodes: make(map[string]Node, len(nodes)), local: local, remote: remote}
	for _, n := range nodes {
		if n.Local() && local == nil {
			return nil, fmt.Errorf("node %s is local but no local store is configured", n.ID)
		}
		if !n.Local() && remote == nil {
			return nil, fmt.Errorf("node %s is remote but no client is configured", n.ID)
		}
		r.nodes[n.ID] = n
		r.order = append(r.order, n.ID)
	}
	return r, nil
}

// IDs возвращает идентификаторы узлов в порядке пула
func (r *Router) IDs() []string {
	return append([]string(nil), r.order...)
}

// Known возвращает множество идентификаторов для проверки таблиц размещения
func (r *Router) Known() map[string]bool {
	out := make(map[string]bool, len(r.nodes))
	for id := range r.nodes {
		out[id] = true
	}
	return out
}

// Nodes возвращает узлы, отсортированные по id
func (r *Router) Nodes() []Node {
	out := make([]Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// URL возвращает адрес узла
func (r *Router) URL(id string) (string, bool) {
	n, ok := r.nodes[id]
	return n.URL, ok
}

func (r *Router) node(id string) (Node, error) {
	n, ok := r.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return n, nil
}

// Put сохраняет чанк на узле
func (r *Router) Put(ctx context.Context, nodeID, fileID string, index int, data []byte, checksum string) error {
	n, err := r.node(nodeID)
	if err != nil {
		return err
	}
	if n.Local() {
		_, err := r.local.Put(fileID, index, bytes.NewReader(data), checksum)
		return err
	}
	return r.remote.UploadChunk(ctx, n.URL, fileID, index, data, checksum)
}

// Get читает чанк с узла; отсутствие чанка - ErrChunkNotFound
func (r *Router) Get(ctx context.Context, nodeID, fileID string, index int) ([]byte, error) {
	n, err := r.node(nodeID)
	if err != nil {
		return nil, err
	}
	if n.Local() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return r.local.Get(fileID, index)
	}
	return r.remote.DownloadChunk(ctx, n.URL, fileID, index)
}

// Delete удаляет чанк с узла; отсутствие чанка не ошибка
func (r *Router) Delete(ctx context.Context, nodeID, fileID string, index int) error {
	n, err := r.node(nodeID)
	if err != nil {
		return err
	}
	if n.Local() {
		if err := r.local.Delete(fileID, index); err != nil && !errors.Is(err, ErrChunkNotFound) {
			return err
		}
		return nil
	}
	return r.remote.DeleteChunk(ctx, n.URL, fileID, index)
}
