package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/GhostRepo-0315/CS230-Project/internal/lifecycle"
	"github.com/GhostRepo-0315/CS230-Project/internal/metastore"
	"github.com/GhostRepo-0315/CS230-Project/internal/storage"
	"github.com/GhostRepo-0315/CS230-Project/internal/utils"
)

// Максимальный размер чанка в запросе по умолчанию
const DefaultMaxChunkBytes = 64 << 20

// FileHandler обрабатывает запросы загрузки и сборки файлов
type FileHandler struct {
	Orch          *lifecycle.Orchestrator
	Rec           *lifecycle.Reconstructor
	Nodes         *storage.Router
	MaxChunkBytes int64
	Log           zerolog.Logger
}

// NewRouter регистрирует маршруты сервера
func NewRouter(h *FileHandler) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/upload/metadata", h.RegisterFile).Methods(http.MethodPost)
	router.HandleFunc("/upload/assign", h.AssignChunk).Methods(http.MethodPost)
	router.HandleFunc("/upload/chunk", h.UploadChunk).Methods(http.MethodPost)
	router.HandleFunc("/upload/ack", h.AckChunk).Methods(http.MethodPost)
	router.HandleFunc("/upload/complete", h.Complete).Methods(http.MethodPost)
	router.HandleFunc("/files", h.ListFiles).Methods(http.MethodGet)
	router.HandleFunc("/files/{fileID}", h.GetFileInfo).Methods(http.MethodGet)
	router.HandleFunc("/status", h.Status).Methods(http.MethodGet)
	return router
}

type registerRequest struct {
	FileID      string `json:"fileId"`
	FileName    string `json:"fileName"`
	TotalChunks int    `json:"totalChunks"`
}

type chunkRequest struct {
	FileID     string `json:"fileId"`
	ChunkIndex *int   `json:"chunkIndex"`
	SHA256     string `json:"sha256,omitempty"`
}

type uploadResponse struct {
	FileID      string `json:"fileId"`
	ChunkIndex  int    `json:"chunkIndex"`
	Node        string `json:"node"`
	SHA256      string `json:"sha256,omitempty"`
	Uploaded    int    `json:"uploaded"`
	TotalChunks int    `json:"totalChunks"`
	State       string `json:"state"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":   "InvalidMetadata",
		"message": msg,
	})
}

// statusFor сопоставляет вид ошибки и HTTP-статус
func statusFor(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrInvalidMetadata),
		errors.Is(err, lifecycle.ErrChunkIndexOutOfRange),
		errors.Is(err, lifecycle.ErrChunkNotAssigned),
		errors.Is(err, lifecycle.ErrMissingChunks):
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrUnknownFileID):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrDuplicateFileID),
		errors.Is(err, lifecycle.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrChunkFileMissing),
		errors.Is(err, lifecycle.ErrNodeFetchFailure):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError пишет ошибку в JSON с деталями для повторной попытки
func (h *FileHandler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := map[string]interface{}{
		"error":   lifecycle.Kind(err),
		"message": err.Error(),
	}

	var missing *lifecycle.MissingChunksError
	var fileMissing *lifecycle.ChunkFileMissingError
	var fetch *lifecycle.NodeFetchError
	switch {
	case errors.As(err, &missing):
		body["missingChunks"] = missing.Missing
	case errors.As(err, &fileMissing):
		body["chunk"] = fileMissing.Index
		body["node"] = fileMissing.Node
	case errors.As(err, &fetch):
		body["chunk"] = fetch.Index
		body["node"] = fetch.Node
	}

	if status >= http.StatusInternalServerError {
		h.Log.Error().Err(err).Int("status", status).Msg("request failed")
	} else {
		h.Log.Debug().Err(err).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, status, body)
}

// RegisterFile регистрирует файл; без fileId генерируется UUID
func (h *FileHandler) RegisterFile(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.FileID == "" {
		req.FileID = uuid.NewString()
	}

	meta, err := h.Orch.RegisterFile(r.Context(), req.FileID, req.FileName, req.TotalChunks)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"fileId":      meta.FileID,
		"totalChunks": meta.TotalChunks,
		"state":       meta.State,
	})
}

func decodeChunkRequest(w http.ResponseWriter, r *http.Request) (chunkRequest, bool) {
	var req chunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return req, false
	}
	if req.FileID == "" || req.ChunkIndex == nil {
		badRequest(w, "fileId and chunkIndex are required")
		return req, false
	}
	return req, true
}

// AssignChunk возвращает узел для чанка
func (h *FileHandler) AssignChunk(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChunkRequest(w, r)
	if !ok {
		return
	}

	node, err := h.Orch.AssignChunk(r.Context(), req.FileID, *req.ChunkIndex)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := map[string]interface{}{
		"fileId":     req.FileID,
		"chunkIndex": *req.ChunkIndex,
		"node":       node,
	}
	if url, ok := h.Nodes.URL(node); ok && url != storage.LocalURL {
		resp["nodeUrl"] = url
	}
	writeJSON(w, http.StatusOK, resp)
}

// UploadChunk принимает чанк (multipart: fileId, chunkIndex, chunk),
// кладёт его на назначенный узел и отмечает загрузку
func (h *FileHandler) UploadChunk(w http.ResponseWriter, r *http.Request) {
	limit := h.MaxChunkBytes
	if limit <= 0 {
		limit = DefaultMaxChunkBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		badRequest(w, "invalid multipart form")
		return
	}

	fileID := r.FormValue("fileId")
	index, err := strconv.Atoi(r.FormValue("chunkIndex"))
	if fileID == "" || err != nil {
		badRequest(w, "fileId and chunkIndex are required")
		return
	}

	file, _, err := r.FormFile("chunk")
	if err != nil {
		badRequest(w, "missing chunk file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		badRequest(w, "failed to read chunk")
		return
	}
	if int64(len(data)) > limit {
		badRequest(w, "chunk too large")
		return
	}

	ctx := r.Context()
	node, err := h.Orch.AssignChunk(ctx, fileID, index)
	if err != nil {
		h.writeError(w, err)
		return
	}

	sum := utils.CalculateSHA256(data)
	if err := h.Nodes.Put(ctx, node, fileID, index, data, sum); err != nil {
		h.Log.Error().Err(err).Str("fileID", fileID).Int("chunkIndex", index).Str("node", node).Msg("failed to store chunk")
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":   "NodeFetchFailure",
			"message": err.Error(),
			"chunk":   index,
			"node":    node,
		})
		return
	}

	meta, err := h.Orch.RecordUpload(ctx, fileID, index, sum)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		FileID:      fileID,
		ChunkIndex:  index,
		Node:        node,
		SHA256:      sum,
		Uploaded:    len(meta.Uploaded),
		TotalChunks: meta.TotalChunks,
		State:       string(meta.State),
	})
}

// AckChunk отмечает чанк, загруженный клиентом напрямую на узел
func (h *FileHandler) AckChunk(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChunkRequest(w, r)
	if !ok {
		return
	}

	meta, err := h.Orch.RecordUpload(r.Context(), req.FileID, *req.ChunkIndex, req.SHA256)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		FileID:      req.FileID,
		ChunkIndex:  *req.ChunkIndex,
		Node:        meta.Assigned[*req.ChunkIndex],
		SHA256:      meta.Uploaded[*req.ChunkIndex],
		Uploaded:    len(meta.Uploaded),
		TotalChunks: meta.TotalChunks,
		State:       string(meta.State),
	})
}

// Complete проверяет полноту и собирает файл
func (h *FileHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileID string `json:"fileId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FileID == "" {
		badRequest(w, "fileId is required")
		return
	}

	res, err := h.Rec.Merge(r.Context(), req.FileID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"fileId":        res.FileID,
		"fileName":      res.FileName,
		"size":          len(res.Data),
		"alreadyMerged": res.AlreadyMerged,
	})
}

// GetFileInfo возвращает метаданные незавершённого файла
func (h *FileHandler) GetFileInfo(w http.ResponseWriter, r *http.Request) {
	meta, err := h.Orch.Info(r.Context(), mux.Vars(r)["fileID"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// ListFiles возвращает все незавершённые файлы
func (h *FileHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.Orch.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if files == nil {
		files = []*metastore.FileMeta{}
	}
	writeJSON(w, http.StatusOK, files)
}

// Status возвращает пул узлов и число файлов в работе
func (h *FileHandler) Status(w http.ResponseWriter, r *http.Request) {
	files, err := h.Orch.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	byState := make(map[metastore.State]int)
	for _, f := range files {
		byState[f.State]++
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "online",
		"nodes":    h.Nodes.Nodes(),
		"inFlight": len(files),
		"byState":  byState,
	})
}
