package storage

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// NodeServer обслуживает чанки одного узла хранения по HTTP
type NodeServer struct {
	ID    string
	Store *DiskStore
	Log   zerolog.Logger
}

// Handler возвращает маршруты узла
func (s *NodeServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/chunks/{fileID}/{index:[0-9]+}", s.putChunk).Methods(http.MethodPut)
	router.HandleFunc("/chunks/{fileID}/{index:[0-9]+}", s.getChunk).Methods(http.MethodGet)
	router.HandleFunc("/chunks/{fileID}/{index:[0-9]+}", s.deleteChunk).Methods(http.MethodDelete)
	router.HandleFunc("/status", s.status).Methods(http.MethodGet)
	return router
}

func chunkVars(r *http.Request) (string, int, bool) {
	vars := mux.Vars(r)
	fileID := vars["fileID"]
	index, err := strconv.Atoi(vars["index"])
	if err != nil || !ValidFileID(fileID) {
		return "", 0, false
	}
	return fileID, index, true
}

// Обработчик для загрузки чанка
func (s *NodeServer) putChunk(w http.ResponseWriter, r *http.Request) {
	fileID, index, ok := chunkVars(r)
	if !ok {
		http.Error(w, "Invalid chunk ID", http.StatusBadRequest)
		return
	}

	sum, err := s.Store.Put(fileID, index, r.Body, r.Header.Get(ChecksumHeader))
	if err != nil {
		if errors.Is(err, ErrChecksum) {
			http.Error(w, "Hash mismatch", http.StatusUnprocessableEntity)
			s.Log.Warn().Err(err).Str("fileID", fileID).Int("chunkIndex", index).Msg("rejected chunk")
			return
		}
		http.Error(w, "Failed to save chunk", http.StatusInternalServerError)
		s.Log.Error().Err(err).Str("fileID", fileID).Int("chunkIndex", index).Msg("failed to save chunk")
		return
	}

	s.Log.Debug().Str("fileID", fileID).Int("chunkIndex", index).Str("sha256", sum).Msg("chunk saved")
	w.Header().Set(ChecksumHeader, sum)
	w.WriteHeader(http.StatusCreated)
}

// Обработчик для скачивания чанка
func (s *NodeServer) getChunk(w http.ResponseWriter, r *http.Request) {
	fileID, index, ok := chunkVars(r)
	if !ok {
		http.Error(w, "Invalid chunk ID", http.StatusBadRequest)
		return
	}

	file, err := s.Store.Open(fileID, index)
	if err != nil {
		if errors.Is(err, ErrChunkNotFound) {
			http.Error(w, "Chunk not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to read chunk", http.StatusInternalServerError)
		s.Log.Error().Err(err).Str("fileID", fileID).Int("chunkIndex", index).Msg("failed to open chunk")
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, file); err != nil {
		s.Log.Warn().Err(err).Str("fileID", fileID).Int("chunkIndex", index).Msg("failed to send chunk")
	}
}

// Обработчик для удаления чанка
func (s *NodeServer) deleteChunk(w http.ResponseWriter, r *http.Request) {
	fileID, index, ok := chunkVars(r)
	if !ok {
		http.Error(w, "Invalid chunk ID", http.StatusBadRequest)
		return
	}

	if err := s.Store.Delete(fileID, index); err != nil {
		if errors.Is(err, ErrChunkNotFound) {
			http.Error(w, "Chunk not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to delete chunk", http.StatusInternalServerError)
		s.Log.Error().Err(err).Str("fileID", fileID).Int("chunkIndex", index).Msg("failed to delete chunk")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Обработчик статуса узла
func (s *NodeServer) status(w http.ResponseWriter, r *http.Request) {
	chunks, size, err := s.Store.Stats()
	if err != nil {
		s.Log.Warn().Err(err).Msg("failed to calculate storage stats")
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"nodeID":    s.ID,
		"status":    "online",
		"chunks":    chunks,
		"totalSize": size,
	})
}
