// cmd/storage-node/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/GhostRepo-0315/CS230-Project/internal/config"
	"github.com/GhostRepo-0315/CS230-Project/internal/logging"
	"github.com/GhostRepo-0315/CS230-Project/internal/storage"
)

var (
	port      = flag.Int("port", 9000, "HTTP port to listen on")
	dataDir   = flag.String("data", "./data", "Directory to store chunks")
	nodeID    = flag.String("id", "", "Node ID (default: from environment NODE_ID)")
	logLevel  = flag.String("log-level", config.Getenv("LOG_LEVEL", "info"), "Log level")
	logPretty = flag.Bool("log-pretty", false, "Human-readable console logs")
)

func main() {
	flag.Parse()
	log := logging.New("storage-node", *logLevel, *logPretty)

	// Используем ID из аргумента или переменной окружения
	id := *nodeID
	if id == "" {
		id = config.Getenv("NODE_ID", "")
		if id == "" {
			log.Fatal().Msg("Node ID is required. Set NODE_ID environment variable or use -id flag.")
		}
	}

	// Чанки каждого узла лежат в своей директории
	disk, err := storage.NewDiskStore(filepath.Join(*dataDir, id))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create storage directory")
	}

	node := &storage.NodeServer{ID: id, Store: disk, Log: log.With().Str("node", id).Logger()}
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: node.Handler(),
	}

	go func() {
		log.Info().Str("node", id).Str("addr", server.Addr).Str("dir", disk.Root()).Msg("storage node starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
