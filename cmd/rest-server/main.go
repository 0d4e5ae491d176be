// cmd/rest-server/main.go
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/GhostRepo-0315/CS230-Project/internal/api"
	"github.com/GhostRepo-0315/CS230-Project/internal/assignment"
	"github.com/GhostRepo-0315/CS230-Project/internal/config"
	"github.com/GhostRepo-0315/CS230-Project/internal/evalstore"
	"github.com/GhostRepo-0315/CS230-Project/internal/lifecycle"
	"github.com/GhostRepo-0315/CS230-Project/internal/logging"
	"github.com/GhostRepo-0315/CS230-Project/internal/metastore"
	"github.com/GhostRepo-0315/CS230-Project/internal/netmodel"
	"github.com/GhostRepo-0315/CS230-Project/internal/simulator"
	"github.com/GhostRepo-0315/CS230-Project/internal/storage"
)

var (
	port         = flag.Int("port", config.GetenvInt("PORT", 8080), "HTTP port to listen on")
	metaDBPath   = flag.String("meta", config.Getenv("META_DB", "/data/meta.db"), "Path to metadata database")
	storagePool  = flag.String("storage-pool", config.Getenv("STORAGE_POOL", "local=local"), "Comma-separated id=url storage nodes; url 'local' stores on this server")
	localDir     = flag.String("local-dir", "/data/chunks", "Directory for chunks of local nodes")
	outputDir    = flag.String("output-dir", "/data/uploads", "Directory for merged files")
	placement    = flag.String("placement", "", "Placement config JSON (defaults if empty)")
	tablePath    = flag.String("assignment-table", "", "Deployment-wide assignment table; if empty, placement is simulated per file")
	evalDBPath   = flag.String("eval-db", "", "SQLite file for episode records (disabled if empty)")
	fetchTimeout = flag.Duration("fetch-timeout", config.GetenvDuration("FETCH_TIMEOUT", lifecycle.DefaultFetchTimeout), "Timeout for one chunk transfer")
	parallelism  = flag.Int("parallelism", lifecycle.DefaultParallelism, "Chunks fetched concurrently during merge")
	maxChunk     = flag.Int64("max-chunk", api.DefaultMaxChunkBytes, "Maximum chunk size in bytes")
	keepChunks   = flag.Bool("keep-chunks", config.GetenvBool("KEEP_CHUNKS"), "Keep chunks on nodes after merge")
	logLevel     = flag.String("log-level", config.Getenv("LOG_LEVEL", "info"), "Log level")
	logPretty    = flag.Bool("log-pretty", false, "Human-readable console logs")
)

func main() {
	flag.Parse()
	logs := logging.Factory{Level: *logLevel, Pretty: *logPretty}
	log := logs.For("rest-server")

	// Инициализируем хранилище метаданных
	store, err := metastore.NewBoltStore(*metaDBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *metaDBPath).Msg("failed to open metastore")
	}
	defer store.Close()

	// Разбираем пул узлов хранения
	nodes, err := storage.ParsePool(*storagePool)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid storage pool")
	}
	var local *storage.DiskStore
	for _, n := range nodes {
		if n.Local() {
			if local, err = storage.NewDiskStore(*localDir); err != nil {
				log.Fatal().Err(err).Str("dir", *localDir).Msg("failed to open local chunk store")
			}
			break
		}
	}
	router, err := storage.NewRouter(nodes, local, storage.New(*fetchTimeout))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build node router")
	}

	planner, closeEval := buildPlanner(logs, router)
	defer closeEval()

	orch := lifecycle.New(store, planner, router.Known(), logs.For("orchestrator"))
	rec := lifecycle.NewReconstructor(orch, router, *outputDir, logs.For("reconstructor"))
	rec.FetchTimeout = *fetchTimeout
	rec.Parallelism = *parallelism
	rec.KeepChunks = *keepChunks

	handler := api.NewRouter(&api.FileHandler{
		Orch:          orch,
		Rec:           rec,
		Nodes:         router,
		MaxChunkBytes: *maxChunk,
		Log:           logs.For("api"),
	})

	// Настраиваем и запускаем HTTP сервер
	server := &http.Server{
		Addr:         ":" + strconv.Itoa(*port),
		Handler:      handler,
		ReadTimeout:  300 * time.Second,
		WriteTimeout: 300 * time.Second,
	}

	go func() {
		log.Info().
			Int("port", *port).
			Int("nodes", len(nodes)).
			Str("meta", *metaDBPath).
			Str("output", *outputDir).
			Msg("REST server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("received shutdown signal, shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// buildPlanner выбирает источник таблиц размещения: готовая таблица
// развёртывания или эпизод симулятора на каждый файл
func buildPlanner(logs logging.Factory, router *storage.Router) (lifecycle.Planner, func()) {
	log := logs.For("rest-server")
	if *tablePath != "" {
		tbl, err := assignment.Load(*tablePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *tablePath).Msg("failed to load assignment table")
		}
		log.Info().Str("path", *tablePath).Int("entries", len(tbl.Nodes)).Str("policy", tbl.Policy).Msg("using static assignment table")
		return &assignment.StaticPlanner{Table: tbl, Known: router.Known()}, func() {}
	}

	cfg := config.Default()
	if *placement != "" {
		var err error
		if cfg, err = config.Load(*placement); err != nil {
			log.Fatal().Err(err).Str("path", *placement).Msg("failed to load placement config")
		}
	}

	p := &simulator.Planner{
		Config: cfg,
		Nodes:  router.IDs(),
		Log:    logs.For("planner"),
	}
	if cfg.ChannelPath != "" {
		ds, err := netmodel.LoadDataset(cfg.ChannelPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.ChannelPath).Msg("failed to load channel data")
		}
		p.Channel = ds
	}

	closeEval := func() {}
	if *evalDBPath != "" {
		ev, err := evalstore.Open(*evalDBPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *evalDBPath).Msg("failed to open eval store")
		}
		p.Eval = ev
		closeEval = func() { ev.Close() }
	}

	log.Info().Str("policy", cfg.Policy).Int("nodes", len(p.Nodes)).Msg("using simulated placement")
	return p, closeEval
}
