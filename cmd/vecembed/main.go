// Command vecembed runs the vector embedding ingestion and retrieval
// service: by default it starts the gRPC server; given --import, it runs
// one import pass over a source table and exits.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/prattcmp/vecembed/internal/config"
	"github.com/prattcmp/vecembed/internal/embedclient"
	"github.com/prattcmp/vecembed/internal/importer"
	"github.com/prattcmp/vecembed/internal/ingest"
	"github.com/prattcmp/vecembed/internal/logging"
	"github.com/prattcmp/vecembed/internal/query"
	"github.com/prattcmp/vecembed/internal/rpcapi"
	"github.com/prattcmp/vecembed/internal/sourcedb"
	"github.com/prattcmp/vecembed/internal/tokenizer"
	"github.com/prattcmp/vecembed/internal/vectorstore"
)

// dbSyncMarker adapts *sourcedb.DB to ingest.SyncMarker, resolving the
// table name to a Descriptor on each call.
type dbSyncMarker struct{ db *sourcedb.DB }

func (m dbSyncMarker) MarkSynced(ctx context.Context, tableName string, ids []int64) error {
	return m.db.MarkSyncedByTable(ctx, tableName, ids)
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}

	importTable := flag.String("import", "", "run one import pass over this source table and exit")
	startFrom := flag.Uint64("start", 0, "resume an import pass after this primary key")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	closer, err := logging.Init(cfg.LogLevel, cfg.PapertrailURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize logging")
	}
	defer closer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tk, err := tokenizer.Load(cfg.TokenizerPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load tokenizer")
	}
	defer tk.Close()

	db, err := sourcedb.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	store, err := vectorstore.New(cfg.QdrantURL, cfg.QdrantAPIKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to vector store")
	}
	defer store.Close()

	embedder := embedclient.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, tokenizer.ModelName)

	engine := ingest.New(ingest.NewTokenCounter(tk.Count), embedder, store, dbSyncMarker{db}, ingest.DefaultMaxTokens)
	engine.BatchSize = cfg.MaxDocumentBatchSize
	engine.ChunkBatch = cfg.MaxTextChunkBatchSize
	engine.MaxChunkBytes = cfg.MaxChunkTextLength

	if *importTable != "" {
		driver := importer.New(db, engine, cfg.MemLimitMB)
		if err := driver.Run(ctx, *importTable, int64(*startFrom)); err != nil {
			log.Fatal().Err(err).Str("table", *importTable).Msg("import failed")
		}
		log.Info().Str("table", *importTable).Msg("import completed")
		return
	}

	queryEngine := query.New(embedder, store)
	service := rpcapi.NewService(engine, queryEngine)
	server := rpcapi.NewServer(service, cfg.GRPCPort)

	log.Info().Int("port", cfg.GRPCPort).Msg("starting grpc server")
	if err := server.Serve(ctx); err != nil {
		log.Fatal().Err(err).Msg("grpc server exited with error")
	}
}
