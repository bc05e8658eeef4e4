// Package config loads process configuration from the environment, the
// way the teacher's own entrypoints do: explicit fields, defaults applied
// inline, no config file.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds every environment-derived setting named in spec §6.
type Config struct {
	DatabaseURL string

	QdrantURL    string
	QdrantAPIKey string

	OpenAIBaseURL string
	OpenAIAPIKey  string

	HFToken string

	TokenizerPath string

	GRPCPort int

	MaxDocumentBatchSize  int
	MaxChunkTextLength    int
	MaxTextChunkBatchSize int
	MemLimitMB            int

	LogLevel     string
	PapertrailURL string
}

// Load reads Config from the environment, applying the defaults from spec
// §6. DatabaseURL is the only required setting: its absence is an error,
// since every operation eventually touches the relational source.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}

	cfg := &Config{
		DatabaseURL: dbURL,

		QdrantURL:    firstNonEmpty(os.Getenv("QDRANT_CLIENT_URL"), "http://localhost:6334"),
		QdrantAPIKey: os.Getenv("QDRANT_API_KEY"),

		OpenAIBaseURL: firstNonEmpty(os.Getenv("OPENAI_URL"), "http://vecembed-model-service:8000/v1"),
		OpenAIAPIKey:  firstNonEmpty(os.Getenv("OPENAI_API_KEY"), "EMPTY"),

		HFToken:       os.Getenv("HF_TOKEN"),
		TokenizerPath: os.Getenv("TOKENIZER_PATH"),

		LogLevel:      firstNonEmpty(os.Getenv("LOG_LEVEL"), "info"),
		PapertrailURL: os.Getenv("PAPERTRAIL_URL"),
	}

	var err error
	if cfg.GRPCPort, err = intEnv("GRPC_SERVER_PORT", 60061); err != nil {
		return nil, err
	}
	if cfg.MaxDocumentBatchSize, err = intEnv("MAX_DOCUMENT_BATCH_SIZE", 50); err != nil {
		return nil, err
	}
	if cfg.MaxChunkTextLength, err = intEnv("MAX_CHUNK_TEXT_LENGTH", 25000); err != nil {
		return nil, err
	}
	if cfg.MaxTextChunkBatchSize, err = intEnv("MAX_TEXT_CHUNK_BATCH_SIZE", 64); err != nil {
		return nil, err
	}
	if cfg.MemLimitMB, err = intEnv("MEM_LIMIT_MB", 8192); err != nil {
		return nil, err
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func intEnv(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer, got %q: %w", name, v, err)
	}
	return n, nil
}
