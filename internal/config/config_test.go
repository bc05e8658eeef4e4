package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/vecembed")
	t.Setenv("QDRANT_CLIENT_URL", "")
	t.Setenv("OPENAI_URL", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GRPC_SERVER_PORT", "")
	t.Setenv("MAX_DOCUMENT_BATCH_SIZE", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:6334", cfg.QdrantURL)
	require.Equal(t, "http://vecembed-model-service:8000/v1", cfg.OpenAIBaseURL)
	require.Equal(t, "EMPTY", cfg.OpenAIAPIKey)
	require.Equal(t, 60061, cfg.GRPCPort)
	require.Equal(t, 50, cfg.MaxDocumentBatchSize)
}

func TestLoad_RejectsNonIntegerOverride(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/vecembed")
	t.Setenv("GRPC_SERVER_PORT", "not-a-number")
	_, err := Load()
	require.Error(t, err)
}
