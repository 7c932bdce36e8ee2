package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "pipeline")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_NAME", "med13")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.DBPort)
	assert.Equal(t, "4242", cfg.HTTPPort)
	assert.Equal(t, "eutils", cfg.PubMedGateway)
	assert.Equal(t, 25, cfg.ExtractionBatchSize)
	assert.Equal(t, 1, cfg.ExtractionVersion)
	assert.Equal(t, 3, cfg.ExtractionMaxAttempts)
	assert.Equal(t, "rule_based", cfg.ExtractionProcessor)
	assert.Equal(t, []string{"MED13"}, cfg.ExtractionGeneSymbols)
	assert.False(t, cfg.StorageEnabled())
	assert.Equal(t, "host=localhost user=pipeline password=pw dbname=med13 port=5432 sslmode=disable", cfg.DSN())
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("EXTRACTION_GENE_SYMBOLS", "MED13,MED13L")
	t.Setenv("EXTRACTION_BATCH_SIZE", "0")
	t.Setenv("S3_BUCKET", "pipeline")
	t.Setenv("S3_URL", "http://minio:9000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"MED13", "MED13L"}, cfg.ExtractionGeneSymbols)
	assert.Equal(t, 1, cfg.ExtractionBatchSize)
	assert.True(t, cfg.StorageEnabled())
}

func TestLoad_Invalid(t *testing.T) {
	setRequired(t)
	t.Setenv("EXTRACTION_VERSION", "0")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("EXTRACTION_VERSION", "1")
	t.Setenv("EXTRACTION_BATCH_SIZE", "many")
	_, err = Load()
	assert.Error(t, err)
}
