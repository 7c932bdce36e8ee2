package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	PubMedBaseURL    string `envconfig:"PUBMED_BASE_URL" default:"https://eutils.ncbi.nlm.nih.gov/entrez/eutils"`
	PubMedAPIKey     string `envconfig:"PUBMED_API_KEY"`
	PubMedEmail      string `envconfig:"PUBMED_EMAIL"`
	PubMedTool       string `envconfig:"PUBMED_TOOL" default:"med13-pipeline"`
	PubMedMaxResults int    `envconfig:"PUBMED_MAX_RESULTS" default:"100"`
	PubMedPageSize   int    `envconfig:"PUBMED_PAGE_SIZE" default:"50"`

	// PubMedGateway wählt die Bezugsquelle der PubMed-Datensätze: eutils oder europepmc.
	PubMedGateway    string `envconfig:"PUBMED_GATEWAY" default:"eutils"`
	EuropePMCBaseURL string `envconfig:"EUROPEPMC_BASE_URL" default:"https://www.ebi.ac.uk/europepmc/webservices/rest"`

	// DefaultSourceQuery legt beim Start eine PubMed-Quelle an, solange noch keine existiert.
	DefaultSourceQuery string `envconfig:"DEFAULT_SOURCE_QUERY"`

	// S3-kompatibler Speicher ist optional; ohne Bucket läuft die Pipeline ohne Archivierung.
	S3Key             string `envconfig:"S3_KEY"`
	S3Secret          string `envconfig:"S3_SECRET"`
	S3URL             string `envconfig:"S3_URL"`
	S3Region          string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Bucket          string `envconfig:"S3_BUCKET"`
	S3RawSourcePrefix string `envconfig:"S3_RAW_SOURCE_PREFIX"`
	S3DocumentPrefix  string `envconfig:"S3_DOCUMENT_PREFIX"`
	S3StorageUserID   string `envconfig:"S3_STORAGE_USER_ID" default:"pipeline"`

	ExtractionBatchSize   int      `envconfig:"EXTRACTION_BATCH_SIZE" default:"25"`
	ExtractionVersion     int      `envconfig:"EXTRACTION_VERSION" default:"1"`
	ExtractionProcessor   string   `envconfig:"EXTRACTION_PROCESSOR" default:"rule_based"`
	ExtractionGeneSymbols []string `envconfig:"EXTRACTION_GENE_SYMBOLS" default:"MED13"`
	ExtractionMaxAttempts int      `envconfig:"EXTRACTION_MAX_ATTEMPTS" default:"3"`

	ExtractionCronSchedule string `envconfig:"EXTRACTION_CRON_SCHEDULE" default:"*/5 * * * *"`
	IngestionCronSchedule  string `envconfig:"INGESTION_CRON_SCHEDULE" default:"0 0 * * *"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}

// StorageEnabled meldet, ob ein Bucket für die Archivierung konfiguriert ist.
func (c *Config) StorageEnabled() bool {
	return c.S3Bucket != "" && c.S3URL != ""
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	if c.ExtractionBatchSize < 1 {
		c.ExtractionBatchSize = 1
	}
	if c.ExtractionVersion < 1 {
		return nil, fmt.Errorf("EXTRACTION_VERSION must be >= 1, got %d", c.ExtractionVersion)
	}
	return &c, nil
}
