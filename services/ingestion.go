package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"med13-pipeline/metrics"
	"med13-pipeline/models"
	"med13-pipeline/providers"
	"med13-pipeline/repository"
	"med13-pipeline/storage"
)

// ErrUnsupportedSource wird geliefert, wenn eine Quelle nicht vom Typ pubmed ist.
var ErrUnsupportedSource = errors.New("unsupported data source type")

// IngestionSummary fasst einen Ingestion-Lauf für eine Quelle zusammen.
type IngestionSummary struct {
	SourceID              uuid.UUID `json:"source_id"`
	FetchedRecords        int       `json:"fetched_records"`
	ParsedPublications    int       `json:"parsed_publications"`
	CreatedPublications   int       `json:"created_publications"`
	UpdatedPublications   int       `json:"updated_publications"`
	ExecutedQuery         string    `json:"executed_query"`
	RawStorageKey         *string   `json:"raw_storage_key,omitempty"`
	CreatedPublicationIDs []uint    `json:"created_publication_ids"`
	UpdatedPublicationIDs []uint    `json:"updated_publication_ids"`
	// PubMedIDs ordnet jeder geschriebenen Publikation ihre PMID zu.
	PubMedIDs map[uint]string `json:"-"`
}

// PublicationIDs liefert erst die angelegten, dann die aktualisierten Publikationen.
func (s *IngestionSummary) PublicationIDs() []uint {
	out := make([]uint, 0, len(s.CreatedPublicationIDs)+len(s.UpdatedPublicationIDs))
	out = append(out, s.CreatedPublicationIDs...)
	return append(out, s.UpdatedPublicationIDs...)
}

// PubMedIngestionService holt, transformiert und speichert Publikationen einer PubMed-Quelle.
type PubMedIngestionService struct {
	Gateway       providers.Gateway
	Publications  repository.PublicationRepository
	Transformer   *PubMedTransformer
	Storage       storage.Coordinator
	StorageUserID string
	Logger        *zap.Logger
	Now           func() time.Time
}

func NewPubMedIngestionService(gateway providers.Gateway, publications repository.PublicationRepository, store storage.Coordinator, logger *zap.Logger) *PubMedIngestionService {
	return &PubMedIngestionService{
		Gateway:      gateway,
		Publications: publications,
		Transformer:  NewPubMedTransformer(),
		Storage:      store,
		Logger:       logger,
		Now:          time.Now,
	}
}

// Ingest führt fetch, transform und persist für eine Quelle aus.
// Einzelne Datensätze scheitern still; nur ein falscher Quelltyp und Gateway-Fehler werden zurückgegeben.
func (s *PubMedIngestionService) Ingest(ctx context.Context, source *models.DataSource) (*IngestionSummary, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: no data source", ErrUnsupportedSource)
	}
	if source.SourceType != models.SourceTypePubMed {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, source.SourceType)
	}
	log := s.Logger.With(zap.String("source_id", source.ID.String()), zap.String("source", source.Name))

	query := source.Query
	summary := &IngestionSummary{
		SourceID:              source.ID,
		ExecutedQuery:         query,
		CreatedPublicationIDs: []uint{},
		UpdatedPublicationIDs: []uint{},
		PubMedIDs:             map[uint]string{},
	}

	log.Info("Starte PubMed-Ingestion", zap.String("query", query))
	records, err := s.Gateway.FetchRecords(ctx, providers.SearchConfig{Query: query, MaxResults: source.MaxResults})
	if err != nil {
		log.Error("Gateway-Abruf fehlgeschlagen", zap.String("gateway", s.Gateway.Name()), zap.Error(err))
		return nil, fmt.Errorf("fetch records from %s: %w", s.Gateway.Name(), err)
	}
	summary.FetchedRecords = len(records)
	summary.RawStorageKey = s.archiveRaw(ctx, log, source, records)

	for _, raw := range records {
		pub, err := s.Transformer.Transform(raw)
		if err != nil {
			metrics.RecordsDropped.Inc()
			log.Warn("Datensatz verworfen", zap.String("pubmed_id", raw.PubMedID), zap.Error(err))
			continue
		}
		summary.ParsedPublications++

		existing, err := s.Publications.FindByPMID(ctx, pub.PubMedID)
		if err != nil {
			log.Error("Lookup per PMID fehlgeschlagen", zap.String("pubmed_id", pub.PubMedID), zap.Error(err))
			continue
		}
		if existing != nil {
			updated, err := s.Publications.UpdatePublication(ctx, existing.ID, pub)
			if err != nil {
				log.Error("Publikation konnte nicht aktualisiert werden", zap.String("pubmed_id", pub.PubMedID), zap.Error(err))
				continue
			}
			summary.UpdatedPublications++
			summary.UpdatedPublicationIDs = append(summary.UpdatedPublicationIDs, updated.ID)
			summary.PubMedIDs[updated.ID] = updated.PubMedID
			metrics.PublicationsIngested.WithLabelValues("updated").Inc()
			continue
		}
		if err := s.Publications.Create(ctx, pub); err != nil {
			log.Error("Publikation konnte nicht angelegt werden", zap.String("pubmed_id", pub.PubMedID), zap.Error(err))
			continue
		}
		summary.CreatedPublications++
		summary.CreatedPublicationIDs = append(summary.CreatedPublicationIDs, pub.ID)
		summary.PubMedIDs[pub.ID] = pub.PubMedID
		metrics.PublicationsIngested.WithLabelValues("created").Inc()
	}

	log.Info("PubMed-Ingestion abgeschlossen",
		zap.Int("fetched", summary.FetchedRecords),
		zap.Int("parsed", summary.ParsedPublications),
		zap.Int("created", summary.CreatedPublications),
		zap.Int("updated", summary.UpdatedPublications))
	return summary, nil
}

// archiveRaw legt die Rohdaten als JSON ab. Fehler werden nur geloggt.
func (s *PubMedIngestionService) archiveRaw(ctx context.Context, log *zap.Logger, source *models.DataSource, records []providers.RawRecord) *string {
	if s.Storage == nil || len(records) == 0 {
		return nil
	}
	body, err := json.Marshal(records)
	if err != nil {
		log.Warn("Rohdaten konnten nicht serialisiert werden", zap.Error(err))
		return nil
	}
	key := storage.RawSourceKey(source.ID, s.Now())
	record, err := s.Storage.StoreForUseCase(ctx, storage.UseCaseRawSource, key, body, "application/json", s.StorageUserID, map[string]string{
		"source_id":    source.ID.String(),
		"record_count": strconv.Itoa(len(records)),
	})
	if err != nil {
		metrics.StorageFailures.WithLabelValues(string(storage.UseCaseRawSource)).Inc()
		log.Warn("Rohdaten konnten nicht archiviert werden", zap.String("key", key), zap.Error(err))
		return nil
	}
	return &record.Key
}
