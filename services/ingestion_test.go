package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"med13-pipeline/metrics"
	"med13-pipeline/models"
	"med13-pipeline/providers"
	"med13-pipeline/repository/memory"
	"med13-pipeline/storage"
)

func sampleRecords() []providers.RawRecord {
	return []providers.RawRecord{
		{
			PubMedID:        "100",
			Title:           "MED13 study",
			Authors:         []providers.RawAuthor{{LastName: "Doe", FirstName: "Jane"}},
			Journal:         &providers.RawJournal{Title: "Nature"},
			PublicationDate: "2023-01-15",
		},
		{
			PubMedID: "200",
			Title:    "MED13 c.123A>G in a case series",
			Abstract: "Patients presented with HP:0001249.",
		},
	}
}

func pubmedSource() *models.DataSource {
	return &models.DataSource{ID: uuid.New(), Name: "med13", SourceType: models.SourceTypePubMed, Query: "MED13[Title/Abstract]", MaxResults: 50, Active: true}
}

func newIngestion(gateway providers.Gateway) (*PubMedIngestionService, *memory.PublicationStore) {
	pubs := memory.NewPublicationStore()
	svc := NewPubMedIngestionService(gateway, pubs, nil, zap.NewNop())
	svc.Transformer = fixedTransformer()
	return svc, pubs
}

func TestIngest_CreatesPublications(t *testing.T) {
	gateway := &fakeGateway{records: sampleRecords()}
	svc, pubs := newIngestion(gateway)
	source := pubmedSource()

	summary, err := svc.Ingest(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.FetchedRecords)
	assert.Equal(t, 2, summary.ParsedPublications)
	assert.Equal(t, 2, summary.CreatedPublications)
	assert.Equal(t, 0, summary.UpdatedPublications)
	assert.Equal(t, source.Query, summary.ExecutedQuery)
	assert.Len(t, summary.CreatedPublicationIDs, 2)
	assert.Nil(t, summary.RawStorageKey)

	require.Len(t, gateway.calls, 1)
	assert.Equal(t, providers.SearchConfig{Query: source.Query, MaxResults: 50}, gateway.calls[0])

	pub, err := pubs.FindByPMID(context.Background(), "100")
	require.NoError(t, err)
	require.NotNil(t, pub)
	assert.Equal(t, "MED13 study", pub.Title)
	assert.Equal(t, []string{"Doe, Jane"}, pub.AuthorNames())
	assert.Equal(t, "100", summary.PubMedIDs[pub.ID])
}

func TestIngest_ReingestUpdatesInPlace(t *testing.T) {
	gateway := &fakeGateway{records: sampleRecords()}
	svc, pubs := newIngestion(gateway)
	source := pubmedSource()

	first, err := svc.Ingest(context.Background(), source)
	require.NoError(t, err)

	gateway.records[0].Title = "MED13 study (revised)"
	second, err := svc.Ingest(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, 0, second.CreatedPublications)
	assert.Equal(t, 2, second.UpdatedPublications)
	assert.ElementsMatch(t, first.CreatedPublicationIDs, second.UpdatedPublicationIDs)
	assert.ElementsMatch(t, first.PublicationIDs(), second.PublicationIDs())
	assert.Equal(t, 2, pubs.Len())

	pub, err := pubs.FindByPMID(context.Background(), "100")
	require.NoError(t, err)
	assert.Equal(t, "MED13 study (revised)", pub.Title)
}

func TestIngest_UnsupportedSource(t *testing.T) {
	gateway := &fakeGateway{records: sampleRecords()}
	svc, pubs := newIngestion(gateway)

	_, err := svc.Ingest(context.Background(), &models.DataSource{ID: uuid.New(), SourceType: models.SourceTypeClinVar})
	assert.ErrorIs(t, err, ErrUnsupportedSource)

	_, err = svc.Ingest(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnsupportedSource)

	assert.Empty(t, gateway.calls)
	assert.Zero(t, pubs.Len())
}

func TestIngest_DropsInvalidRecords(t *testing.T) {
	records := append(sampleRecords(),
		providers.RawRecord{Title: "missing pmid"},
		providers.RawRecord{PubMedID: "300", Title: "  "},
	)
	svc, pubs := newIngestion(&fakeGateway{records: records})
	dropped := testutil.ToFloat64(metrics.RecordsDropped)

	summary, err := svc.Ingest(context.Background(), pubmedSource())
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RecordsDropped)-dropped)
	assert.Equal(t, 4, summary.FetchedRecords)
	assert.Equal(t, 2, summary.ParsedPublications)
	assert.Equal(t, 2, summary.CreatedPublications)
	assert.Equal(t, 2, pubs.Len())
}

func TestIngest_GatewayErrorPropagates(t *testing.T) {
	svc, pubs := newIngestion(&fakeGateway{err: errBoom})

	summary, err := svc.Ingest(context.Background(), pubmedSource())
	require.ErrorIs(t, err, errBoom)
	assert.Nil(t, summary)
	assert.Zero(t, pubs.Len())
}

func TestIngest_ArchivesRawRecords(t *testing.T) {
	at := time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC)
	svc, _ := newIngestion(&fakeGateway{records: sampleRecords()})
	store := storage.NewMemoryCoordinator()
	svc.Storage = store
	svc.Now = fixedClock(at)
	source := pubmedSource()

	summary, err := svc.Ingest(context.Background(), source)
	require.NoError(t, err)
	require.NotNil(t, summary.RawStorageKey)
	assert.Equal(t, storage.RawSourceKey(source.ID, at), *summary.RawStorageKey)

	body, ok := store.Get(*summary.RawStorageKey)
	require.True(t, ok)
	var archived []providers.RawRecord
	require.NoError(t, json.Unmarshal(body, &archived))
	assert.Len(t, archived, 2)
	assert.Equal(t, "100", archived[0].PubMedID)
}

func TestIngest_StorageFailureIsNotFatal(t *testing.T) {
	svc, pubs := newIngestion(&fakeGateway{records: sampleRecords()})
	store := storage.NewMemoryCoordinator()
	store.Err = errBoom
	svc.Storage = store

	summary, err := svc.Ingest(context.Background(), pubmedSource())
	require.NoError(t, err)
	assert.Nil(t, summary.RawStorageKey)
	assert.Equal(t, 2, pubs.Len())
}
