package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"med13-pipeline/models"
	"med13-pipeline/providers"
	"med13-pipeline/repository"
	"med13-pipeline/repository/memory"
	"med13-pipeline/storage"
)

// fakeGateway liefert vorbereitete Rohdatensätze.
type fakeGateway struct {
	mu      sync.Mutex
	records []providers.RawRecord
	err     error
	calls   []providers.SearchConfig
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) FetchRecords(_ context.Context, cfg providers.SearchConfig) ([]providers.RawRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, cfg)
	if g.err != nil {
		return nil, g.err
	}
	return append([]providers.RawRecord(nil), g.records...), nil
}

// stubProcessor liefert ein festes Ergebnis oder einen Fehler für bestimmte Publikationen.
type stubProcessor struct {
	failFor map[uint]error
	result  func(pub *models.Publication) *ExtractionProcessorResult
	calls   int
}

func (p *stubProcessor) ExtractPublication(_ context.Context, item models.ExtractionQueueItem, pub *models.Publication, _ *TextPayload) (*ExtractionProcessorResult, error) {
	p.calls++
	if err, ok := p.failFor[item.PublicationID]; ok {
		return nil, err
	}
	if p.result != nil {
		return p.result(pub), nil
	}
	return &ExtractionProcessorResult{Status: models.ExtractionStatusCompleted, ProcessorName: "stub", ProcessorVersion: "0"}, nil
}

type runnerFixture struct {
	publications *memory.PublicationStore
	queue        *memory.QueueStore
	extractions  *memory.ExtractionStore
	store        *storage.MemoryCoordinator
	queueService *ExtractionQueueService
	runner       *ExtractionRunnerService
	sourceID     uuid.UUID
	jobID        uuid.UUID
}

func newRunnerFixture(t *testing.T, processor ExtractionProcessor, batchSize int) *runnerFixture {
	t.Helper()
	f := &runnerFixture{
		publications: memory.NewPublicationStore(),
		queue:        memory.NewQueueStore(),
		extractions:  memory.NewExtractionStore(),
		store:        storage.NewMemoryCoordinator(),
		sourceID:     uuid.New(),
		jobID:        uuid.New(),
	}
	f.queueService = NewExtractionQueueService(f.queue, 1, zap.NewNop())
	f.runner = NewExtractionRunnerService(f.queue, f.publications, f.extractions, processor, nil, batchSize, zap.NewNop())
	return f
}

func (f *runnerFixture) withStorage() *runnerFixture {
	f.runner.Storage = f.store
	return f
}

func (f *runnerFixture) addPublication(t *testing.T, pmid, title, abstract string) *models.Publication {
	t.Helper()
	pub := &models.Publication{
		PubMedID:        pmid,
		Title:           title,
		Abstract:        abstract,
		Authors:         models.EncodeJSON([]string{"Doe, Jane"}),
		Keywords:        models.EncodeJSON([]string{}),
		Journal:         "Nature",
		PublicationYear: 2023,
		PublicationType: models.PublicationTypeJournalArticle,
	}
	require.NoError(t, f.publications.Create(context.Background(), pub))
	return pub
}

func (f *runnerFixture) enqueue(t *testing.T, ids ...uint) {
	t.Helper()
	_, err := f.queueService.Enqueue(context.Background(), EnqueueRequest{SourceID: f.sourceID, IngestionJobID: f.jobID, PublicationIDs: ids})
	require.NoError(t, err)
}

func (f *runnerFixture) onlyItem(t *testing.T) models.ExtractionQueueItem {
	t.Helper()
	items, err := f.queue.List(context.Background(), repository.QueueListFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	return items[0]
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

var errBoom = errors.New("boom")
