package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"med13-pipeline/models"
	"med13-pipeline/repository"
	"med13-pipeline/repository/memory"
)

func TestEnqueue_SkipsDuplicates(t *testing.T) {
	queue := memory.NewQueueStore()
	svc := NewExtractionQueueService(queue, 1, zap.NewNop())
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	svc.Now = fixedClock(at)
	sourceID, jobID := uuid.New(), uuid.New()

	summary, err := svc.Enqueue(context.Background(), EnqueueRequest{
		SourceID:       sourceID,
		IngestionJobID: jobID,
		PublicationIDs: []uint{1, 2, 3},
		PubMedIDs:      map[uint]string{1: "100", 2: "200"},
	})
	require.NoError(t, err)
	assert.Equal(t, QueueSummary{Requested: 3, Queued: 3, Skipped: 0}, summary)

	summary, err = svc.Enqueue(context.Background(), EnqueueRequest{
		SourceID:       sourceID,
		IngestionJobID: uuid.New(),
		PublicationIDs: []uint{1, 2, 3, 4},
	})
	require.NoError(t, err)
	assert.Equal(t, QueueSummary{Requested: 4, Queued: 1, Skipped: 3}, summary)

	items, err := queue.List(context.Background(), repository.QueueListFilter{IngestionJobID: &jobID})
	require.NoError(t, err)
	require.Len(t, items, 3)
	for _, it := range items {
		assert.Equal(t, models.QueueStatusPending, it.Status)
		assert.Equal(t, 0, it.Attempts)
		assert.Equal(t, 1, it.ExtractionVersion)
		assert.Equal(t, at, it.QueuedAt)
		assert.Equal(t, map[string]any{}, models.DecodeMap(it.Metadata))
	}
	assert.Equal(t, "100", items[0].PubMedID)
	assert.Equal(t, "", items[2].PubMedID)
}

func TestEnqueue_EmptyInput(t *testing.T) {
	queue := memory.NewQueueStore()
	svc := NewExtractionQueueService(queue, 1, zap.NewNop())

	summary, err := svc.Enqueue(context.Background(), EnqueueRequest{SourceID: uuid.New(), IngestionJobID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, QueueSummary{}, summary)

	counts, err := queue.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestEnqueue_VersionOverride(t *testing.T) {
	queue := memory.NewQueueStore()
	svc := NewExtractionQueueService(queue, 0, zap.NewNop())
	assert.Equal(t, models.DefaultExtractionVersion, svc.DefaultVersion)

	sourceID := uuid.New()
	_, err := svc.Enqueue(context.Background(), EnqueueRequest{SourceID: sourceID, IngestionJobID: uuid.New(), PublicationIDs: []uint{7}})
	require.NoError(t, err)

	// Eine neue Extraktionsversion erzeugt einen eigenen Eintrag für dieselbe Publikation.
	summary, err := svc.Enqueue(context.Background(), EnqueueRequest{SourceID: sourceID, IngestionJobID: uuid.New(), PublicationIDs: []uint{7}, ExtractionVersion: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Queued)

	items, err := queue.List(context.Background(), repository.QueueListFilter{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, models.DefaultExtractionVersion, items[0].ExtractionVersion)
	assert.Equal(t, 2, items[1].ExtractionVersion)
}
