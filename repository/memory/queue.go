package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"med13-pipeline/models"
	"med13-pipeline/repository"
)

type queueKey struct {
	publicationID uint
	sourceID      uuid.UUID
	version       int
}

// QueueStore ist eine In-Memory-Extraktions-Queue. Claims laufen unter dem Store-Mutex und sind damit exklusiv.
type QueueStore struct {
	mu    sync.Mutex
	items map[uuid.UUID]*models.ExtractionQueueItem
	keys  map[queueKey]uuid.UUID
	seq   map[uuid.UUID]int
	next  int
}

func NewQueueStore() *QueueStore {
	return &QueueStore{
		items: map[uuid.UUID]*models.ExtractionQueueItem{},
		keys:  map[queueKey]uuid.UUID{},
		seq:   map[uuid.UUID]int{},
	}
}

func (s *QueueStore) EnqueueMany(_ context.Context, items []models.ExtractionQueueItem) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for i := range items {
		it := items[i]
		key := queueKey{it.PublicationID, it.SourceID, it.ExtractionVersion}
		if _, dup := s.keys[key]; dup {
			continue
		}
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		if it.Status == "" {
			it.Status = models.QueueStatusPending
		}
		s.keys[key] = it.ID
		s.items[it.ID] = &it
		s.seq[it.ID] = s.next
		s.next++
		inserted++
	}
	return inserted, nil
}

func (s *QueueStore) ClaimPending(_ context.Context, limit int, filter repository.ClaimFilter) ([]models.ExtractionQueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claimed := []models.ExtractionQueueItem{}
	if limit < 1 {
		return claimed, nil
	}
	now := time.Now().UTC()
	for _, it := range s.ordered() {
		if len(claimed) == limit {
			break
		}
		if it.Status != models.QueueStatusPending {
			continue
		}
		if filter.SourceID != nil && it.SourceID != *filter.SourceID {
			continue
		}
		if filter.IngestionJobID != nil && it.IngestionJobID != *filter.IngestionJobID {
			continue
		}
		it.Status = models.QueueStatusProcessing
		it.Attempts++
		it.StartedAt = &now
		it.CompletedAt = nil
		it.UpdatedAt = now
		claimed = append(claimed, *it)
	}
	return claimed, nil
}

// ordered liefert die Einträge nach queued_at, bei Gleichstand in Einfügereihenfolge.
func (s *QueueStore) ordered() []*models.ExtractionQueueItem {
	out := make([]*models.ExtractionQueueItem, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].QueuedAt.Equal(out[j].QueuedAt) {
			return out[i].QueuedAt.Before(out[j].QueuedAt)
		}
		return s.seq[out[i].ID] < s.seq[out[j].ID]
	})
	return out
}

func (s *QueueStore) MarkCompleted(_ context.Context, id uuid.UUID, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return fmt.Errorf("queue item %s: %w", id, repository.ErrNotFound)
	}
	now := time.Now().UTC()
	it.Status = models.QueueStatusCompleted
	it.LastError = nil
	it.CompletedAt = &now
	it.UpdatedAt = now
	if metadata != nil {
		it.Metadata = models.EncodeJSON(metadata)
	}
	return nil
}

func (s *QueueStore) MarkFailed(_ context.Context, id uuid.UUID, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return fmt.Errorf("queue item %s: %w", id, repository.ErrNotFound)
	}
	now := time.Now().UTC()
	it.Status = models.QueueStatusFailed
	it.LastError = &lastError
	it.CompletedAt = &now
	it.UpdatedAt = now
	return nil
}

func (s *QueueStore) RequeueFailed(_ context.Context, maxAttempts int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	now := time.Now().UTC()
	for _, it := range s.items {
		if it.Status != models.QueueStatusFailed {
			continue
		}
		if maxAttempts > 0 && it.Attempts >= maxAttempts {
			continue
		}
		it.Status = models.QueueStatusPending
		it.StartedAt = nil
		it.CompletedAt = nil
		it.UpdatedAt = now
		n++
	}
	return n, nil
}

// Reset setzt einen Eintrag unabhängig vom Status zurück auf pending.
func (s *QueueStore) Reset(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return fmt.Errorf("queue item %s: %w", id, repository.ErrNotFound)
	}
	it.Status = models.QueueStatusPending
	it.StartedAt = nil
	it.CompletedAt = nil
	return nil
}

func (s *QueueStore) Get(_ context.Context, id uuid.UUID) (*models.ExtractionQueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("queue item %s: %w", id, repository.ErrNotFound)
	}
	cp := *it
	return &cp, nil
}

func (s *QueueStore) List(_ context.Context, filter repository.QueueListFilter) ([]models.ExtractionQueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.ExtractionQueueItem{}
	for _, it := range s.ordered() {
		if filter.Status != "" && it.Status != filter.Status {
			continue
		}
		if filter.SourceID != nil && it.SourceID != *filter.SourceID {
			continue
		}
		if filter.IngestionJobID != nil && it.IngestionJobID != *filter.IngestionJobID {
			continue
		}
		out = append(out, *it)
	}
	return page(out, filter.Limit, 0), nil
}

func (s *QueueStore) CountByStatus(_ context.Context) (map[models.QueueStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[models.QueueStatus]int{}
	for _, it := range s.items {
		out[it.Status]++
	}
	return out, nil
}

// ExtractionStore hält Extraktionsergebnisse im Speicher. CreateErr und UpdateErr simulieren Schreibfehler.
type ExtractionStore struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]models.PublicationExtraction
	byQueue   map[uuid.UUID]uuid.UUID
	CreateErr error
	UpdateErr error
}

func NewExtractionStore() *ExtractionStore {
	return &ExtractionStore{byID: map[uuid.UUID]models.PublicationExtraction{}, byQueue: map[uuid.UUID]uuid.UUID{}}
}

func (s *ExtractionStore) FindByQueueItemID(_ context.Context, queueItemID uuid.UUID) (*models.PublicationExtraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byQueue[queueItemID]
	if !ok {
		return nil, nil
	}
	e := s.byID[id]
	return &e, nil
}

func (s *ExtractionStore) Create(_ context.Context, extraction *models.PublicationExtraction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return s.CreateErr
	}
	if _, dup := s.byQueue[extraction.QueueItemID]; dup {
		return fmt.Errorf("duplicate queue_item_id %s", extraction.QueueItemID)
	}
	if extraction.ID == uuid.Nil {
		extraction.ID = uuid.New()
	}
	now := time.Now().UTC()
	extraction.CreatedAt = now
	extraction.UpdatedAt = now
	s.byID[extraction.ID] = *extraction
	s.byQueue[extraction.QueueItemID] = extraction.ID
	return nil
}

func (s *ExtractionStore) Update(_ context.Context, extraction *models.PublicationExtraction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	existing, ok := s.byID[extraction.ID]
	if !ok {
		return fmt.Errorf("extraction %s: %w", extraction.ID, repository.ErrNotFound)
	}
	extraction.CreatedAt = existing.CreatedAt
	extraction.UpdatedAt = time.Now().UTC()
	s.byID[extraction.ID] = *extraction
	return nil
}

func (s *ExtractionStore) ListByPublication(_ context.Context, publicationID uint) ([]models.PublicationExtraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.PublicationExtraction{}
	for _, e := range s.byID {
		if e.PublicationID == publicationID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExtractedAt.After(out[j].ExtractedAt) })
	return out, nil
}

// Len liefert die Anzahl gespeicherter Extraktionen.
func (s *ExtractionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
