// Package memory enthält In-Memory-Repositories mit derselben Semantik wie die GORM-Variante.
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

// PublicationStore hält Publikationen im Speicher.
type PublicationStore struct {
	mu     sync.Mutex
	nextID uint
	byID   map[uint]models.Publication
	byPMID map[string]uint
}

func NewPublicationStore() *PublicationStore {
	return &PublicationStore{byID: map[uint]models.Publication{}, byPMID: map[string]uint{}}
}

func (s *PublicationStore) FindByPMID(_ context.Context, pmid string) (*models.Publication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPMID[pmid]
	if !ok || pmid == "" {
		return nil, nil
	}
	pub := s.byID[id]
	return &pub, nil
}

func (s *PublicationStore) GetByID(_ context.Context, id uint) (*models.Publication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pub, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return &pub, nil
}

func (s *PublicationStore) Create(_ context.Context, pub *models.Publication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pub.PubMedID != "" {
		if _, exists := s.byPMID[pub.PubMedID]; exists {
			return fmt.Errorf("duplicate pubmed_id %q", pub.PubMedID)
		}
	}
	s.nextID++
	now := time.Now().UTC()
	pub.ID = s.nextID
	pub.CreatedAt = now
	pub.UpdatedAt = now
	s.byID[pub.ID] = *pub
	if pub.PubMedID != "" {
		s.byPMID[pub.PubMedID] = pub.ID
	}
	return nil
}

func (s *PublicationStore) UpdatePublication(_ context.Context, id uint, src *models.Publication) (*models.Publication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pub, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("publication %d: %w", id, repository.ErrNotFound)
	}
	pub.ApplyMutable(src)
	pub.UpdatedAt = time.Now().UTC()
	s.byID[id] = pub
	return &pub, nil
}

func (s *PublicationStore) List(_ context.Context, limit, offset int) ([]models.Publication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Publication, 0, len(s.byID))
	for _, pub := range s.byID {
		out = append(out, pub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, limit, offset), nil
}

// Len liefert die Anzahl gespeicherter Publikationen.
func (s *PublicationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func page[T any](in []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(in) {
			return []T{}
		}
		in = in[offset:]
	}
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

// DataSourceStore hält Datenquellen im Speicher.
type DataSourceStore struct {
	mu      sync.Mutex
	sources map[uuid.UUID]models.DataSource
}

func NewDataSourceStore() *DataSourceStore {
	return &DataSourceStore{sources: map[uuid.UUID]models.DataSource{}}
}

func (s *DataSourceStore) Create(_ context.Context, source *models.DataSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if source.ID == uuid.Nil {
		source.ID = uuid.New()
	}
	for _, existing := range s.sources {
		if existing.Name == source.Name {
			return fmt.Errorf("duplicate data source name %q", source.Name)
		}
	}
	now := time.Now().UTC()
	source.CreatedAt = now
	source.UpdatedAt = now
	s.sources[source.ID] = *source
	return nil
}

func (s *DataSourceStore) Get(_ context.Context, id uuid.UUID) (*models.DataSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return nil, fmt.Errorf("data source %s: %w", id, repository.ErrNotFound)
	}
	return &src, nil
}

func (s *DataSourceStore) List(_ context.Context) ([]models.DataSource, error) {
	return s.filter(func(models.DataSource) bool { return true }), nil
}

func (s *DataSourceStore) ListActive(_ context.Context, sourceType models.SourceType) ([]models.DataSource, error) {
	return s.filter(func(src models.DataSource) bool {
		return src.Active && (sourceType == "" || src.SourceType == sourceType)
	}), nil
}

func (s *DataSourceStore) filter(keep func(models.DataSource) bool) []models.DataSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.DataSource{}
	for _, src := range s.sources {
		if keep(src) {
			out = append(out, src)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *DataSourceStore) MarkIngested(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return fmt.Errorf("data source %s: %w", id, repository.ErrNotFound)
	}
	src.LastIngestedAt = &at
	s.sources[id] = src
	return nil
}

// IngestionJobStore hält Ingestion-Läufe im Speicher.
type IngestionJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]models.IngestionJob
}

func NewIngestionJobStore() *IngestionJobStore {
	return &IngestionJobStore{jobs: map[uuid.UUID]models.IngestionJob{}}
}

func (s *IngestionJobStore) Create(_ context.Context, job *models.IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	s.jobs[job.ID] = *job
	return nil
}

func (s *IngestionJobStore) Save(_ context.Context, job *models.IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *IngestionJobStore) Get(_ context.Context, id uuid.UUID) (*models.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("ingestion job %s: %w", id, repository.ErrNotFound)
	}
	return &job, nil
}

func (s *IngestionJobStore) List(_ context.Context, sourceID *uuid.UUID, limit int) ([]models.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.IngestionJob{}
	for _, job := range s.jobs {
		if sourceID != nil && job.SourceID != *sourceID {
			continue
		}
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return page(out, limit, 0), nil
}

var (
	_ repository.PublicationRepository           = (*PublicationStore)(nil)
	_ repository.DataSourceRepository            = (*DataSourceStore)(nil)
	_ repository.IngestionJobRepository          = (*IngestionJobStore)(nil)
	_ repository.ExtractionQueueRepository       = (*QueueStore)(nil)
	_ repository.PublicationExtractionRepository = (*ExtractionStore)(nil)
)
