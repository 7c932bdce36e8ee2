package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnknownUseCase = errors.New("unknown storage use case")
	ErrEmptyKey       = errors.New("storage key must not be empty")
)

// UseCase trennt die Ablagebereiche im Speicher.
type UseCase string

const (
	UseCaseRawSource       UseCase = "raw_source"
	UseCaseDocumentContent UseCase = "document_content"
)

// Valid meldet, ob der Use-Case bekannt ist.
func (u UseCase) Valid() bool {
	return u == UseCaseRawSource || u == UseCaseDocumentContent
}

// Record beschreibt ein abgelegtes Objekt.
type Record struct {
	Key     string  `json:"key"`
	URL     string  `json:"url,omitempty"`
	UseCase UseCase `json:"use_case"`
	Size    int     `json:"size"`
}

// Coordinator legt Inhalte für einen Use-Case ab. Aufrufer behandeln Fehler als Best-Effort.
type Coordinator interface {
	StoreForUseCase(ctx context.Context, useCase UseCase, key string, body []byte, contentType string, userID string, metadata map[string]string) (*Record, error)
}

// RawSourceKey ist der Schlüssel für die unveränderten Rohdaten eines Ingestion-Laufs.
func RawSourceKey(sourceID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("raw/pubmed/%s/%s.json", sourceID, at.UTC().Format("20060102T150405Z"))
}

// ExtractionTextKey ist der inhaltsadressierte Schlüssel für den Extraktionstext eines Queue-Eintrags.
func ExtractionTextKey(sourceID, jobID uuid.UUID, documentID string, version int, queueItemID uuid.UUID, textSource string) string {
	return fmt.Sprintf("extractions/%s/%s/%s/v%d/%s_%s.txt", sourceID, jobID, documentID, version, queueItemID, textSource)
}

// MemoryCoordinator hält Objekte im Speicher. Err simuliert einen Ausfall des Backends.
type MemoryCoordinator struct {
	mu      sync.Mutex
	Objects map[string][]byte
	Err     error
}

func NewMemoryCoordinator() *MemoryCoordinator {
	return &MemoryCoordinator{Objects: map[string][]byte{}}
}

func (m *MemoryCoordinator) StoreForUseCase(_ context.Context, useCase UseCase, key string, body []byte, _ string, _ string, _ map[string]string) (*Record, error) {
	if !useCase.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownUseCase, useCase)
	}
	if key == "" {
		return nil, ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.Objects[key] = append([]byte(nil), body...)
	return &Record{Key: key, UseCase: useCase, Size: len(body)}, nil
}

// Get liefert ein gespeichertes Objekt.
func (m *MemoryCoordinator) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.Objects[key]
	return b, ok
}

// Len liefert die Anzahl gespeicherter Objekte.
func (m *MemoryCoordinator) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Objects)
}
