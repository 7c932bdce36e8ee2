package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Gateway ist das Interface, das jede Quelle für bibliographische Rohdaten implementieren muss.
type Gateway interface {
	// FetchRecords führt die Suche für die gegebene Konfiguration aus und liefert Rohdatensätze.
	FetchRecords(ctx context.Context, cfg SearchConfig) ([]RawRecord, error)

	// Name gibt den eindeutigen Namen des Gateways zurück (z.B. "pubmed").
	Name() string
}

// SearchConfig ist die Suchkonfiguration einer Datenquelle.
type SearchConfig struct {
	Query      string
	MaxResults int
}

// RawRecord ist die validierbare Grenze zwischen externer API und Domäne.
type RawRecord struct {
	PubMedID         string        `json:"pubmed_id"`
	Title            string        `json:"title"`
	Authors          []RawAuthor   `json:"authors,omitempty"`
	Journal          *RawJournal   `json:"journal,omitempty"`
	PublicationDate  string        `json:"publication_date,omitempty"`
	Abstract         string        `json:"abstract,omitempty"`
	Keywords         []string      `json:"keywords,omitempty"`
	PublicationTypes []string      `json:"publication_types,omitempty"`
	MED13Relevance   *RawRelevance `json:"med13_relevance,omitempty"`
	PMCID            string        `json:"pmc_id,omitempty"`
	DOI              string        `json:"doi,omitempty"`
}

// RawAuthor ist entweder ein strukturierter Name oder ein freier String.
type RawAuthor struct {
	LastName  string `json:"last_name,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	Name      string `json:"-"`
}

// UnmarshalJSON akzeptiert {"last_name","first_name"} oder einen String.
func (a *RawAuthor) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = RawAuthor{Name: s}
		return nil
	}
	type structured RawAuthor
	var v structured
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("author must be a string or an object: %w", err)
	}
	*a = RawAuthor(v)
	return nil
}

// MarshalJSON schreibt freie Namen wieder als String.
func (a RawAuthor) MarshalJSON() ([]byte, error) {
	if a.Name != "" && a.LastName == "" && a.FirstName == "" {
		return json.Marshal(a.Name)
	}
	type structured RawAuthor
	return json.Marshal(structured(a))
}

// Display liefert "Nachname, Vorname", den freien Namen oder "".
func (a RawAuthor) Display() string {
	last := strings.TrimSpace(a.LastName)
	first := strings.TrimSpace(a.FirstName)
	switch {
	case last != "" && first != "":
		return last + ", " + first
	case last != "":
		return last
	case first != "":
		return first
	default:
		return strings.TrimSpace(a.Name)
	}
}

// RawJournal ist entweder {"title": ...} oder ein String.
type RawJournal struct {
	Title string `json:"title"`
}

// UnmarshalJSON akzeptiert {"title"} oder einen String.
func (j *RawJournal) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		j.Title = s
		return nil
	}
	type structured RawJournal
	var v structured
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("journal must be a string or an object: %w", err)
	}
	*j = RawJournal(v)
	return nil
}

// RawRelevance trägt den Relevanz-Score aus {"score": n}.
type RawRelevance struct {
	Score *float64 `json:"score"`
}
