package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// MinPublicationYear ist das früheste akzeptierte Erscheinungsjahr.
const MinPublicationYear = 1800

// PublicationType ist der normalisierte Publikationstyp.
type PublicationType string

const (
	PublicationTypeJournalArticle       PublicationType = "journal_article"
	PublicationTypeReview               PublicationType = "review"
	PublicationTypeSystematicReview     PublicationType = "systematic_review"
	PublicationTypeMetaAnalysis         PublicationType = "meta_analysis"
	PublicationTypeCaseReport           PublicationType = "case_report"
	PublicationTypeCaseSeries           PublicationType = "case_series"
	PublicationTypeClinicalTrial        PublicationType = "clinical_trial"
	PublicationTypeRandomizedTrial      PublicationType = "randomized_controlled_trial"
	PublicationTypeObservationalStudy   PublicationType = "observational_study"
	PublicationTypeEditorial            PublicationType = "editorial"
	PublicationTypeLetter               PublicationType = "letter"
	PublicationTypeComment              PublicationType = "comment"
	PublicationTypePreprint             PublicationType = "preprint"
	PublicationTypeConferenceProceeding PublicationType = "conference_proceeding"
	PublicationTypeBookChapter          PublicationType = "book_chapter"
	PublicationTypeOther                PublicationType = "other"
)

var knownPublicationTypes = map[PublicationType]struct{}{
	PublicationTypeJournalArticle:       {},
	PublicationTypeReview:               {},
	PublicationTypeSystematicReview:     {},
	PublicationTypeMetaAnalysis:         {},
	PublicationTypeCaseReport:           {},
	PublicationTypeCaseSeries:           {},
	PublicationTypeClinicalTrial:        {},
	PublicationTypeRandomizedTrial:      {},
	PublicationTypeObservationalStudy:   {},
	PublicationTypeEditorial:            {},
	PublicationTypeLetter:               {},
	PublicationTypeComment:              {},
	PublicationTypePreprint:             {},
	PublicationTypeConferenceProceeding: {},
	PublicationTypeBookChapter:          {},
	PublicationTypeOther:                {},
}

// Valid meldet, ob der Typ zur bekannten Aufzählung gehört.
func (t PublicationType) Valid() bool {
	_, ok := knownPublicationTypes[t]
	return ok
}

// Publication repräsentiert einen bibliographischen Datensatz.
type Publication struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PubMedID string `json:"pubmed_id" gorm:"column:pubmed_id;uniqueIndex;size:32"`
	PMCID    string `json:"pmc_id,omitempty" gorm:"column:pmc_id;index;size:32"`
	DOI      string `json:"doi,omitempty" gorm:"column:doi;index;size:255"`

	Title           string          `json:"title" gorm:"type:text;not null"`
	Authors         datatypes.JSON  `json:"authors" gorm:"type:jsonb;not null;default:'[]'"`
	Journal         string          `json:"journal"`
	PublicationYear int             `json:"publication_year" gorm:"index;not null"`
	PublicationDate *time.Time      `json:"publication_date,omitempty"`
	Abstract        string          `json:"abstract,omitempty" gorm:"type:text"`
	Keywords        datatypes.JSON  `json:"keywords" gorm:"type:jsonb;not null;default:'[]'"`
	PublicationType PublicationType `json:"publication_type" gorm:"index;size:64;default:'journal_article'"`

	CitationCount  int      `json:"citation_count" gorm:"default:0"`
	ImpactFactor   *float64 `json:"impact_factor,omitempty"`
	RelevanceScore *int     `json:"relevance_score,omitempty"`
}

func (Publication) TableName() string { return "publications" }

// AuthorNames liefert die Autorenliste in Originalreihenfolge.
func (p *Publication) AuthorNames() []string {
	return DecodeStrings(p.Authors)
}

// KeywordList liefert die normalisierten Schlagwörter.
func (p *Publication) KeywordList() []string {
	return DecodeStrings(p.Keywords)
}

// Validate prüft die Invarianten einer Publikation.
func (p *Publication) Validate() error {
	var errs []error
	if strings.TrimSpace(p.Title) == "" {
		errs = append(errs, errors.New("title must not be empty"))
	}
	if len(p.AuthorNames()) == 0 {
		errs = append(errs, errors.New("at least one author is required"))
	}
	if p.PublicationYear < MinPublicationYear {
		errs = append(errs, fmt.Errorf("publication_year %d is before %d", p.PublicationYear, MinPublicationYear))
	}
	if p.RelevanceScore != nil && (*p.RelevanceScore < 1 || *p.RelevanceScore > 5) {
		errs = append(errs, fmt.Errorf("relevance_score %d outside 1..5", *p.RelevanceScore))
	}
	return errors.Join(errs...)
}

// MutableFields liefert die Spalten, die bei erneutem Ingest überschrieben werden.
func (p *Publication) MutableFields() map[string]any {
	return map[string]any{
		"pmc_id":           p.PMCID,
		"doi":              p.DOI,
		"title":            p.Title,
		"authors":          p.Authors,
		"journal":          p.Journal,
		"publication_year": p.PublicationYear,
		"publication_date": p.PublicationDate,
		"abstract":         p.Abstract,
		"keywords":         p.Keywords,
		"publication_type": p.PublicationType,
		"relevance_score":  p.RelevanceScore,
	}
}

// ApplyMutable überträgt die veränderlichen Felder von src auf p.
func (p *Publication) ApplyMutable(src *Publication) {
	p.PMCID = src.PMCID
	p.DOI = src.DOI
	p.Title = src.Title
	p.Authors = src.Authors
	p.Journal = src.Journal
	p.PublicationYear = src.PublicationYear
	p.PublicationDate = src.PublicationDate
	p.Abstract = src.Abstract
	p.Keywords = src.Keywords
	p.PublicationType = src.PublicationType
	p.RelevanceScore = src.RelevanceScore
}
