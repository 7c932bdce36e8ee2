package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"med13-pipeline/models"
)

const (
	RuleBasedProcessorName    = "rule_based_pubmed_v1"
	RuleBasedProcessorVersion = "1.0"
	PlaceholderProcessorName  = "placeholder_v1"

	ProcessorKindRuleBased   = "rule_based"
	ProcessorKindPlaceholder = "placeholder"
)

// DefaultGeneSymbols sind die Gensymbole, nach denen ohne Konfiguration gesucht wird.
var DefaultGeneSymbols = []string{"MED13"}

// TextPayload ist der Text, aus dem extrahiert wird.
type TextPayload struct {
	Text              string
	TextSource        models.TextSource
	DocumentReference *string
}

// ExtractionProcessorResult ist das Ergebnis eines Processors für einen Queue-Eintrag.
type ExtractionProcessorResult struct {
	Status            models.ExtractionStatus
	Facts             []models.ExtractionFact
	Metadata          map[string]any
	ProcessorName     string
	ProcessorVersion  string
	TextSource        models.TextSource
	DocumentReference *string
	ErrorMessage      string
}

// ExtractionProcessor extrahiert Fakten aus einer Publikation. publication und payload dürfen nil sein.
type ExtractionProcessor interface {
	ExtractPublication(ctx context.Context, item models.ExtractionQueueItem, publication *models.Publication, payload *TextPayload) (*ExtractionProcessorResult, error)
}

// NewProcessor wählt den Processor anhand der Konfiguration.
func NewProcessor(kind string, geneSymbols []string) (ExtractionProcessor, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", ProcessorKindRuleBased:
		return NewRuleBasedProcessor(geneSymbols), nil
	case ProcessorKindPlaceholder:
		return PlaceholderProcessor{}, nil
	default:
		return nil, fmt.Errorf("unknown extraction processor %q", kind)
	}
}

const aminoAcids3 = `Ala|Arg|Asn|Asp|Cys|Gln|Glu|Gly|His|Ile|Leu|Lys|Met|Phe|Pro|Ser|Thr|Trp|Tyr|Val|Sec|Pyl`

type variantPattern struct {
	name  string
	regex *regexp.Regexp
}

var (
	variantPatterns = []variantPattern{
		{"cdna", regexp.MustCompile(`(?i)\bc\.\d+[ACGT]>[ACGT]\b`)},
		{"protein_three_letter", regexp.MustCompile(`\bp\.(?:` + aminoAcids3 + `)\d+(?:` + aminoAcids3 + `|Ter)\b`)},
		{"protein_one_letter", regexp.MustCompile(`\bp\.[A-Z]\d+[A-Z]\b`)},
	}
	hpoPattern = regexp.MustCompile(`\bHP:\d{7}\b`)
)

type genePattern struct {
	symbol string
	regex  *regexp.Regexp
}

// RuleBasedProcessor sucht per Regex nach Genen, HGVS-Varianten und HPO-IDs in Titel und Abstract.
type RuleBasedProcessor struct {
	genes []genePattern
}

func NewRuleBasedProcessor(geneSymbols []string) *RuleBasedProcessor {
	if len(geneSymbols) == 0 {
		geneSymbols = DefaultGeneSymbols
	}
	p := &RuleBasedProcessor{}
	seen := map[string]struct{}{}
	for _, sym := range geneSymbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		p.genes = append(p.genes, genePattern{
			symbol: sym,
			regex:  regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(sym) + `\b`),
		})
	}
	return p
}

func (p *RuleBasedProcessor) ExtractPublication(_ context.Context, _ models.ExtractionQueueItem, publication *models.Publication, payload *TextPayload) (*ExtractionProcessorResult, error) {
	result := &ExtractionProcessorResult{
		Facts:            []models.ExtractionFact{},
		Metadata:         map[string]any{},
		ProcessorName:    RuleBasedProcessorName,
		ProcessorVersion: RuleBasedProcessorVersion,
		TextSource:       models.TextSourceTitleAbstract,
	}
	if payload != nil {
		result.DocumentReference = payload.DocumentReference
	}
	if publication == nil {
		result.Status = models.ExtractionStatusFailed
		result.ErrorMessage = "publication_not_found"
		return result, nil
	}

	text := NormalizeText(joinNonEmpty(publication.Title, publication.Abstract))
	if text == "" {
		result.Status = models.ExtractionStatusSkipped
		result.Metadata["reason"] = "empty_text"
		return result, nil
	}

	facts := newFactSet()
	for _, g := range p.genes {
		for _, m := range g.regex.FindAllString(text, -1) {
			facts.add(models.ExtractionFact{FactType: models.FactTypeGene, Value: m, NormalizedID: g.symbol, Source: RuleBasedProcessorName})
		}
	}
	for _, vp := range variantPatterns {
		for _, m := range vp.regex.FindAllString(text, -1) {
			facts.add(models.ExtractionFact{
				FactType:   models.FactTypeVariant,
				Value:      m,
				Source:     RuleBasedProcessorName,
				Attributes: map[string]any{"pattern": vp.name},
			})
		}
	}
	for _, m := range hpoPattern.FindAllString(text, -1) {
		facts.add(models.ExtractionFact{FactType: models.FactTypePhenotype, Value: m, NormalizedID: m, Source: RuleBasedProcessorName})
	}

	result.Facts = facts.list
	result.Metadata["fact_count"] = len(facts.list)
	if len(facts.list) > 0 {
		result.Status = models.ExtractionStatusCompleted
	} else {
		result.Status = models.ExtractionStatusSkipped
		result.Metadata["reason"] = "no_matches"
	}
	return result, nil
}

type factKey struct {
	factType     models.FactType
	value        string
	normalizedID string
}

// factSet dedupliziert nach (fact_type, value, normalized_id); der erste Treffer gewinnt.
type factSet struct {
	seen map[factKey]struct{}
	list []models.ExtractionFact
}

func newFactSet() *factSet {
	return &factSet{seen: map[factKey]struct{}{}, list: []models.ExtractionFact{}}
}

func (s *factSet) add(f models.ExtractionFact) {
	k := factKey{f.FactType, f.Value, f.NormalizedID}
	if _, dup := s.seen[k]; dup {
		return
	}
	s.seen[k] = struct{}{}
	s.list = append(s.list, f)
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// PlaceholderProcessor überspringt jede Publikation. Für Umgebungen ohne konfigurierte Extraktion.
type PlaceholderProcessor struct{}

func (PlaceholderProcessor) ExtractPublication(_ context.Context, _ models.ExtractionQueueItem, _ *models.Publication, payload *TextPayload) (*ExtractionProcessorResult, error) {
	result := &ExtractionProcessorResult{
		Status:           models.ExtractionStatusSkipped,
		Facts:            []models.ExtractionFact{},
		Metadata:         map[string]any{"reason": "processor_not_configured"},
		ProcessorName:    PlaceholderProcessorName,
		ProcessorVersion: "1.0",
		TextSource:       models.TextSourceTitleAbstract,
	}
	if payload != nil {
		result.TextSource = payload.TextSource
		result.DocumentReference = payload.DocumentReference
	}
	return result, nil
}
