package services

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"med13-pipeline/models"
	"med13-pipeline/providers"
)

const (
	unknownAuthor  = "Unknown Author"
	unknownJournal = "Unknown Journal"
)

// ErrInvalidRecord markiert Rohdatensätze, die beim Ingest übersprungen werden.
var ErrInvalidRecord = errors.New("invalid raw record")

var (
	datePattern  = regexp.MustCompile(`^\s*(\d{4})(?:[-/ ]([A-Za-z]+|\d{1,2}))?(?:[-/ ](\d{1,2}))?`)
	yearPattern  = regexp.MustCompile(`\b(\d{4})\b`)
	nonWordRegex = regexp.MustCompile(`[^a-z0-9]+`)
)

var monthAliases = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "sept": time.September, "oct": time.October,
	"nov": time.November, "dec": time.December,
}

// PubMedTransformer bildet PubMed-Rohdatensätze auf Publikationen ab.
type PubMedTransformer struct {
	// Now liefert die aktuelle Zeit für das Fallback-Jahr.
	Now func() time.Time
}

func NewPubMedTransformer() *PubMedTransformer {
	return &PubMedTransformer{Now: time.Now}
}

// Transform validiert den Rohdatensatz und erzeugt eine Publikation. Fehler wrappen ErrInvalidRecord.
func (t *PubMedTransformer) Transform(raw providers.RawRecord) (*models.Publication, error) {
	pmid := strings.TrimSpace(raw.PubMedID)
	if pmid == "" {
		return nil, fmt.Errorf("%w: missing pubmed_id", ErrInvalidRecord)
	}
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: missing title for pubmed_id %s", ErrInvalidRecord, pmid)
	}

	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	year, date := parsePublicationDate(raw.PublicationDate, now().Year())

	pub := &models.Publication{
		PubMedID:        pmid,
		PMCID:           strings.TrimSpace(raw.PMCID),
		DOI:             strings.TrimSpace(raw.DOI),
		Title:           title,
		Authors:         models.EncodeJSON(extractAuthors(raw.Authors)),
		Journal:         extractJournal(raw.Journal),
		PublicationYear: year,
		PublicationDate: date,
		Abstract:        strings.TrimSpace(raw.Abstract),
		Keywords:        models.EncodeJSON(normalizeKeywords(raw.Keywords)),
		PublicationType: mapPublicationType(raw.PublicationTypes),
		RelevanceScore:  extractRelevance(raw.MED13Relevance),
	}
	if err := pub.Validate(); err != nil {
		return nil, fmt.Errorf("%w: pubmed_id %s: %v", ErrInvalidRecord, pmid, err)
	}
	return pub, nil
}

func extractAuthors(raw []providers.RawAuthor) []string {
	authors := make([]string, 0, len(raw))
	for _, a := range raw {
		if name := a.Display(); name != "" {
			authors = append(authors, name)
		}
	}
	if len(authors) == 0 {
		return []string{unknownAuthor}
	}
	return authors
}

func extractJournal(raw *providers.RawJournal) string {
	if raw == nil {
		return unknownJournal
	}
	if title := strings.TrimSpace(raw.Title); title != "" {
		return title
	}
	return unknownJournal
}

// parsePublicationDate liest "YYYY[-MM[-DD]]" und "YYYY-Mon[-DD]". Das Jahr wird auch ohne gültiges Datum geliefert.
func parsePublicationDate(value string, fallbackYear int) (int, *time.Time) {
	m := datePattern.FindStringSubmatch(value)
	if m == nil {
		year := fallbackYear
		if ym := yearPattern.FindStringSubmatch(value); ym != nil {
			year, _ = strconv.Atoi(ym[1])
		}
		return max(year, models.MinPublicationYear), nil
	}

	year, _ := strconv.Atoi(m[1])
	if year < models.MinPublicationYear {
		return models.MinPublicationYear, nil
	}

	month := time.January
	if m[2] != "" {
		parsed, ok := parseMonth(m[2])
		if !ok {
			return year, nil
		}
		month = parsed
	}
	day := 1
	if m[3] != "" {
		day, _ = strconv.Atoi(m[3])
		day = clamp(day, 1, 31)
	}

	date := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if date.Month() != month {
		// z.B. 2023-02-31: Jahr behalten, Datum verwerfen
		return year, nil
	}
	return year, &date
}

func parseMonth(token string) (time.Month, bool) {
	if n, err := strconv.Atoi(token); err == nil {
		return time.Month(clamp(n, 1, 12)), true
	}
	token = strings.ToLower(token)
	if m, ok := monthAliases[token]; ok {
		return m, true
	}
	if len(token) > 3 {
		if m, ok := monthAliases[token[:3]]; ok {
			return m, true
		}
	}
	return 0, false
}

func normalizeKeywords(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, kw := range raw {
		kw = strings.ToLower(strings.TrimSpace(norm.NFKC.String(kw)))
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	sort.Strings(out)
	return out
}

func extractRelevance(raw *providers.RawRelevance) *int {
	if raw == nil || raw.Score == nil || *raw.Score <= 0 {
		return nil
	}
	score := clamp(int(*raw.Score), 1, 5)
	return &score
}

func mapPublicationType(raw []string) models.PublicationType {
	for _, candidate := range raw {
		pt := models.PublicationType(toSnakeCase(candidate))
		if pt.Valid() {
			return pt
		}
	}
	return models.PublicationTypeJournalArticle
}

func toSnakeCase(s string) string {
	s = strings.ToLower(norm.NFKD.String(strings.TrimSpace(s)))
	s = strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Mn, r) {
			return -1
		}
		return r
	}, s)
	return strings.Trim(nonWordRegex.ReplaceAllString(s, "_"), "_")
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
