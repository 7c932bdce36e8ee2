package europepmc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"med13-pipeline/config"
	"med13-pipeline/providers"
)

const maxPageSize = 1000

var httpClient = &http.Client{Timeout: 60 * time.Second}

// Fetcher liefert PubMed-Datensätze über die Europe PMC REST-API.
// Nur Treffer mit PMID (source MED) werden übernommen.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
	Client *http.Client
}

// NewFetcher erstellt einen neuen Europe PMC Fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger, Client: httpClient}
}

// Name gibt den Namen des Gateways zurück.
func (f *Fetcher) Name() string {
	return "europepmc"
}

// FetchRecords blättert per cursorMark durch die Suche, bis MaxResults erreicht sind.
func (f *Fetcher) FetchRecords(ctx context.Context, cfg providers.SearchConfig) ([]providers.RawRecord, error) {
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = f.Config.PubMedMaxResults
	}
	log := f.Logger.With(zap.String("term", cfg.Query))
	log.Info("Starte Suche auf Europe PMC.")

	records := make([]providers.RawRecord, 0, maxResults)
	cursor := "*"
	for len(records) < maxResults {
		var page SearchResponse
		if err := f.getJSON(ctx, f.buildSearchURL(cfg.Query, min(maxResults-len(records), maxPageSize), cursor), &page); err != nil {
			return records, fmt.Errorf("europepmc search: %w", err)
		}
		for i := range page.ResultList.Result {
			article := &page.ResultList.Result[i]
			if article.PMID == "" {
				continue
			}
			records = append(records, mapArticleToRecord(article))
			if len(records) == maxResults {
				break
			}
		}
		if len(page.ResultList.Result) == 0 || page.NextCursorMark == "" || page.NextCursorMark == cursor {
			break
		}
		cursor = page.NextCursorMark
	}

	log.Info("Suche auf Europe PMC abgeschlossen", zap.Int("records", len(records)))
	return records, nil
}

func (f *Fetcher) buildSearchURL(query string, pageSize int, cursor string) string {
	q := url.Values{}
	q.Set("query", query)
	q.Set("format", "json")
	q.Set("resultType", "core")
	q.Set("pageSize", strconv.Itoa(pageSize))
	q.Set("cursorMark", cursor)
	return strings.TrimRight(f.Config.EuropePMCBaseURL, "/") + "/search?" + q.Encode()
}

func (f *Fetcher) getJSON(ctx context.Context, rawURL string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	client := f.Client
	if client == nil {
		client = httpClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		f.Logger.Error("Europe PMC returned non-200 status", zap.Int("status", resp.StatusCode))
		return fmt.Errorf("europepmc request failed: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// mapArticleToRecord konvertiert ein Europe PMC Article-Objekt in einen Rohdatensatz.
func mapArticleToRecord(article *Article) providers.RawRecord {
	rec := providers.RawRecord{
		PubMedID:         strings.TrimSpace(article.PMID),
		PMCID:            strings.TrimSpace(article.PMCID),
		DOI:              strings.TrimSpace(article.DOI),
		Title:            strings.TrimSpace(article.Title),
		Abstract:         strings.TrimSpace(article.AbstractText),
		Keywords:         article.KeywordList.Keyword,
		PublicationTypes: article.PubTypeList.PubType,
		PublicationDate:  article.FirstPublicationDate,
	}
	if rec.PublicationDate == "" {
		rec.PublicationDate = article.PubYear
	}

	journal := article.JournalInfo.Journal.Title
	if journal == "" {
		journal = article.JournalTitle
	}
	if journal = strings.TrimSpace(journal); journal != "" {
		rec.Journal = &providers.RawJournal{Title: journal}
	}

	for _, a := range article.AuthorList.Author {
		switch {
		case a.LastName != "":
			first := a.FirstName
			if first == "" {
				first = a.Initials
			}
			rec.Authors = append(rec.Authors, providers.RawAuthor{LastName: a.LastName, FirstName: first})
		case a.CollectiveName != "":
			rec.Authors = append(rec.Authors, providers.RawAuthor{Name: a.CollectiveName})
		}
	}
	if len(rec.Authors) == 0 {
		// Fallback auf "Doe J, Roe R." aus authorString
		for _, name := range strings.Split(strings.TrimSuffix(article.AuthorString, "."), ",") {
			if name = strings.TrimSpace(name); name != "" {
				rec.Authors = append(rec.Authors, providers.RawAuthor{Name: name})
			}
		}
	}
	return rec
}
