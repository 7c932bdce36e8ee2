package pubmed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"med13-pipeline/config"
	"med13-pipeline/providers"
)

const efetchChunkSize = 200

var (
	httpClient = &http.Client{Timeout: 60 * time.Second}
	tagRegex   = regexp.MustCompile(`<[^>]+>`)
	spaceRegex = regexp.MustCompile(`\s+`)
)

// Fetcher kapselt die Logik zur Interaktion mit PubMed.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
	Client *http.Client
}

// NewFetcher erstellt eine neue Instanz des PubMed-Fetchers.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger, Client: httpClient}
}

// Name gibt den Namen des Gateways zurück.
func (f *Fetcher) Name() string {
	return "pubmed"
}

// FetchRecords holt per ESearch die PMIDs und per EFetch die Metadaten in Blöcken.
func (f *Fetcher) FetchRecords(ctx context.Context, cfg providers.SearchConfig) ([]providers.RawRecord, error) {
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = f.Config.PubMedMaxResults
	}
	ids, err := f.searchIDs(ctx, cfg.Query, maxResults)
	if err != nil {
		return nil, fmt.Errorf("pubmed esearch: %w", err)
	}

	records := make([]providers.RawRecord, 0, len(ids))
	for start := 0; start < len(ids); start += efetchChunkSize {
		end := min(start+efetchChunkSize, len(ids))
		chunk, err := f.fetchArticles(ctx, ids[start:end])
		if err != nil {
			return records, fmt.Errorf("pubmed efetch: %w", err)
		}
		records = append(records, chunk...)
	}
	f.Logger.Info("PubMed fetch completed",
		zap.String("query", cfg.Query),
		zap.Int("ids", len(ids)),
		zap.Int("records", len(records)))
	return records, nil
}

// searchIDs führt eine seitenweise ESearch-Abfrage durch und gibt eine Liste von PMIDs zurück.
func (f *Fetcher) searchIDs(ctx context.Context, term string, maxResults int) ([]string, error) {
	log := f.Logger.With(zap.String("term", term))
	pageSize := f.Config.PubMedPageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	var allIDs []string
	for offset := 0; len(allIDs) < maxResults; offset += pageSize {
		retmax := min(pageSize, maxResults-len(allIDs))
		searchURL := f.buildEsearchURL(term, retmax, offset)
		log.Debug("Calling ESearch", zap.Int("offset", offset))

		var esearchResp ESearchResponse
		if err := f.getJSON(ctx, searchURL, &esearchResp); err != nil {
			return nil, err
		}

		ids := esearchResp.ESearchResult.IdList
		if len(ids) == 0 {
			break
		}
		allIDs = append(allIDs, ids...)
		if len(ids) < retmax {
			break
		}
	}
	log.Info("PubMed ESearch completed", zap.Int("total_ids", len(allIDs)))
	return allIDs, nil
}

// fetchArticles holt Metadaten für mehrere PMIDs in einem EFetch-Aufruf.
func (f *Fetcher) fetchArticles(ctx context.Context, pmids []string) ([]providers.RawRecord, error) {
	efetchURL := f.buildEfetchURL(pmids)
	body, err := f.get(ctx, efetchURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var articleSet PubmedArticleSet
	if err := xml.NewDecoder(body).Decode(&articleSet); err != nil {
		return nil, fmt.Errorf("decode efetch xml: %w", err)
	}

	out := make([]providers.RawRecord, 0, len(articleSet.PubmedArticle))
	for i := range articleSet.PubmedArticle {
		out = append(out, mapArticleToRecord(&articleSet.PubmedArticle[i]))
	}
	return out, nil
}

func (f *Fetcher) getJSON(ctx context.Context, rawURL string, dst any) error {
	body, err := f.get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	client := f.Client
	if client == nil {
		client = httpClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		f.Logger.Error("E-utilities returned non-200 status",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(snippet)))
		return nil, fmt.Errorf("eutils request failed: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// buildEsearchURL baut die URL für eine ESearch-Anfrage.
func (f *Fetcher) buildEsearchURL(term string, retmax, retstart int) string {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("term", term)
	q.Set("retmode", "json")
	q.Set("retmax", fmt.Sprint(retmax))
	q.Set("retstart", fmt.Sprint(retstart))
	f.addIdentity(q)
	return f.Config.PubMedBaseURL + "/esearch.fcgi?" + q.Encode()
}

// buildEfetchURL baut die URL für eine EFetch-Anfrage.
func (f *Fetcher) buildEfetchURL(pmids []string) string {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(pmids, ","))
	q.Set("retmode", "xml")
	f.addIdentity(q)
	return f.Config.PubMedBaseURL + "/efetch.fcgi?" + q.Encode()
}

func (f *Fetcher) addIdentity(q url.Values) {
	if f.Config.PubMedAPIKey != "" {
		q.Set("api_key", f.Config.PubMedAPIKey)
	}
	if f.Config.PubMedTool != "" {
		q.Set("tool", f.Config.PubMedTool)
	}
	if f.Config.PubMedEmail != "" {
		q.Set("email", f.Config.PubMedEmail)
	}
}

// mapArticleToRecord wandelt ein XML-Article-Objekt in einen Rohdatensatz um.
func mapArticleToRecord(article *PubmedArticle) providers.RawRecord {
	mc := &article.MedlineCitation
	rec := providers.RawRecord{
		PubMedID:         strings.TrimSpace(mc.PMID),
		Title:            cleanText(mc.Article.Title.Inner),
		PublicationTypes: mc.Article.PublicationTypes,
		Keywords:         mc.Keywords,
	}

	var sections []string
	for _, part := range mc.Article.Abstract.Text {
		text := cleanText(part.Inner)
		if text == "" {
			continue
		}
		if part.Label != "" {
			text = part.Label + ": " + text
		}
		sections = append(sections, text)
	}
	rec.Abstract = strings.Join(sections, "\n")

	for _, author := range mc.Article.Authors {
		switch {
		case author.LastName != "":
			first := author.ForeName
			if first == "" {
				first = author.Initials
			}
			rec.Authors = append(rec.Authors, providers.RawAuthor{LastName: author.LastName, FirstName: first})
		case author.CollectiveName != "":
			rec.Authors = append(rec.Authors, providers.RawAuthor{Name: author.CollectiveName})
		}
	}

	if title := strings.TrimSpace(mc.Article.Journal.Title); title != "" {
		rec.Journal = &providers.RawJournal{Title: title}
	}

	pubDate := mc.Article.Journal.PubDate
	switch {
	case pubDate.Year != "":
		parts := []string{pubDate.Year}
		if pubDate.Month != "" {
			parts = append(parts, pubDate.Month)
			if pubDate.Day != "" {
				parts = append(parts, pubDate.Day)
			}
		}
		rec.PublicationDate = strings.Join(parts, "-")
	case pubDate.MedlineDate != "":
		rec.PublicationDate = pubDate.MedlineDate
	}

	for _, id := range mc.Article.ELocationID {
		if id.IDType == "doi" && id.ValidYN != "N" {
			rec.DOI = strings.TrimSpace(id.Value)
			break
		}
	}
	for _, id := range article.PubmedData.ArticleIDs {
		switch id.IDType {
		case "pmc":
			rec.PMCID = strings.TrimSpace(id.Value)
		case "doi":
			if rec.DOI == "" {
				rec.DOI = strings.TrimSpace(id.Value)
			}
		}
	}
	return rec
}

// cleanText entfernt Inline-Markup und normalisiert Leerraum.
func cleanText(s string) string {
	s = tagRegex.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.TrimSpace(spaceRegex.ReplaceAllString(s, " "))
}
