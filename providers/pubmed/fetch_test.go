package pubmed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"med13-pipeline/config"
	"med13-pipeline/providers"
)

const efetchXML = `<?xml version="1.0"?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <PMID>100</PMID>
      <Article>
        <Journal>
          <Title>Nature</Title>
          <JournalIssue><PubDate><Year>2023</Year><Month>Jan</Month><Day>15</Day></PubDate></JournalIssue>
        </Journal>
        <ArticleTitle>De novo <i>MED13</i> variants</ArticleTitle>
        <ELocationID EIdType="doi" ValidYN="Y">10.1000/xyz</ELocationID>
        <Abstract>
          <AbstractText Label="BACKGROUND">MED13 is part of the &amp; mediator.</AbstractText>
          <AbstractText Label="RESULTS">We found   c.123A&gt;G.</AbstractText>
        </Abstract>
        <AuthorList>
          <Author><LastName>Doe</LastName><ForeName>Jane</ForeName></Author>
          <Author><LastName>Roe</LastName><Initials>R</Initials></Author>
          <Author><CollectiveName>MED13 Consortium</CollectiveName></Author>
        </AuthorList>
        <PublicationTypeList><PublicationType>Journal Article</PublicationType></PublicationTypeList>
      </Article>
      <KeywordList><Keyword>MED13</Keyword></KeywordList>
    </MedlineCitation>
    <PubmedData>
      <ArticleIdList><ArticleId IdType="pmc">PMC123</ArticleId></ArticleIdList>
    </PubmedData>
  </PubmedArticle>
  <PubmedArticle>
    <MedlineCitation>
      <PMID>200</PMID>
      <Article>
        <Journal><JournalIssue><PubDate><MedlineDate>2019 Mar-Apr</MedlineDate></PubDate></JournalIssue></Journal>
        <ArticleTitle>Second</ArticleTitle>
      </Article>
    </MedlineCitation>
  </PubmedArticle>
</PubmedArticleSet>`

func newTestFetcher(t *testing.T, handler http.Handler) *Fetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := &config.Config{
		PubMedBaseURL:    srv.URL,
		PubMedTool:       "med13-pipeline",
		PubMedEmail:      "dev@example.org",
		PubMedMaxResults: 100,
		PubMedPageSize:   50,
	}
	return &Fetcher{Config: cfg, Logger: zap.NewNop(), Client: srv.Client()}
}

func TestFetchRecords(t *testing.T) {
	var esearchCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/esearch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		esearchCalls.Add(1)
		assert.Equal(t, "MED13", r.URL.Query().Get("term"))
		assert.Equal(t, "med13-pipeline", r.URL.Query().Get("tool"))
		fmt.Fprint(w, `{"esearchresult":{"count":"2","idlist":["100","200"]}}`)
	})
	mux.HandleFunc("/efetch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100,200", r.URL.Query().Get("id"))
		fmt.Fprint(w, efetchXML)
	})
	f := newTestFetcher(t, mux)

	records, err := f.FetchRecords(context.Background(), providers.SearchConfig{Query: "MED13", MaxResults: 10})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.EqualValues(t, 1, esearchCalls.Load())

	rec := records[0]
	assert.Equal(t, "100", rec.PubMedID)
	assert.Equal(t, "De novo MED13 variants", rec.Title)
	assert.Equal(t, "BACKGROUND: MED13 is part of the & mediator.\nRESULTS: We found c.123A>G.", rec.Abstract)
	assert.Equal(t, "2023-Jan-15", rec.PublicationDate)
	assert.Equal(t, "10.1000/xyz", rec.DOI)
	assert.Equal(t, "PMC123", rec.PMCID)
	require.NotNil(t, rec.Journal)
	assert.Equal(t, "Nature", rec.Journal.Title)
	assert.Equal(t, []string{"MED13"}, rec.Keywords)
	assert.Equal(t, []string{"Journal Article"}, rec.PublicationTypes)

	var names []string
	for _, a := range rec.Authors {
		names = append(names, a.Display())
	}
	assert.Equal(t, []string{"Doe, Jane", "Roe, R", "MED13 Consortium"}, names)

	assert.Equal(t, "2019 Mar-Apr", records[1].PublicationDate)
	assert.Nil(t, records[1].Journal)
}

func TestFetchRecords_PagesESearch(t *testing.T) {
	var (
		mu      sync.Mutex
		offsets []string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/esearch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		offsets = append(offsets, r.URL.Query().Get("retstart"))
		mu.Unlock()
		switch r.URL.Query().Get("retstart") {
		case "0":
			fmt.Fprint(w, `{"esearchresult":{"idlist":["1","2"]}}`)
		default:
			fmt.Fprint(w, `{"esearchresult":{"idlist":["3"]}}`)
		}
	})
	mux.HandleFunc("/efetch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		ids := strings.Split(r.URL.Query().Get("id"), ",")
		fmt.Fprint(w, "<PubmedArticleSet>")
		for _, id := range ids {
			fmt.Fprintf(w, "<PubmedArticle><MedlineCitation><PMID>%s</PMID><Article><ArticleTitle>t</ArticleTitle></Article></MedlineCitation></PubmedArticle>", id)
		}
		fmt.Fprint(w, "</PubmedArticleSet>")
	})
	f := newTestFetcher(t, mux)
	f.Config.PubMedPageSize = 2

	records, err := f.FetchRecords(context.Background(), providers.SearchConfig{Query: "MED13", MaxResults: 5})
	require.NoError(t, err)
	assert.Len(t, records, 3)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"0", "2"}, offsets)
}

func TestFetchRecords_Non200(t *testing.T) {
	f := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))

	_, err := f.FetchRecords(context.Background(), providers.SearchConfig{Query: "MED13"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "a b & c", cleanText("  <b>a</b>\n  b &amp; c "))
}
