package europepmc

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"med13-pipeline/config"
	"med13-pipeline/providers"
)

const firstPage = `{
  "hitCount": 3,
  "nextCursorMark": "AoE1",
  "resultList": {"result": [
    {
      "id": "100", "source": "MED", "pmid": "100", "pmcid": "PMC1", "doi": "10.1/a",
      "title": " MED13 variants ",
      "authorList": {"author": [{"lastName": "Doe", "firstName": "Jane"}, {"collectiveName": "MED13 Consortium"}]},
      "journalInfo": {"journal": {"title": "Nature"}},
      "firstPublicationDate": "2023-01-15",
      "abstractText": "We report c.123A>G.",
      "keywordList": {"keyword": ["MED13"]},
      "pubTypeList": {"pubType": ["review"]}
    },
    {"id": "PPR1", "source": "PPR", "title": "Preprint without PMID"}
  ]}
}`

const secondPage = `{
  "hitCount": 3,
  "nextCursorMark": "AoE1",
  "resultList": {"result": [
    {"id": "200", "source": "MED", "pmid": "200", "title": "Second", "authorString": "Roe R, Poe P.", "journalTitle": "Cell", "pubYear": "2020"}
  ]}
}`

func newTestFetcher(t *testing.T, handler http.HandlerFunc) *Fetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := &config.Config{EuropePMCBaseURL: srv.URL + "/", PubMedMaxResults: 100}
	return &Fetcher{Config: cfg, Logger: zap.NewNop(), Client: srv.Client()}
}

func TestFetchRecords_FollowsCursor(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "MED13", r.URL.Query().Get("query"))
		assert.Equal(t, "core", r.URL.Query().Get("resultType"))
		switch r.URL.Query().Get("cursorMark") {
		case "*":
			fmt.Fprint(w, firstPage)
		default:
			fmt.Fprint(w, secondPage)
		}
	})

	records, err := f.FetchRecords(context.Background(), providers.SearchConfig{Query: "MED13", MaxResults: 10})
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "100", first.PubMedID)
	assert.Equal(t, "PMC1", first.PMCID)
	assert.Equal(t, "MED13 variants", first.Title)
	assert.Equal(t, "2023-01-15", first.PublicationDate)
	require.NotNil(t, first.Journal)
	assert.Equal(t, "Nature", first.Journal.Title)
	assert.Equal(t, []string{"review"}, first.PublicationTypes)
	require.Len(t, first.Authors, 2)
	assert.Equal(t, "Doe, Jane", first.Authors[0].Display())
	assert.Equal(t, "MED13 Consortium", first.Authors[1].Display())

	second := records[1]
	assert.Equal(t, "2020", second.PublicationDate)
	assert.Equal(t, "Cell", second.Journal.Title)
	require.Len(t, second.Authors, 2)
	assert.Equal(t, "Roe R", second.Authors[0].Display())
	assert.Equal(t, "Poe P", second.Authors[1].Display())
}

func TestFetchRecords_StopsAtMaxResults(t *testing.T) {
	var calls atomic.Int32
	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "1", r.URL.Query().Get("pageSize"))
		fmt.Fprint(w, firstPage)
	})

	records, err := f.FetchRecords(context.Background(), providers.SearchConfig{Query: "MED13", MaxResults: 1})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.EqualValues(t, 1, calls.Load())
}

func TestFetchRecords_Non200(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := f.FetchRecords(context.Background(), providers.SearchConfig{Query: "MED13"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}
