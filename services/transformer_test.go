package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"med13-pipeline/models"
	"med13-pipeline/providers"
)

func fixedTransformer() *PubMedTransformer {
	return &PubMedTransformer{Now: func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }}
}

func decodeRecord(t *testing.T, raw string) providers.RawRecord {
	t.Helper()
	var rec providers.RawRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	return rec
}

func TestTransform_BasicRecord(t *testing.T) {
	rec := decodeRecord(t, `{
		"pubmed_id": "100",
		"title": "MED13 study",
		"authors": [{"last_name": "Doe", "first_name": "Jane"}],
		"journal": {"title": "Nature"},
		"publication_date": "2023-01-15"
	}`)

	pub, err := fixedTransformer().Transform(rec)
	require.NoError(t, err)

	assert.Equal(t, "100", pub.PubMedID)
	assert.Equal(t, "MED13 study", pub.Title)
	assert.Equal(t, []string{"Doe, Jane"}, pub.AuthorNames())
	assert.Equal(t, "Nature", pub.Journal)
	assert.Equal(t, 2023, pub.PublicationYear)
	require.NotNil(t, pub.PublicationDate)
	assert.Equal(t, time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC), *pub.PublicationDate)
	assert.Equal(t, models.PublicationTypeJournalArticle, pub.PublicationType)
	assert.Nil(t, pub.RelevanceScore)
}

func TestTransform_RequiredFields(t *testing.T) {
	tr := fixedTransformer()

	_, err := tr.Transform(providers.RawRecord{Title: "no id"})
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = tr.Transform(providers.RawRecord{PubMedID: "1", Title: "   "})
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = tr.Transform(providers.RawRecord{PubMedID: "  ", Title: "title"})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestTransform_Authors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want []string
	}{
		{"structured", `[{"last_name":"Doe","first_name":"Jane"},{"last_name":"Roe"}]`, []string{"Doe, Jane", "Roe"}},
		{"plain strings", `["Smith J", "  "]`, []string{"Smith J"}},
		{"mixed", `["Consortium", {"last_name":"Doe","first_name":"J"}]`, []string{"Consortium", "Doe, J"}},
		{"empty list", `[]`, []string{"Unknown Author"}},
		{"only blanks", `[{"last_name":"","first_name":""}, ""]`, []string{"Unknown Author"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := decodeRecord(t, `{"pubmed_id":"1","title":"t","authors":`+tc.raw+`}`)
			pub, err := fixedTransformer().Transform(rec)
			require.NoError(t, err)
			assert.Equal(t, tc.want, pub.AuthorNames())
		})
	}

	pub, err := fixedTransformer().Transform(providers.RawRecord{PubMedID: "1", Title: "t"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Unknown Author"}, pub.AuthorNames())
}

func TestTransform_Journal(t *testing.T) {
	rec := decodeRecord(t, `{"pubmed_id":"1","title":"t","journal":"Cell"}`)
	pub, err := fixedTransformer().Transform(rec)
	require.NoError(t, err)
	assert.Equal(t, "Cell", pub.Journal)

	pub, err = fixedTransformer().Transform(providers.RawRecord{PubMedID: "1", Title: "t"})
	require.NoError(t, err)
	assert.Equal(t, "Unknown Journal", pub.Journal)

	rec = decodeRecord(t, `{"pubmed_id":"1","title":"t","journal":{"title":" "}}`)
	pub, err = fixedTransformer().Transform(rec)
	require.NoError(t, err)
	assert.Equal(t, "Unknown Journal", pub.Journal)
}

func TestParsePublicationDate(t *testing.T) {
	date := func(y int, m time.Month, d int) *time.Time {
		v := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return &v
	}
	cases := []struct {
		in       string
		wantYear int
		wantDate *time.Time
	}{
		{"2023-01-15", 2023, date(2023, time.January, 15)},
		{"2023", 2023, date(2023, time.January, 1)},
		{"2021-07", 2021, date(2021, time.July, 1)},
		{"2019 Mar 5", 2019, date(2019, time.March, 5)},
		{"2020-Sept-04", 2020, date(2020, time.September, 4)},
		{"2020-september", 2020, date(2020, time.September, 1)},
		{"2023-13-40", 2023, date(2023, time.December, 31)},
		{"2023-00-00", 2023, date(2023, time.January, 1)},
		{"2023-02-31", 2023, nil},
		{"2023-Foo", 2023, nil},
		{"1750-01-01", models.MinPublicationYear, nil},
		{"not a date", 2024, nil},
		{"", 2024, nil},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			year, got := parsePublicationDate(tc.in, 2024)
			assert.Equal(t, tc.wantYear, year)
			if tc.wantDate == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tc.wantDate, *got)
		})
	}
}

func TestTransform_YearFloor(t *testing.T) {
	for _, in := range []string{"0001-01-01", "1799", "abcd", "12-12-12"} {
		pub, err := fixedTransformer().Transform(providers.RawRecord{PubMedID: "1", Title: "t", PublicationDate: in})
		require.NoError(t, err, in)
		assert.GreaterOrEqual(t, pub.PublicationYear, models.MinPublicationYear, in)
	}
}

func TestTransform_Keywords(t *testing.T) {
	pub, err := fixedTransformer().Transform(providers.RawRecord{
		PubMedID: "1",
		Title:    "t",
		Keywords: []string{"Gene", "gene ", "MED13", "", "Ａｂｃ"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"abc", "gene", "med13"}, pub.KeywordList())
}

func TestTransform_Relevance(t *testing.T) {
	score := func(v float64) *providers.RawRelevance { return &providers.RawRelevance{Score: &v} }
	cases := []struct {
		name string
		in   *providers.RawRelevance
		want *int
	}{
		{"absent", nil, nil},
		{"no score", &providers.RawRelevance{}, nil},
		{"zero dropped", score(0), nil},
		{"negative dropped", score(-3), nil},
		{"in range", score(3), intPtr(3)},
		{"clamped high", score(9.7), intPtr(5)},
		{"clamped low", score(0.4), intPtr(1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pub, err := fixedTransformer().Transform(providers.RawRecord{PubMedID: "1", Title: "t", MED13Relevance: tc.in})
			require.NoError(t, err)
			assert.Equal(t, tc.want, pub.RelevanceScore)
		})
	}
}

func TestMapPublicationType(t *testing.T) {
	assert.Equal(t, models.PublicationTypeJournalArticle, mapPublicationType(nil))
	assert.Equal(t, models.PublicationTypeJournalArticle, mapPublicationType([]string{"Research Support, N.I.H."}))
	assert.Equal(t, models.PublicationTypeEditorial, mapPublicationType([]string{"Unknown", "Editorial", "Review"}))
	assert.Equal(t, models.PublicationTypeMetaAnalysis, mapPublicationType([]string{"Meta-Analysis"}))
	assert.Equal(t, models.PublicationTypeRandomizedTrial, mapPublicationType([]string{"Randomized Controlled Trial"}))
}

func intPtr(v int) *int { return &v }
