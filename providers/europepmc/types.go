package europepmc

// SearchResponse ist die Top-Level-Struktur der Europe PMC API-Antwort.
type SearchResponse struct {
	HitCount       int    `json:"hitCount"`
	NextCursorMark string `json:"nextCursorMark"`
	ResultList     struct {
		Result []Article `json:"result"`
	} `json:"resultList"`
}

// Article repräsentiert einen einzelnen Artikel in der API-Antwort (resultType=core).
type Article struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	PMID         string `json:"pmid"`
	PMCID        string `json:"pmcid"`
	DOI          string `json:"doi"`
	Title        string `json:"title"`
	AuthorString string `json:"authorString"`
	AuthorList   struct {
		Author []Author `json:"author"`
	} `json:"authorList"`
	JournalInfo struct {
		Journal struct {
			Title string `json:"title"`
		} `json:"journal"`
	} `json:"journalInfo"`
	JournalTitle         string `json:"journalTitle"`
	FirstPublicationDate string `json:"firstPublicationDate"`
	PubYear              string `json:"pubYear"`
	AbstractText         string `json:"abstractText"`
	KeywordList          struct {
		Keyword []string `json:"keyword"`
	} `json:"keywordList"`
	PubTypeList struct {
		PubType []string `json:"pubType"`
	} `json:"pubTypeList"`
}

// Author ist ein strukturierter Autor; Kollektive haben nur CollectiveName.
type Author struct {
	LastName       string `json:"lastName"`
	FirstName      string `json:"firstName"`
	Initials       string `json:"initials"`
	CollectiveName string `json:"collectiveName"`
}
