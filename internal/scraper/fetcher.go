// Package scraper implements the board-API fetcher and the type-specific
// queue handlers built on it.
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	boardPageSize = 50
	boardMaxPages = 3 // max 150 results per query
	httpTimeout   = 15 * time.Second
)

// Posting is a normalised job offer returned by the board API. It is the
// raw payload of spawned job items; the job handler parses it into a
// scoring candidate.
type Posting struct {
	ExternalID      string   `json:"externalId"`
	Title           string   `json:"title"`
	Company         string   `json:"company"`
	Location        string   `json:"location"`
	City            string   `json:"city,omitempty"`
	Description     string   `json:"description"`
	JobType         string   `json:"jobType,omitempty"`
	Seniority       string   `json:"seniority,omitempty"`
	RemotePolicy    string   `json:"remotePolicy,omitempty"`
	CommissionOnly  bool     `json:"commissionOnly,omitempty"`
	SalaryMin       float64  `json:"salaryMin,omitempty"`
	SalaryMax       float64  `json:"salaryMax,omitempty"`
	ExperienceYears int      `json:"experienceYears,omitempty"`
	Technologies    []string `json:"technologies,omitempty"`
	SourceURL       string   `json:"sourceUrl"`
	PublishedAt     string   `json:"publishedAt,omitempty"`
}

// BoardFetcher fetches job offers from a board search API. If AppID or
// AppKey is empty, Fetch returns (nil, nil) gracefully — the scrape
// handler simply has nothing to spawn that round.
type BoardFetcher struct {
	BaseURL string
	AppID   string
	AppKey  string
	client  *http.Client
}

// NewBoardFetcher constructs a fetcher with a shared HTTP client.
func NewBoardFetcher(baseURL, appID, appKey string) *BoardFetcher {
	return &BoardFetcher{
		BaseURL: baseURL,
		AppID:   appID,
		AppKey:  appKey,
		client:  &http.Client{Timeout: httpTimeout},
	}
}

// boardResponse mirrors the top-level board API JSON response.
type boardResponse struct {
	Results []Posting `json:"results"`
	Count   int       `json:"count"`
}

// Fetch retrieves all available offers for a query and location,
// iterating through pages until no more results or boardMaxPages is
// reached. Returns nil without error when credentials are missing.
func (f *BoardFetcher) Fetch(ctx context.Context, query, location string) ([]Posting, error) {
	if f.AppID == "" || f.AppKey == "" {
		log.Println("[fetcher] Board API credentials not set — skipping fetch")
		return nil, nil
	}

	var results []Posting
	for page := 1; page <= boardMaxPages; page++ {
		batch, err := f.fetchPage(ctx, query, location, page)
		if err != nil {
			return results, fmt.Errorf("page %d: %w", page, err)
		}
		if len(batch) == 0 {
			break // No more results
		}
		results = append(results, batch...)
		if len(batch) < boardPageSize {
			break // Last page
		}
	}
	return results, nil
}

func (f *BoardFetcher) fetchPage(ctx context.Context, query, location string, page int) ([]Posting, error) {
	endpoint := fmt.Sprintf("%s/search/%d", f.BaseURL, page)

	params := url.Values{}
	params.Set("app_id", f.AppID)
	params.Set("app_key", f.AppKey)
	params.Set("results_per_page", strconv.Itoa(boardPageSize))
	params.Set("what", query)
	params.Set("where", location)
	params.Set("sort_by", "date")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("board API returned %d: %s", resp.StatusCode, string(body))
	}

	var apiResp boardResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}
	return apiResp.Results, nil
}

// Probe checks whether a candidate source URL answers with a successful
// status. Used by the source-discovery handler.
func (f *BoardFetcher) Probe(ctx context.Context, rawURL string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}
