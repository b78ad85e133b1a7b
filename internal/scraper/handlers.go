package scraper

import (
	"context"
	"encoding/json"
	"fmt"

	"jobscout/pipeline-service/internal/model"
	"jobscout/pipeline-service/internal/pipeline"
)

// ScrapeConfig is the payload of scrape items.
type ScrapeConfig struct {
	Query    string `json:"query"`
	Location string `json:"location"`
}

// DiscoveryConfig is the payload of source_discovery items.
type DiscoveryConfig struct {
	CandidateURL string `json:"candidateUrl"`
	Query        string `json:"query,omitempty"`
	Location     string `json:"location,omitempty"`
}

// CompanyPayload is the payload of company items. Query and Location
// carry the originating search terms down the company → discovery →
// scrape chain; Query falls back to the company name when unset.
type CompanyPayload struct {
	CompanyName string `json:"companyName"`
	WebsiteURL  string `json:"websiteUrl,omitempty"`
	BoardURL    string `json:"boardUrl,omitempty"`
	Query       string `json:"query,omitempty"`
	Location    string `json:"location,omitempty"`
}

// ScrapeHandler fetches postings for the item's search terms and spawns
// one job item per posting. Lineage checks downstream suppress postings
// already seen in the same lineage, so the handler spawns unconditionally.
func ScrapeHandler(fetcher *BoardFetcher) pipeline.Handler {
	return func(ctx context.Context, item *model.QueueItem) model.HandlerResult {
		var cfg ScrapeConfig
		if err := json.Unmarshal(item.Payload, &cfg); err != nil {
			return model.Failure(fmt.Errorf("invalid scrape_config payload: %w", err))
		}
		if cfg.Query == "" {
			return model.Failure(fmt.Errorf("scrape_config missing query"))
		}

		postings, err := fetcher.Fetch(ctx, cfg.Query, cfg.Location)
		if err != nil {
			return model.Failure(fmt.Errorf("fetch postings: %w", err))
		}

		spawns := make([]model.SpawnRequest, 0, len(postings))
		for _, p := range postings {
			if p.SourceURL == "" {
				p.SourceURL = fmt.Sprintf("board:%s", p.ExternalID)
			}
			raw, err := json.Marshal(p)
			if err != nil {
				continue
			}
			spawns = append(spawns, model.SpawnRequest{
				URL:         p.SourceURL,
				Type:        model.TypeJob,
				CompanyName: p.Company,
				Payload:     raw,
			})
		}

		summary, _ := json.Marshal(map[string]int{"fetched": len(postings)})
		return model.SpawnAndContinue(summary, spawns...)
	}
}

// JobHandler parses a spawned job item's raw posting payload into the
// scoring candidate. When the posting names a company the lineage does
// not know a board for yet, it also spawns a company item.
func JobHandler() pipeline.Handler {
	return func(_ context.Context, item *model.QueueItem) model.HandlerResult {
		var p Posting
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return model.Failure(fmt.Errorf("invalid posting payload: %w", err))
		}
		if p.Title == "" {
			return model.Failure(fmt.Errorf("posting has no title"))
		}

		cand := &model.JobCandidate{
			Title:           p.Title,
			Company:         p.Company,
			Location:        p.Location,
			City:            p.City,
			Description:     p.Description,
			JobType:         p.JobType,
			Seniority:       p.Seniority,
			RemotePolicy:    p.RemotePolicy,
			CommissionOnly:  p.CommissionOnly,
			SalaryMin:       p.SalaryMin,
			SalaryMax:       p.SalaryMax,
			ExperienceYears: p.ExperienceYears,
			Technologies:    p.Technologies,
			SourceURL:       p.SourceURL,
		}

		res := model.Success(nil)
		res.Candidate = cand

		// Unknown company → spawn a company item so its details and board
		// can be resolved. The lineage guard deduplicates across the
		// lineage, so repeated postings from one company spawn it once.
		if p.Company != "" && item.CompanyID == "" {
			payload, _ := json.Marshal(CompanyPayload{CompanyName: p.Company})
			res.Kind = model.ResultSpawn
			res.Spawns = []model.SpawnRequest{{
				URL:         fmt.Sprintf("company:%s", p.Company),
				Type:        model.TypeCompany,
				CompanyName: p.Company,
				Payload:     payload,
			}}
		}
		return res
	}
}

// CompanyHandler resolves a company's job board. When the payload names
// a website but no board URL, it spawns a source-discovery item to probe
// for one.
func CompanyHandler() pipeline.Handler {
	return func(_ context.Context, item *model.QueueItem) model.HandlerResult {
		var p CompanyPayload
		if len(item.Payload) > 0 {
			if err := json.Unmarshal(item.Payload, &p); err != nil {
				return model.Failure(fmt.Errorf("invalid company payload: %w", err))
			}
		}
		if p.CompanyName == "" {
			p.CompanyName = item.CompanyName
		}
		if p.CompanyName == "" {
			return model.Failure(fmt.Errorf("company item has no company name"))
		}

		if p.BoardURL != "" || p.WebsiteURL == "" {
			// Board already known, or nothing to probe against.
			return model.Success(nil)
		}

		query := p.Query
		if query == "" {
			query = p.CompanyName
		}
		candidateURL := p.WebsiteURL + "/careers"
		payload, _ := json.Marshal(DiscoveryConfig{
			CandidateURL: candidateURL,
			Query:        query,
			Location:     p.Location,
		})
		return model.SpawnAndContinue(nil, model.SpawnRequest{
			URL:         candidateURL,
			Type:        model.TypeSourceDiscovery,
			CompanyName: p.CompanyName,
			Payload:     payload,
		})
	}
}

// SourceDiscoveryHandler probes a candidate board URL and spawns a
// scrape item when the probe succeeds.
func SourceDiscoveryHandler(fetcher *BoardFetcher) pipeline.Handler {
	return func(ctx context.Context, item *model.QueueItem) model.HandlerResult {
		var cfg DiscoveryConfig
		if err := json.Unmarshal(item.Payload, &cfg); err != nil {
			return model.Failure(fmt.Errorf("invalid source_discovery_config payload: %w", err))
		}
		if cfg.CandidateURL == "" {
			return model.Failure(fmt.Errorf("source_discovery_config missing candidateUrl"))
		}

		ok, err := fetcher.Probe(ctx, cfg.CandidateURL)
		if err != nil {
			return model.Failure(fmt.Errorf("probe %s: %w", cfg.CandidateURL, err))
		}
		if !ok {
			result, _ := json.Marshal(map[string]string{"probe": "no source found"})
			return model.Success(result)
		}

		payload, _ := json.Marshal(ScrapeConfig{Query: cfg.Query, Location: cfg.Location})
		// The scrape item gets its own lineage key: reusing the probe URL
		// would trip the guard's circularity check against this very item.
		return model.SpawnAndContinue(nil, model.SpawnRequest{
			URL:     fmt.Sprintf("scrape:%s", cfg.CandidateURL),
			Type:    model.TypeScrape,
			Payload: payload,
		})
	}
}

// RegisterAll binds the built-in handlers for every item type.
func RegisterAll(reg *pipeline.Registry, fetcher *BoardFetcher) {
	reg.Register(model.TypeScrape, ScrapeHandler(fetcher))
	reg.Register(model.TypeJob, JobHandler())
	reg.Register(model.TypeCompany, CompanyHandler())
	reg.Register(model.TypeSourceDiscovery, SourceDiscoveryHandler(fetcher))
}
