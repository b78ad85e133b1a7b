package filter

import (
	"fmt"
	"strings"

	"jobscout/pipeline-service/internal/model"
)

func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func containsFold(list []string, v string) bool {
	lv := lower(v)
	for _, s := range list {
		if lower(s) == lv {
			return true
		}
	}
	return false
}

// HardReject evaluates the non-negotiable exclusion rules. The first
// matching rule short-circuits and names the reason; the boolean outcome
// is independent of rule order because the rules are mutually
// non-interfering predicates over the same candidate.
func HardReject(c *model.JobCandidate, cfg *Config, ranks RankTable) (bool, string) {
	if c.JobType != "" && containsFold(cfg.ExcludedJobTypes, c.JobType) {
		return true, fmt.Sprintf("excluded job type %q", c.JobType)
	}

	if c.Seniority != "" && containsFold(cfg.ExcludedSeniority, c.Seniority) {
		return true, fmt.Sprintf("excluded seniority %q", c.Seniority)
	}

	if c.Company != "" && containsFold(cfg.ExcludedCompanies, c.Company) {
		return true, fmt.Sprintf("excluded company %q", c.Company)
	}

	// Keyword scan covers title + company + description, case-insensitive,
	// in the manner of a stop-list: any single hit discards the candidate.
	if kw := matchKeyword(c, cfg.ExcludedKeywords); kw != "" {
		return true, fmt.Sprintf("excluded keyword %q present", kw)
	}

	if cfg.MinSalaryFloor > 0 && c.SalaryPresent() && c.Salary() < cfg.MinSalaryFloor {
		return true, fmt.Sprintf("salary %.0f below floor %.0f", c.Salary(), cfg.MinSalaryFloor)
	}

	if c.CommissionOnly && !cfg.AllowCommissionOnly {
		return true, "commission-only compensation not allowed"
	}

	switch lower(c.RemotePolicy) {
	case "onsite":
		if !cfg.AllowOnsite {
			return true, "onsite-only posting not allowed"
		}
	case "hybrid":
		// Hybrid is only viable when co-located with the configured city.
		if cfg.HybridCity == "" || lower(c.City) != lower(cfg.HybridCity) {
			return true, fmt.Sprintf("hybrid posting in %q, not co-located with %q", c.City, cfg.HybridCity)
		}
	}

	// A fail-ranked technology is a hard rejection, never a strike: it is
	// checked here so the scoring engine never sees such a candidate.
	for _, tech := range c.Technologies {
		if entry, ok := ranks.Lookup(tech); ok && entry.Rank == RankFail {
			return true, fmt.Sprintf("technology %q is fail-ranked", tech)
		}
	}

	return false, ""
}

func matchKeyword(c *model.JobCandidate, keywords []string) string {
	if len(keywords) == 0 {
		return ""
	}
	combined := strings.ToLower(c.Title + " " + c.Company + " " + c.Description)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(combined, strings.ToLower(kw)) {
			return kw
		}
	}
	return ""
}
