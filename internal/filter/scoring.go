package filter

import (
	"fmt"
	"strings"

	"jobscout/pipeline-service/internal/model"
)

// Score accumulates strike points from independent signals and decides
// admission against the configured threshold. It is a pure function of
// its inputs: identical candidate, config and rank table always yield an
// identical result. Callers must run HardReject first — fail-ranked
// technologies are a hard rejection, not a strike.
//
// Every contributing signal is retained in the result, not only the
// total, so a rejection can be explained after the fact.
func Score(c *model.JobCandidate, cfg *Config, ranks RankTable) model.StrikeResult {
	var res model.StrikeResult

	add := func(signal string, points int, rationale string) {
		if points <= 0 {
			return
		}
		res.Strikes = append(res.Strikes, model.Strike{
			Signal:    signal,
			Points:    points,
			Rationale: rationale,
		})
		res.TotalPoints += points
	}

	// Salary: only charged when compensation is stated and falls short.
	if cfg.SalaryStrike.Threshold > 0 && c.SalaryPresent() && c.Salary() < cfg.SalaryStrike.Threshold {
		add("salary", cfg.SalaryStrike.Points,
			fmt.Sprintf("salary %.0f below %.0f", c.Salary(), cfg.SalaryStrike.Threshold))
	}

	// Experience: postings asking for less than the preferred minimum.
	if cfg.ExperienceStrike.MinPreferred > 0 && c.ExperienceYears < cfg.ExperienceStrike.MinPreferred {
		add("experience", cfg.ExperienceStrike.Points,
			fmt.Sprintf("%d years required, below preferred %d",
				c.ExperienceYears, cfg.ExperienceStrike.MinPreferred))
	}

	// Seniority: configured label lookup, zero points when absent.
	if pts, ok := cfg.SeniorityStrikes[lower(c.Seniority)]; ok {
		add("seniority", pts, fmt.Sprintf("seniority %q", c.Seniority))
	}

	// Technologies: each strike-ranked mention charges points; the
	// missing-all-required strike is charged at most once.
	anyRequired := false
	for _, tech := range c.Technologies {
		entry, ok := ranks.Lookup(tech)
		if !ok {
			continue
		}
		switch entry.Rank {
		case RankRequired:
			anyRequired = true
		case RankStrike:
			pts := entry.Points
			if pts == 0 {
				pts = cfg.Strikes.PerBadTech
			}
			add("technology", pts, fmt.Sprintf("strike-ranked technology %q", tech))
		}
	}
	if !anyRequired {
		add("technology", cfg.Strikes.MissingAllRequired, "no required technology mentioned")
	}

	// Quality: short descriptions and buzzword boilerplate. The buzzword
	// strike is charged once, not per occurrence.
	if cfg.QualityStrikes.MinDescriptionLength > 0 &&
		len(c.Description) < cfg.QualityStrikes.MinDescriptionLength {
		add("quality", cfg.QualityStrikes.ShortDescriptionPoints,
			fmt.Sprintf("description length %d below %d",
				len(c.Description), cfg.QualityStrikes.MinDescriptionLength))
	}
	if bw := firstBuzzword(c.Description, cfg.QualityStrikes.Buzzwords); bw != "" {
		add("quality", cfg.QualityStrikes.BuzzwordPoints,
			fmt.Sprintf("buzzword %q present", bw))
	}

	res.Admitted = res.TotalPoints < cfg.StrikeThreshold
	return res
}

func firstBuzzword(description string, buzzwords []string) string {
	if len(buzzwords) == 0 {
		return ""
	}
	text := strings.ToLower(description)
	for _, bw := range buzzwords {
		if bw == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(bw)) {
			return bw
		}
	}
	return ""
}

// Summary renders a strike result as a one-line operator message.
func Summary(res model.StrikeResult, threshold int) string {
	if len(res.Strikes) == 0 {
		return fmt.Sprintf("0 strike points (threshold %d)", threshold)
	}
	parts := make([]string, 0, len(res.Strikes))
	for _, s := range res.Strikes {
		parts = append(parts, fmt.Sprintf("%s+%d", s.Signal, s.Points))
	}
	return fmt.Sprintf("%d strike points (threshold %d): %s",
		res.TotalPoints, threshold, strings.Join(parts, " "))
}
