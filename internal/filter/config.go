// Package filter implements job candidate admission: a hard-rejection
// rule set evaluated first, then a strike accumulator scored against a
// configurable threshold. Both operate on immutable configuration
// snapshots, so every evaluation is a pure function of its inputs.
package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"jobscout/pipeline-service/internal/store"
)

// Document keys in the config_documents table.
const (
	DocJobFilters      = "job-filters"
	DocTechnologyRanks = "technology-ranks"
)

// ConfigurationError marks a malformed filter configuration. It must
// fail the whole evaluation batch fast rather than let candidates be
// silently admitted or rejected against garbage rules.
type ConfigurationError struct {
	Doc string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s configuration: %v", e.Doc, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// PointRule pairs a numeric threshold with the points charged when a
// candidate falls on the wrong side of it.
type PointRule struct {
	Threshold float64 `json:"threshold"`
	Points    int     `json:"points"`
}

// ExperienceRule charges points when the posting asks for less
// experience than the configured preference.
type ExperienceRule struct {
	MinPreferred int `json:"minPreferred"`
	Points       int `json:"points"`
}

// TechStrikeRule holds the technology strike parameters.
type TechStrikeRule struct {
	PerBadTech         int `json:"perBadTech"`
	MissingAllRequired int `json:"missingAllRequired"`
}

// QualityRule holds the description quality strike parameters.
type QualityRule struct {
	MinDescriptionLength   int      `json:"minDescriptionLength"`
	ShortDescriptionPoints int      `json:"shortDescriptionPoints"`
	Buzzwords              []string `json:"buzzwords"`
	BuzzwordPoints         int      `json:"buzzwordPoints"`
}

// Config is the job-filters document: hard rejection rules plus strike
// parameters. Treated as an immutable snapshot per evaluation batch.
type Config struct {
	ExcludedJobTypes    []string `json:"excludedJobTypes"`
	ExcludedSeniority   []string `json:"excludedSeniority"`
	ExcludedCompanies   []string `json:"excludedCompanies"`
	ExcludedKeywords    []string `json:"excludedKeywords"`
	MinSalaryFloor      float64  `json:"minSalaryFloor"`
	AllowCommissionOnly bool     `json:"allowCommissionOnly"`
	AllowOnsite         bool     `json:"allowOnsite"`
	HybridCity          string   `json:"hybridCity"`

	StrikeThreshold  int            `json:"strikeThreshold"`
	SalaryStrike     PointRule      `json:"salaryStrike"`
	ExperienceStrike ExperienceRule `json:"experienceStrike"`
	SeniorityStrikes map[string]int `json:"seniorityStrikes"`
	Strikes          TechStrikeRule `json:"strikes"`
	QualityStrikes   QualityRule    `json:"qualityStrikes"`

	LastUpdated time.Time `json:"lastUpdated"`
}

// Rank classifies a technology for scoring purposes.
type Rank string

const (
	RankRequired Rank = "required"
	RankOK       Rank = "ok"
	RankStrike   Rank = "strike"
	RankFail     Rank = "fail"
)

// TechRank is one technology-ranks entry. Points override the global
// perBadTech charge for strike-ranked technologies when non-zero.
type TechRank struct {
	Rank   Rank `json:"rank"`
	Points int  `json:"points"`
}

// RankTable maps lower-cased technology names to their rank entries.
type RankTable map[string]TechRank

// Lookup returns the entry for a technology, matched case-insensitively.
func (t RankTable) Lookup(tech string) (TechRank, bool) {
	r, ok := t[lower(tech)]
	return r, ok
}

// ParseConfig parses and validates a job-filters document.
func ParseConfig(raw json.RawMessage) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, &ConfigurationError{Doc: DocJobFilters, Err: err}
	}
	if cfg.StrikeThreshold <= 0 {
		return nil, &ConfigurationError{Doc: DocJobFilters,
			Err: fmt.Errorf("strikeThreshold must be positive, got %d", cfg.StrikeThreshold)}
	}
	for name, pts := range map[string]int{
		"salaryStrike.points":                   cfg.SalaryStrike.Points,
		"experienceStrike.points":               cfg.ExperienceStrike.Points,
		"strikes.perBadTech":                    cfg.Strikes.PerBadTech,
		"strikes.missingAllRequired":            cfg.Strikes.MissingAllRequired,
		"qualityStrikes.shortDescriptionPoints": cfg.QualityStrikes.ShortDescriptionPoints,
		"qualityStrikes.buzzwordPoints":         cfg.QualityStrikes.BuzzwordPoints,
	} {
		if pts < 0 {
			return nil, &ConfigurationError{Doc: DocJobFilters,
				Err: fmt.Errorf("%s must not be negative, got %d", name, pts)}
		}
	}
	for label, pts := range cfg.SeniorityStrikes {
		if pts < 0 {
			return nil, &ConfigurationError{Doc: DocJobFilters,
				Err: fmt.Errorf("seniorityStrikes[%q] must not be negative, got %d", label, pts)}
		}
	}
	return &cfg, nil
}

// rankTableDoc mirrors the technology-ranks document shape.
type rankTableDoc struct {
	Technologies map[string]TechRank `json:"technologies"`
	LastUpdated  time.Time           `json:"lastUpdated"`
}

// ParseRankTable parses and validates a technology-ranks document. Keys
// are lower-cased so candidate technology mentions match regardless of
// casing.
func ParseRankTable(raw json.RawMessage) (RankTable, error) {
	var doc rankTableDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &ConfigurationError{Doc: DocTechnologyRanks, Err: err}
	}
	table := make(RankTable, len(doc.Technologies))
	for tech, entry := range doc.Technologies {
		switch entry.Rank {
		case RankRequired, RankOK, RankStrike, RankFail:
		default:
			return nil, &ConfigurationError{Doc: DocTechnologyRanks,
				Err: fmt.Errorf("technology %q has unknown rank %q", tech, entry.Rank)}
		}
		if entry.Points < 0 {
			return nil, &ConfigurationError{Doc: DocTechnologyRanks,
				Err: fmt.Errorf("technology %q has negative points", tech)}
		}
		table[lower(tech)] = entry
	}
	return table, nil
}

// Load fetches and parses both configuration documents from the store.
// Missing or malformed documents surface as ConfigurationError.
func Load(ctx context.Context, st store.Store) (*Config, RankTable, error) {
	rawCfg, updated, err := st.ConfigDocument(ctx, DocJobFilters)
	if err != nil {
		return nil, nil, &ConfigurationError{Doc: DocJobFilters, Err: err}
	}
	cfg, err := ParseConfig(rawCfg)
	if err != nil {
		return nil, nil, err
	}
	cfg.LastUpdated = updated

	rawRanks, _, err := st.ConfigDocument(ctx, DocTechnologyRanks)
	if err != nil {
		return nil, nil, &ConfigurationError{Doc: DocTechnologyRanks, Err: err}
	}
	ranks, err := ParseRankTable(rawRanks)
	if err != nil {
		return nil, nil, err
	}
	return cfg, ranks, nil
}
