package stats

import (
	"encoding/json"
	"io"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ciciliostudio/loginpilot/internal/rules"
	"github.com/ciciliostudio/loginpilot/internal/session"
)

// DomainStats aggregates attempt outcomes for one domain.
type DomainStats struct {
	Domain      string  `json:"domain"`
	Attempts    int     `json:"attempts"`
	Successes   int     `json:"successes"`
	Failures    int     `json:"failures"`
	SuccessRate float64 `json:"success_rate"`
	LastAttempt time.Time `json:"last_attempt"`
}

// Report is the aggregate view the dashboard and the stats command consume.
type Report struct {
	GeneratedAt     time.Time              `json:"generated_at"`
	TotalAttempts   int                    `json:"total_attempts"`
	TotalSuccesses  int                    `json:"total_successes"`
	TotalFailures   int                    `json:"total_failures"`
	OverallRate     float64                `json:"overall_success_rate"`
	ByOutcome       map[string]int         `json:"by_outcome"`
	ByFlowType      map[string]int         `json:"by_flow_type"`
	ByTwoFactor     map[string]int         `json:"by_two_factor_source"`
	Domains         []DomainStats          `json:"domains"`
	ArchivedCount   int                    `json:"archived_count,omitempty"`
}

// Aggregate builds a report from the retained attempt history. Attempts
// evicted to the archive are accounted for via archivedCount.
func Aggregate(attempts []session.Attempt, archivedCount int) *Report {
	report := &Report{
		GeneratedAt:   time.Now(),
		ByOutcome:     map[string]int{},
		ByFlowType:    map[string]int{},
		ByTwoFactor:   map[string]int{},
		ArchivedCount: archivedCount,
	}

	perDomain := map[string]*DomainStats{}
	for _, attempt := range attempts {
		report.TotalAttempts++
		report.ByOutcome[string(attempt.Outcome)]++
		if attempt.FlowType != "" {
			report.ByFlowType[string(attempt.FlowType)]++
		}
		if attempt.TwoFactorSource != "" {
			report.ByTwoFactor[string(attempt.TwoFactorSource)]++
		}

		ds, ok := perDomain[attempt.Domain]
		if !ok {
			ds = &DomainStats{Domain: attempt.Domain}
			perDomain[attempt.Domain] = ds
		}
		ds.Attempts++
		if attempt.CompletedAt != nil && attempt.CompletedAt.After(ds.LastAttempt) {
			ds.LastAttempt = *attempt.CompletedAt
		}
		switch attempt.Outcome {
		case session.OutcomeSuccess, session.OutcomeAlreadyLoggedIn:
			ds.Successes++
			report.TotalSuccesses++
		case session.OutcomeFailed:
			ds.Failures++
			report.TotalFailures++
		}
	}

	for _, ds := range perDomain {
		if counted := ds.Successes + ds.Failures; counted > 0 {
			ds.SuccessRate = float64(ds.Successes) / float64(counted)
		}
		report.Domains = append(report.Domains, *ds)
	}
	sort.Slice(report.Domains, func(i, j int) bool {
		return report.Domains[i].Domain < report.Domains[j].Domain
	})

	if counted := report.TotalSuccesses + report.TotalFailures; counted > 0 {
		report.OverallRate = float64(report.TotalSuccesses) / float64(counted)
	}
	return report
}

// ContributionEntry summarizes one rule eligible for sharing. Learning
// notes and counters stay home; only the recipe itself is exported.
type ContributionEntry struct {
	Domain          string                  `json:"domain"`
	LoginURL        string                  `json:"login_url,omitempty"`
	Steps           []rules.StepRule        `json:"steps"`
	FlowType        session.FlowType        `json:"flow_type,omitempty"`
	TwoFactorSource session.TwoFactorSource `json:"two_factor_source,omitempty"`
	Confidence      float64                 `json:"confidence"`
	SuccessCount    int                     `json:"success_count"`
}

// ContributionReport renders contributable rules in the shape community
// imports expect.
func ContributionReport(contributable []*rules.Rule) []ContributionEntry {
	entries := make([]ContributionEntry, 0, len(contributable))
	for _, rule := range contributable {
		entries = append(entries, ContributionEntry{
			Domain:          rule.Domain,
			LoginURL:        rule.LoginURL,
			Steps:           rule.Steps,
			FlowType:        rule.FlowType,
			TwoFactorSource: rule.TwoFactorSource,
			Confidence:      rule.Confidence,
			SuccessCount:    rule.SuccessCount,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Domain < entries[j].Domain
	})
	return entries
}

// ExportJSON writes the report for the dashboard.
func ExportJSON(w io.Writer, report *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return eris.Wrap(err, "stats: encode report")
	}
	return nil
}
