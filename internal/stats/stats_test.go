package stats

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciciliostudio/loginpilot/internal/rules"
	"github.com/ciciliostudio/loginpilot/internal/session"
)

func attempt(domain string, outcome session.Outcome) session.Attempt {
	now := time.Now()
	return session.Attempt{
		Domain:          domain,
		Outcome:         outcome,
		StartedAt:       now.Add(-time.Second),
		CompletedAt:     &now,
		FlowType:        session.FlowSinglePage,
		TwoFactorSource: session.TwoFactorNone,
	}
}

func TestAggregate(t *testing.T) {
	attempts := []session.Attempt{
		attempt("a.com", session.OutcomeSuccess),
		attempt("a.com", session.OutcomeSuccess),
		attempt("a.com", session.OutcomeFailed),
		attempt("b.com", session.OutcomeFailed),
		attempt("b.com", session.OutcomeAbandoned),
		attempt("c.com", session.OutcomeAlreadyLoggedIn),
	}

	report := Aggregate(attempts, 7)

	assert.Equal(t, 6, report.TotalAttempts)
	assert.Equal(t, 3, report.TotalSuccesses, "already_logged_in counts as success")
	assert.Equal(t, 2, report.TotalFailures)
	assert.Equal(t, 7, report.ArchivedCount)
	assert.InDelta(t, 0.6, report.OverallRate, 1e-9)
	assert.Equal(t, 1, report.ByOutcome["abandoned"])

	require.Len(t, report.Domains, 3)
	a := report.Domains[0]
	assert.Equal(t, "a.com", a.Domain)
	assert.Equal(t, 3, a.Attempts)
	assert.InDelta(t, 2.0/3.0, a.SuccessRate, 1e-9)

	b := report.Domains[1]
	assert.Equal(t, "b.com", b.Domain)
	assert.Zero(t, b.SuccessRate)
}

func TestAggregateEmpty(t *testing.T) {
	report := Aggregate(nil, 0)
	assert.Zero(t, report.TotalAttempts)
	assert.Zero(t, report.OverallRate)
	assert.Empty(t, report.Domains)
}

func TestContributionReport(t *testing.T) {
	contributable := []*rules.Rule{
		{
			Domain:       "b.com",
			Confidence:   0.9,
			SuccessCount: 4,
			Steps:        []rules.StepRule{{Action: rules.StepFillCredentials}},
			LearningNotes: []rules.LearningNote{
				{Kind: rules.NoteSuccess, Message: "private"},
			},
		},
		{Domain: "a.com", Confidence: 1.0, SuccessCount: 3},
	}

	entries := ContributionReport(contributable)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.com", entries[0].Domain, "sorted by domain")
	assert.Equal(t, "b.com", entries[1].Domain)

	// Learning notes stay home.
	data, err := json.Marshal(entries)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "private")
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportJSON(&buf, Aggregate(nil, 0)))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Contains(t, decoded, "total_attempts")
}
