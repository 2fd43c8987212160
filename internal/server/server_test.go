package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciciliostudio/loginpilot/internal/engine"
	"github.com/ciciliostudio/loginpilot/internal/executor"
	"github.com/ciciliostudio/loginpilot/internal/rules"
	"github.com/ciciliostudio/loginpilot/internal/session"
	"github.com/ciciliostudio/loginpilot/internal/twofa"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	store := rules.NewStore(filepath.Join(dir, "rules.json"), nil)
	history := session.NewHistory(filepath.Join(dir, "history.json"), 500, nil)
	tracker := session.NewTracker(history, nil)
	learner := engine.NewLearner(store, nil)
	return New(Options{
		Tracker: tracker,
		Learner: learner,
		Store:   store,
		History: history,
	})
}

func TestDispatchStartAttempt(t *testing.T) {
	srv := newTestServer(t)

	ack := srv.dispatch(&executor.Message{
		Type:     executor.MessageStartAttempt,
		Domain:   "example.com",
		LoginURL: "https://example.com/login",
	})
	assert.True(t, ack.OK)
	assert.NotEmpty(t, ack.AttemptID)
}

func TestDispatchStartAttemptRequiresDomain(t *testing.T) {
	srv := newTestServer(t)

	ack := srv.dispatch(&executor.Message{Type: executor.MessageStartAttempt})
	assert.False(t, ack.OK)
	assert.Contains(t, ack.Error, "domain")
}

func TestDispatchLogStepWithoutAttempt(t *testing.T) {
	srv := newTestServer(t)

	ack := srv.dispatch(&executor.Message{
		Type:   executor.MessageLogStep,
		Action: "fill_credentials",
		Result: "success",
	})
	assert.False(t, ack.OK)
	assert.Equal(t, "no attempt in progress", ack.Error)
}

func TestDispatchCompleteWithoutAttempt(t *testing.T) {
	srv := newTestServer(t)

	ack := srv.dispatch(&executor.Message{
		Type:    executor.MessageCompleteAttempt,
		Outcome: "success",
	})
	assert.False(t, ack.OK)
	assert.Equal(t, "no attempt in progress", ack.Error)
}

func TestDispatchUnknownType(t *testing.T) {
	srv := newTestServer(t)

	ack := srv.dispatch(&executor.Message{Type: "reboot"})
	assert.False(t, ack.OK)
	assert.Contains(t, ack.Error, "unknown message type")
}

func TestDispatchFullAttemptLearnsRule(t *testing.T) {
	srv := newTestServer(t)

	start := srv.dispatch(&executor.Message{
		Type:     executor.MessageStartAttempt,
		Domain:   "brand-new.example",
		LoginURL: "https://brand-new.example/login",
	})
	require.True(t, start.OK)

	require.True(t, srv.dispatch(&executor.Message{
		Type:   executor.MessageLogStep,
		Action: "fill_credentials",
		Result: "success",
		Params: map[string]interface{}{"username": "a", "password": "b"},
	}).OK)
	require.True(t, srv.dispatch(&executor.Message{
		Type:   executor.MessageLogStep,
		Action: "click_button",
		Result: "success",
		Params: map[string]interface{}{"buttonText": "Sign in"},
	}).OK)

	done := srv.dispatch(&executor.Message{
		Type:    executor.MessageCompleteAttempt,
		Outcome: "success",
	})
	assert.True(t, done.OK)
	assert.Equal(t, start.AttemptID, done.AttemptID)

	rule, ok := srv.store.RuleForDomain("brand-new.example")
	require.True(t, ok)
	assert.Equal(t, rules.ProvenanceLocal, rule.Provenance)
	assert.Equal(t, 1, rule.SuccessCount)
}

func TestAPIRuleForDomain(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router(nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/rules/github.com")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var rule rules.Rule
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rule))
	assert.Equal(t, "github.com", rule.Domain)
	assert.Equal(t, rules.ProvenanceBundled, rule.Provenance)
}

func TestAPIRuleForDomainNotFound(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router(nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/rules/never-seen.example")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "rule not found", body["error"])
}

func TestAPIStatsAndHistory(t *testing.T) {
	srv := newTestServer(t)

	srv.dispatch(&executor.Message{Type: executor.MessageStartAttempt, Domain: "a.com"})
	srv.dispatch(&executor.Message{Type: executor.MessageCompleteAttempt, Outcome: "failed", ErrorMessage: "boom"})

	ts := httptest.NewServer(srv.Router(nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	var report map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.EqualValues(t, 1, report["total_attempts"])

	resp, err = http.Get(ts.URL + "/api/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	var history struct {
		Attempts []session.Attempt `json:"attempts"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	require.Len(t, history.Attempts, 1)
	assert.Equal(t, session.OutcomeFailed, history.Attempts[0].Outcome)
}

func TestExecutorWebsocketRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router(nil))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/executor"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(executor.Message{
		Type:   executor.MessageStartAttempt,
		Domain: "ws.example",
	}))
	var ack executor.Ack
	require.NoError(t, conn.ReadJSON(&ack))
	assert.True(t, ack.OK)
	assert.NotEmpty(t, ack.AttemptID)

	require.NoError(t, conn.WriteJSON(executor.Message{
		Type:    executor.MessageCompleteAttempt,
		Outcome: "abandoned",
	}))
	require.NoError(t, conn.ReadJSON(&ack))
	assert.True(t, ack.OK)
}

func TestExecutorWebsocketOriginFiltering(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router([]string{"chrome-extension://*"}))
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/executor"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL,
		http.Header{"Origin": {"chrome-extension://abcdefgh"}})
	require.NoError(t, err)
	conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL,
		http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
}

func TestOriginMatches(t *testing.T) {
	assert.True(t, originMatches("*", "https://anything.example"))
	assert.True(t, originMatches("chrome-extension://*", "chrome-extension://abcdefgh"))
	assert.True(t, originMatches("https://app.example", "https://app.example"))
	assert.False(t, originMatches("chrome-extension://*", "https://evil.example"))
	assert.False(t, originMatches("https://app.example", "https://app.example.evil"))
}

type stubCodeReader struct {
	code *twofa.Code
	err  error
}

func (s *stubCodeReader) Source() session.TwoFactorSource { return session.TwoFactorEmail }

func (s *stubCodeReader) WaitForCode(ctx context.Context, timeout time.Duration) (*twofa.Code, error) {
	return s.code, s.err
}

func TestDispatchGetCodeUsesConfiguredReader(t *testing.T) {
	srv := newTestServer(t)
	srv.codes = &stubCodeReader{code: &twofa.Code{Value: "482913", Sender: "no-reply@acme.com"}}

	ack := srv.dispatch(&executor.Message{Type: executor.MessageGetCode, TimeoutSeconds: 1})
	assert.True(t, ack.OK)
	assert.Equal(t, "482913", ack.Code)
	assert.Equal(t, "no-reply@acme.com", ack.Sender)
}

func TestDispatchGetCodeWithoutReader(t *testing.T) {
	srv := newTestServer(t)

	ack := srv.dispatch(&executor.Message{Type: executor.MessageGetCode})
	assert.False(t, ack.OK)
	assert.Contains(t, ack.Error, "no email code reader")
}

func TestCommunityImportsShareTheReportLock(t *testing.T) {
	srv := newTestServer(t)

	path := filepath.Join(t.TempDir(), "community.json")
	doc := `{"version":"1.0","domains":{"shared.example":{"confidence":0.9,"steps":[{"action":"fill_credentials"}]}}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			srv.dispatch(&executor.Message{Type: executor.MessageStartAttempt, Domain: "race.example"})
			srv.dispatch(&executor.Message{Type: executor.MessageCompleteAttempt, Outcome: "failed", ErrorMessage: "boom"})
		}()
		go func() {
			defer wg.Done()
			_, err := srv.ImportCommunity(path)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	shared, ok := srv.store.RuleForDomain("shared.example")
	require.True(t, ok)
	assert.Equal(t, rules.ProvenanceCommunity, shared.Provenance)

	raced, ok := srv.store.RuleForDomain("race.example")
	require.True(t, ok)
	assert.Equal(t, rules.ProvenanceLocal, raced.Provenance)
}
