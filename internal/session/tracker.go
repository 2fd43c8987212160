package session

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tracker records the in-progress login attempt and finalizes it into the
// history. Exactly one attempt is active at any time: starting a new one
// eagerly finalizes a stale in-progress attempt first.
type Tracker struct {
	history *History
	active  *Attempt
	logger  *zap.Logger
}

// NewTracker creates a tracker backed by the given history log.
func NewTracker(history *History, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{history: history, logger: logger}
}

// StartAttempt begins tracking a new login attempt and returns its id. Any
// attempt still in progress is finalized first: as success when it already
// logged at least one step (something probably completed without an explicit
// report), otherwise as abandoned.
func (t *Tracker) StartAttempt(domain, loginURL string) string {
	if t.active != nil {
		outcome := OutcomeAbandoned
		if len(t.active.Steps) > 0 {
			outcome = OutcomeSuccess
		}
		t.logger.Info("finalizing stale attempt before starting a new one",
			zap.String("domain", t.active.Domain),
			zap.String("outcome", string(outcome)))
		t.CompleteAttempt(outcome, "", "")
	}

	t.active = &Attempt{
		ID:        uuid.NewString(),
		Domain:    domain,
		LoginURL:  loginURL,
		StartedAt: time.Now(),
		Outcome:   OutcomeInProgress,
	}
	t.logger.Debug("attempt started",
		zap.String("id", t.active.ID),
		zap.String("domain", domain))
	return t.active.ID
}

// LogStep appends a step to the active attempt. Params are sanitized before
// they are stored. Returns false with a warning when no attempt is active.
func (t *Tracker) LogStep(action StepAction, result StepResult, params map[string]interface{}, details string) bool {
	if t.active == nil {
		t.logger.Warn("log step ignored: no attempt in progress",
			zap.String("action", string(action)))
		return false
	}
	t.active.Steps = append(t.active.Steps, Step{
		Action:    action,
		Params:    SanitizeParams(params),
		Result:    result,
		Details:   details,
		Timestamp: time.Now(),
	})
	return true
}

// CompleteAttempt seals the active attempt with the given outcome, derives
// its flow type and two-factor source, appends it to the history, and
// returns it for learning. Returns nil when no attempt was active.
func (t *Tracker) CompleteAttempt(outcome Outcome, finalState, errorMessage string) *Attempt {
	if t.active == nil {
		t.logger.Warn("complete attempt ignored: no attempt in progress")
		return nil
	}

	attempt := t.active
	t.active = nil

	now := time.Now()
	attempt.CompletedAt = &now
	attempt.Outcome = outcome
	attempt.FinalState = finalState
	attempt.ErrorMessage = errorMessage
	attempt.FlowType = deriveFlowType(attempt.Steps)
	attempt.TwoFactorSource, attempt.TwoFactorSender = deriveTwoFactor(attempt.Steps)

	t.history.Append(*attempt)
	t.logger.Info("attempt completed",
		zap.String("id", attempt.ID),
		zap.String("domain", attempt.Domain),
		zap.String("outcome", string(outcome)),
		zap.Int("steps", len(attempt.Steps)))
	return attempt
}

// Active returns the in-progress attempt, or nil.
func (t *Tracker) Active() *Attempt {
	return t.active
}
