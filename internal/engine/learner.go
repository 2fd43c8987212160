package engine

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ciciliostudio/loginpilot/internal/rules"
	"github.com/ciciliostudio/loginpilot/internal/session"
)

// Contribution thresholds: a local rule must have proven itself this often
// before it is stable enough to share.
const (
	contributeMinSuccesses  = 3
	contributeMinConfidence = 0.8
)

// promoteAtSuccesses is the success count at which a bundled rule becomes
// local. Promotion is one-way.
const promoteAtSuccesses = 2

// Learner mutates the rule store from completed attempt outcomes.
type Learner struct {
	store  *rules.Store
	logger *zap.Logger
}

// NewLearner creates a learner over the given store.
func NewLearner(store *rules.Store, logger *zap.Logger) *Learner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Learner{store: store, logger: logger}
}

// LearnFromAttempt updates the rule for the attempt's domain based on its
// outcome. Attempts still in progress or abandoned carry no signal and are
// ignored.
func (l *Learner) LearnFromAttempt(attempt *session.Attempt) {
	if attempt == nil {
		return
	}
	switch attempt.Outcome {
	case session.OutcomeSuccess:
		l.learnFromSuccess(attempt)
	case session.OutcomeFailed:
		l.learnFromFailure(attempt)
	case session.OutcomePending2FA:
		l.learnFromPending2FA(attempt)
	case session.OutcomeAlreadyLoggedIn:
		l.learnFromAlreadyLoggedIn(attempt)
	}
}

func (l *Learner) learnFromSuccess(attempt *session.Attempt) {
	rule, ok := l.store.RuleForDomain(attempt.Domain)
	if !ok {
		rule = l.seedRule(attempt, seedConfidenceSuccess)
		rule.SuccessCount = 1
		rule.AddNote(rules.NoteSuccess, "rule created from successful attempt")
		l.store.Put(rule)
		l.logger.Info("new rule learned from success",
			zap.String("domain", rule.Domain), zap.Int("steps", len(rule.Steps)))
		return
	}

	rule.SuccessCount++
	rule.ConsecutiveFailures = 0
	rule.RecomputeConfidence()
	rule.AddNote(rules.NoteSuccess,
		fmt.Sprintf("successful login (%d/%d)", rule.SuccessCount, rule.SuccessCount+rule.FailureCount))

	l.harvestButtonTexts(rule, attempt)
	l.adoptTwoFactorSender(rule, attempt)

	if attempt.FlowType != "" && rule.FlowType != "" && attempt.FlowType != rule.FlowType {
		rule.AddAdaptation(fmt.Sprintf("flow type changed from %s to %s based on observed login",
			rule.FlowType, attempt.FlowType))
		rule.FlowType = attempt.FlowType
	} else if rule.FlowType == "" {
		rule.FlowType = attempt.FlowType
	}

	if rule.Provenance == rules.ProvenanceBundled && rule.SuccessCount == promoteAtSuccesses {
		rule.Provenance = rules.ProvenanceLocal
		rule.AddAdaptation("promoted from bundled to local after repeated success")
		l.logger.Info("bundled rule promoted to local", zap.String("domain", rule.Domain))
	}

	l.store.Put(rule)
}

// harvestButtonTexts collects button labels that worked during the attempt
// so future runs can try them as fallbacks.
func (l *Learner) harvestButtonTexts(rule *rules.Rule, attempt *session.Attempt) {
	for _, step := range attempt.Steps {
		if step.Action != session.ActionClickButton || step.Result != session.StepSuccess {
			continue
		}
		text, _ := step.Params["buttonText"].(string)
		if text == "" || rule.HasButtonText(text) {
			continue
		}
		rule.AlternativeButtonTexts = append(rule.AlternativeButtonTexts, text)
	}
}

// adoptTwoFactorSender records the sender of a successful 2FA code lookup.
func (l *Learner) adoptTwoFactorSender(rule *rules.Rule, attempt *session.Attempt) {
	for _, step := range attempt.Steps {
		if step.Action != session.ActionGet2FACode || step.Result != session.StepSuccess {
			continue
		}
		if sender, _ := step.Params["sender"].(string); sender != "" && sender != rule.TwoFactorSender {
			rule.TwoFactorSender = sender
			rule.AddNote(rules.NoteAdaptation,
				fmt.Sprintf("two-factor sender set to %q", sender))
		}
	}
}

func (l *Learner) learnFromPending2FA(attempt *session.Attempt) {
	rule, ok := l.store.RuleForDomain(attempt.Domain)
	if !ok {
		return
	}
	rule.AddNote(rules.NoteHypothesis, "attempt paused waiting for a second factor")
	if rule.TwoFactorSource == "" || rule.TwoFactorSource == session.TwoFactorNone {
		rule.TwoFactorSource = session.TwoFactorSMS
		rule.AddAdaptation("two-factor source provisionally set to sms pending confirmation")
	}
	l.store.Put(rule)
}

func (l *Learner) learnFromAlreadyLoggedIn(attempt *session.Attempt) {
	rule, ok := l.store.RuleForDomain(attempt.Domain)
	if !ok {
		return
	}
	rule.AddNote(rules.NoteSuccess, "session was already authenticated; no login performed")
	l.store.Put(rule)
}

// ContributableRules returns local rules stable enough to share: at least
// three successes and confidence of 0.8 or better.
func (l *Learner) ContributableRules() []*rules.Rule {
	var out []*rules.Rule
	for _, rule := range l.store.Domains() {
		if rule.Provenance != rules.ProvenanceLocal {
			continue
		}
		if rule.SuccessCount >= contributeMinSuccesses && rule.Confidence >= contributeMinConfidence {
			out = append(out, rule)
		}
	}
	return out
}

// firstProblemStep returns the first step that failed or only partially
// succeeded, along with its index.
func firstProblemStep(steps []session.Step) (int, *session.Step) {
	for i := range steps {
		if steps[i].Result == session.StepFailed || steps[i].Result == session.StepPartial {
			return i, &steps[i]
		}
	}
	return -1, nil
}

func buttonText(step *session.Step) string {
	text, _ := step.Params["buttonText"].(string)
	return text
}

func detailsMention(details, field string) bool {
	return strings.Contains(strings.ToLower(details), field)
}
