package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ciciliostudio/loginpilot/internal/rules"
	"github.com/ciciliostudio/loginpilot/internal/session"
)

// twoFactorCycle is the round-robin hypothesis order when repeated 2FA
// failures suggest the stored source is wrong.
var twoFactorCycle = []session.TwoFactorSource{
	session.TwoFactorSMS,
	session.TwoFactorEmail,
	session.TwoFactorTOTP,
}

func (l *Learner) learnFromFailure(attempt *session.Attempt) {
	rule, ok := l.store.RuleForDomain(attempt.Domain)
	if !ok {
		// Counters stay at zero so confidence keeps its seed value until
		// real outcomes accumulate; the failure itself is recorded in the
		// reason and the note.
		rule = l.seedRule(attempt, seedConfidenceFailure)
		rule.LastFailureReason = failureReason(attempt)
		rule.AddNote(rules.NoteFailure, "tentative rule seeded from failed attempt")
		l.store.Put(rule)
		l.logger.Info("tentative rule seeded from failure",
			zap.String("domain", rule.Domain))
		return
	}

	// A single isolated failure must not trigger structural rewrites, so
	// the analysis branches look at the streak before this failure.
	priorStreak := rule.ConsecutiveFailures

	rule.FailureCount++
	rule.ConsecutiveFailures++
	rule.RecomputeConfidence()
	rule.LastFailureReason = failureReason(attempt)

	index, step := firstProblemStep(attempt.Steps)
	if step == nil {
		rule.AddNote(rules.NoteFailure, "attempt failed with no step-level diagnosis")
		l.store.Put(rule)
		return
	}

	switch step.Action {
	case session.ActionFillCredentials:
		l.analyzeCredentialFailure(rule, attempt, step)
	case session.ActionClickButton:
		l.analyzeButtonFailure(rule, attempt, index, step, priorStreak)
	case session.ActionFillTOTP, session.ActionGet2FACode:
		l.analyzeTwoFactorFailure(rule, step, priorStreak)
	default:
		rule.AddNote(rules.NoteFailure,
			fmt.Sprintf("attempt failed at %s: %s", step.Action, step.Details))
	}

	l.store.Put(rule)
}

// analyzeCredentialFailure handles a failed or partial credential fill.
func (l *Learner) analyzeCredentialFailure(rule *rules.Rule, attempt *session.Attempt, step *session.Step) {
	details := step.Details

	switch {
	case detailsMention(details, "no fields found"):
		if attempt.LoginURL != "" && attempt.LoginURL != rule.LoginURL {
			rule.AddAdaptation(fmt.Sprintf("login url changed from %q to %q after fields were not found",
				rule.LoginURL, attempt.LoginURL))
			rule.LoginURL = attempt.LoginURL
		} else {
			rule.AddNote(rules.NoteFailure, "no credential fields found on the stored login url")
		}

	case detailsMention(details, "username") && !detailsMention(details, "password"):
		// Only the username field was present: the page collects
		// credentials across pages.
		if rule.FlowType != session.FlowMultiStep {
			rule.AddAdaptation("flow type set to multi-step: only the username field was fillable")
			rule.FlowType = session.FlowMultiStep
		} else {
			rule.AddNote(rules.NoteFailure, "username-only fill failed on a multi-step flow")
		}

	case detailsMention(details, "password") && !detailsMention(details, "username"):
		rule.AddNote(rules.NoteHypothesis,
			"only the password field was fillable; the page was likely already mid-flow")

	default:
		rule.AddNote(rules.NoteFailure, "credential fill failed: "+details)
	}
}

// analyzeButtonFailure records a failed click and, once failures have
// repeated, rewrites the step's button text to one that worked later in the
// same attempt.
func (l *Learner) analyzeButtonFailure(rule *rules.Rule, attempt *session.Attempt, index int, step *session.Step, priorStreak int) {
	failedText := buttonText(step)
	rule.AddNote(rules.NoteFailure, fmt.Sprintf("button click failed: %q", failedText))

	if priorStreak < 2 {
		return
	}

	workedText := laterSuccessfulButton(attempt.Steps, index, failedText)
	if workedText == "" {
		return
	}

	for i := range rule.Steps {
		if rule.Steps[i].Action != rules.StepClickButton {
			continue
		}
		if rule.Steps[i].ButtonText == failedText || rule.Steps[i].ButtonText == "" {
			rule.AddAdaptation(fmt.Sprintf("button text rewritten from %q to %q after repeated failures",
				rule.Steps[i].ButtonText, workedText))
			rule.Steps[i].ButtonText = workedText
			return
		}
	}
}

// laterSuccessfulButton finds the text of a click_button step that succeeded
// after index with a different label.
func laterSuccessfulButton(steps []session.Step, index int, failedText string) string {
	for i := index + 1; i < len(steps); i++ {
		if steps[i].Action != session.ActionClickButton || steps[i].Result != session.StepSuccess {
			continue
		}
		if text := buttonText(&steps[i]); text != "" && text != failedText {
			return text
		}
	}
	return ""
}

// analyzeTwoFactorFailure logs the failure and, once failures have repeated,
// cycles the expected 2FA source to the next hypothesis.
func (l *Learner) analyzeTwoFactorFailure(rule *rules.Rule, step *session.Step, priorStreak int) {
	rule.AddNote(rules.NoteFailure,
		fmt.Sprintf("two-factor step %s failed: %s", step.Action, step.Details))

	if priorStreak < 2 {
		return
	}

	next := nextTwoFactorSource(rule.TwoFactorSource)
	rule.AddAdaptation(fmt.Sprintf("two-factor source hypothesis cycled from %s to %s",
		sourceOrNone(rule.TwoFactorSource), next))
	rule.TwoFactorSource = next
}

func nextTwoFactorSource(current session.TwoFactorSource) session.TwoFactorSource {
	for i, source := range twoFactorCycle {
		if source == current {
			return twoFactorCycle[(i+1)%len(twoFactorCycle)]
		}
	}
	return twoFactorCycle[0]
}

func sourceOrNone(source session.TwoFactorSource) session.TwoFactorSource {
	if source == "" {
		return session.TwoFactorNone
	}
	return source
}

func failureReason(attempt *session.Attempt) string {
	if attempt.ErrorMessage != "" {
		return attempt.ErrorMessage
	}
	if _, step := firstProblemStep(attempt.Steps); step != nil {
		return fmt.Sprintf("%s: %s", step.Action, step.Details)
	}
	return "unknown failure"
}
