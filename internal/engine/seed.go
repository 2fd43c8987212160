package engine

import (
	"time"

	"github.com/ciciliostudio/loginpilot/internal/rules"
	"github.com/ciciliostudio/loginpilot/internal/session"
)

// Seed confidences for rules synthesized from a single attempt. A success
// seed starts at even odds; a failed-only seed is kept as weak context for
// the next attempt.
const (
	seedConfidenceSuccess = 0.5
	seedConfidenceFailure = 0.1
)

// seedRule synthesizes a new local rule from the attempt's steps that
// succeeded or partially succeeded.
func (l *Learner) seedRule(attempt *session.Attempt, confidence float64) *rules.Rule {
	now := time.Now()
	rule := &rules.Rule{
		Domain:          attempt.Domain,
		LoginURL:        attempt.LoginURL,
		FlowType:        attempt.FlowType,
		TwoFactorSource: attempt.TwoFactorSource,
		TwoFactorSender: attempt.TwoFactorSender,
		Confidence:      confidence,
		Provenance:      rules.ProvenanceLocal,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	for _, step := range attempt.Steps {
		if step.Result != session.StepSuccess && step.Result != session.StepPartial {
			continue
		}
		if stepRule, ok := toStepRule(step); ok {
			rule.Steps = append(rule.Steps, stepRule)
		}
	}
	return rule
}

// toStepRule maps a logged attempt step onto a recipe step. Credential
// fills are narrowed by which field names the executor reported touching.
func toStepRule(step session.Step) (rules.StepRule, bool) {
	switch step.Action {
	case session.ActionFillCredentials:
		return rules.StepRule{Action: credentialAction(step.Details)}, true
	case session.ActionClickButton:
		text, _ := step.Params["buttonText"].(string)
		return rules.StepRule{Action: rules.StepClickButton, ButtonText: text}, true
	case session.ActionFillTOTP:
		return rules.StepRule{Action: rules.StepFill2FA}, true
	case session.ActionWait:
		wait := 2 * time.Second
		if seconds, ok := step.Params["seconds"].(float64); ok && seconds > 0 {
			wait = time.Duration(seconds * float64(time.Second))
		}
		return rules.StepRule{Action: rules.StepWait, Wait: wait}, true
	default:
		// get_2fa_code is a lookup, not a page action; it surfaces in the
		// rule through the derived two-factor source instead.
		return rules.StepRule{}, false
	}
}

func credentialAction(details string) rules.StepAction {
	hasUser := detailsMention(details, "username")
	hasPass := detailsMention(details, "password")
	switch {
	case hasUser && !hasPass:
		return rules.StepFillUsername
	case hasPass && !hasUser:
		return rules.StepFillPassword
	default:
		return rules.StepFillCredentials
	}
}
