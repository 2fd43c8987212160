package session

import (
	"strings"
	"time"
)

// Outcome is the final (or current) state of a login attempt.
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeFailed          Outcome = "failed"
	OutcomeAbandoned       Outcome = "abandoned"
	OutcomeInProgress      Outcome = "in_progress"
	OutcomeAlreadyLoggedIn Outcome = "already_logged_in"
	OutcomePending2FA      Outcome = "pending_2fa"
)

// StepAction identifies what kind of sub-action a step performed.
type StepAction string

const (
	ActionFillCredentials StepAction = "fill_credentials"
	ActionClickButton     StepAction = "click_button"
	ActionFillTOTP        StepAction = "fill_totp"
	ActionGet2FACode      StepAction = "get_2fa_code"
	ActionWait            StepAction = "wait"
)

// StepResult is the executor-reported result of a single step.
type StepResult string

const (
	StepSuccess StepResult = "success"
	StepPartial StepResult = "partial"
	StepFailed  StepResult = "failed"
)

// FlowType classifies how the login page collects credentials.
type FlowType string

const (
	FlowSinglePage FlowType = "single-page"
	FlowMultiStep  FlowType = "multi-step"
)

// TwoFactorSource identifies where a second factor comes from.
type TwoFactorSource string

const (
	TwoFactorSMS   TwoFactorSource = "sms"
	TwoFactorEmail TwoFactorSource = "email"
	TwoFactorTOTP  TwoFactorSource = "totp"
	TwoFactorNone  TwoFactorSource = "none"
)

// Step is one logged sub-action within an attempt. Params are sanitized
// before the step is stored, so secrets never reach the history file.
type Step struct {
	Action    StepAction             `json:"action"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Result    StepResult             `json:"result"`
	Details   string                 `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Attempt records a single login try from start to completion. Once
// completed it is immutable and only ever read.
type Attempt struct {
	ID          string     `json:"id"`
	Domain      string     `json:"domain"`
	LoginURL    string     `json:"login_url"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Outcome     Outcome    `json:"outcome"`
	Steps       []Step     `json:"steps"`

	// Derived at completion.
	FlowType        FlowType        `json:"flow_type,omitempty"`
	TwoFactorSource TwoFactorSource `json:"two_factor_source,omitempty"`
	TwoFactorSender string          `json:"two_factor_sender,omitempty"`

	FinalState   string `json:"final_state,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Duration returns how long the attempt ran, or 0 while in progress.
func (a *Attempt) Duration() time.Duration {
	if a.CompletedAt == nil {
		return 0
	}
	return a.CompletedAt.Sub(a.StartedAt)
}

// deriveFlowType classifies the attempt as multi-step when credentials were
// filled across more than one step, or when any clicked button was "Next".
func deriveFlowType(steps []Step) FlowType {
	credentialFills := 0
	for _, step := range steps {
		switch step.Action {
		case ActionFillCredentials:
			credentialFills++
		case ActionClickButton:
			if text, ok := step.Params["buttonText"].(string); ok {
				if strings.EqualFold(text, "Next") {
					return FlowMultiStep
				}
			}
		}
	}
	if credentialFills > 1 {
		return FlowMultiStep
	}
	return FlowSinglePage
}

// deriveTwoFactor scans steps for 2FA activity and maps the code source.
func deriveTwoFactor(steps []Step) (TwoFactorSource, string) {
	for _, step := range steps {
		switch step.Action {
		case ActionGet2FACode:
			source := TwoFactorTOTP
			if raw, ok := step.Params["source"].(string); ok {
				switch raw {
				case "messages":
					source = TwoFactorSMS
				case "gmail":
					source = TwoFactorEmail
				}
			}
			sender, _ := step.Params["sender"].(string)
			return source, sender
		case ActionFillTOTP:
			return TwoFactorTOTP, ""
		}
	}
	return TwoFactorNone, ""
}
