package rules

import (
	"strings"
	"time"

	"github.com/ciciliostudio/loginpilot/internal/session"
)

// Provenance is the origin tier of a rule. Promotion only ever moves a rule
// toward local; nothing demotes automatically.
type Provenance string

const (
	ProvenanceBundled   Provenance = "bundled"
	ProvenanceLocal     Provenance = "local"
	ProvenanceCommunity Provenance = "community"
)

// StepAction names one automation step in a learned recipe.
type StepAction string

const (
	StepFillUsername    StepAction = "fill_username"
	StepFillPassword    StepAction = "fill_password"
	StepFillCredentials StepAction = "fill_credentials"
	StepClickButton     StepAction = "click_button"
	StepFill2FA         StepAction = "fill_2fa"
	StepWait            StepAction = "wait"
)

// NoteKind classifies a learning note.
type NoteKind string

const (
	NoteSuccess    NoteKind = "success"
	NoteFailure    NoteKind = "failure"
	NoteAdaptation NoteKind = "adaptation"
	NoteHypothesis NoteKind = "hypothesis"
)

// maxLearningNotes bounds the per-rule audit log.
const maxLearningNotes = 50

// StepRule is one ordered step of a learned automation recipe.
type StepRule struct {
	Action     StepAction    `json:"action"`
	ButtonText string        `json:"button_text,omitempty"`
	Wait       time.Duration `json:"wait,omitempty"`
}

// LearningNote is one entry in a rule's bounded audit log.
type LearningNote struct {
	Kind      NoteKind  `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Rule is the learned automation recipe for one domain.
type Rule struct {
	Domain   string     `json:"domain"`
	LoginURL string     `json:"login_url,omitempty"`
	Steps    []StepRule `json:"steps"`
	FlowType session.FlowType `json:"flow_type,omitempty"`

	TwoFactorSource session.TwoFactorSource `json:"two_factor_source,omitempty"`
	TwoFactorSender string                  `json:"two_factor_sender,omitempty"`

	Confidence          float64 `json:"confidence"`
	SuccessCount        int     `json:"success_count"`
	FailureCount        int     `json:"failure_count"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	LastFailureReason   string  `json:"last_failure_reason,omitempty"`

	Provenance Provenance `json:"provenance"`

	// AlternativeButtonTexts collects button labels seen to work, for
	// future fallback ordering.
	AlternativeButtonTexts []string `json:"alternative_button_texts,omitempty"`

	Adaptations   []string       `json:"adaptations,omitempty"`
	LearningNotes []LearningNote `json:"learning_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecomputeConfidence restores the invariant
// confidence == successCount / (successCount + failureCount).
func (r *Rule) RecomputeConfidence() {
	total := r.SuccessCount + r.FailureCount
	if total == 0 {
		return
	}
	r.Confidence = float64(r.SuccessCount) / float64(total)
}

// AddNote appends a typed learning note, keeping only the newest entries.
func (r *Rule) AddNote(kind NoteKind, message string) {
	r.LearningNotes = append(r.LearningNotes, LearningNote{
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now(),
	})
	if len(r.LearningNotes) > maxLearningNotes {
		r.LearningNotes = r.LearningNotes[len(r.LearningNotes)-maxLearningNotes:]
	}
}

// AddAdaptation records a human-readable automatic change and mirrors it
// into the learning notes.
func (r *Rule) AddAdaptation(description string) {
	r.Adaptations = append(r.Adaptations, description)
	r.AddNote(NoteAdaptation, description)
}

// HasButtonText reports whether text already appears in the rule's steps or
// alternative button texts.
func (r *Rule) HasButtonText(text string) bool {
	for _, step := range r.Steps {
		if strings.EqualFold(step.ButtonText, text) {
			return true
		}
	}
	for _, alt := range r.AlternativeButtonTexts {
		if strings.EqualFold(alt, text) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the rule.
func (r *Rule) Clone() *Rule {
	out := *r
	out.Steps = append([]StepRule(nil), r.Steps...)
	out.AlternativeButtonTexts = append([]string(nil), r.AlternativeButtonTexts...)
	out.Adaptations = append([]string(nil), r.Adaptations...)
	out.LearningNotes = append([]LearningNote(nil), r.LearningNotes...)
	return &out
}

// GeneralRules are the cross-domain defaults applied when no per-domain rule
// matches.
type GeneralRules struct {
	StepTimeout        time.Duration `json:"step_timeout"`
	TwoFactorWait      time.Duration `json:"two_factor_wait"`
	SubmitButtonTexts  []string      `json:"submit_button_texts"`
	DefaultFlowType    session.FlowType `json:"default_flow_type"`
	MaxStepRetries     int           `json:"max_step_retries"`
}

// DefaultGeneralRules returns the static cross-domain defaults.
func DefaultGeneralRules() GeneralRules {
	return GeneralRules{
		StepTimeout:       10 * time.Second,
		TwoFactorWait:     60 * time.Second,
		SubmitButtonTexts: []string{"Sign in", "Log in", "Continue", "Next", "Submit"},
		DefaultFlowType:   session.FlowSinglePage,
		MaxStepRetries:    2,
	}
}

// RuleSet aggregates the general defaults and the per-domain rules.
type RuleSet struct {
	Version     string           `json:"version"`
	LastUpdated time.Time        `json:"last_updated"`
	General     GeneralRules     `json:"general_rules"`
	Domains     map[string]*Rule `json:"domains"`
}
