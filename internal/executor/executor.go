// Package executor defines the wire types exchanged with the browser
// automation executor. The executor is an external agent (modeled as a
// browser extension) that connects to the ingress server, performs page
// actions, and reports per-step results. The engine never dials out to it.
package executor

// CommandKind names an action the executor can perform.
type CommandKind string

const (
	CommandFillField   CommandKind = "fill_field"
	CommandClickButton CommandKind = "click_button"
	CommandWait        CommandKind = "wait"
)

// Command is one instruction sent to the executor.
type Command struct {
	Kind   CommandKind            `json:"kind"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// MessageType discriminates messages arriving from the executor.
type MessageType string

const (
	MessageStartAttempt    MessageType = "start_attempt"
	MessageLogStep         MessageType = "log_step"
	MessageCompleteAttempt MessageType = "complete_attempt"
	MessageGetCode         MessageType = "get_2fa_code"
)

// Message is the envelope the executor sends over the websocket.
type Message struct {
	Type MessageType `json:"type"`

	// start_attempt
	Domain   string `json:"domain,omitempty"`
	LoginURL string `json:"login_url,omitempty"`

	// log_step
	Action  string                 `json:"action,omitempty"`
	Result  string                 `json:"result,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Details string                 `json:"details,omitempty"`

	// complete_attempt
	Outcome      string `json:"outcome,omitempty"`
	FinalState   string `json:"final_state,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	// get_2fa_code
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty"`
}

// Ack is the server's reply to each executor message.
type Ack struct {
	OK        bool   `json:"ok"`
	AttemptID string `json:"attempt_id,omitempty"`
	Error     string `json:"error,omitempty"`

	// get_2fa_code replies
	Code   string `json:"code,omitempty"`
	Sender string `json:"sender,omitempty"`
}
