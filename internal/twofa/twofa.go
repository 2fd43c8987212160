// Package twofa provides the two-factor code reader surface and the email
// readers bundled with the engine. SMS reading has no desktop source here
// and stays interface-only.
package twofa

import (
	"context"
	"time"

	"github.com/ciciliostudio/loginpilot/internal/session"
)

// Code is one extracted second-factor code.
type Code struct {
	Value      string    `json:"value"`
	Sender     string    `json:"sender"`
	Confidence float64   `json:"confidence"`
	ReceivedAt time.Time `json:"received_at"`
}

// CodeReader waits for a second-factor code from one source.
type CodeReader interface {
	// Source identifies which channel this reader scans.
	Source() session.TwoFactorSource

	// WaitForCode polls for a fresh code until the timeout elapses or ctx
	// is canceled.
	WaitForCode(ctx context.Context, timeout time.Duration) (*Code, error)
}

// Email is a retrieved message the extractor scans for codes.
type Email struct {
	ID       string    `json:"id"`
	Subject  string    `json:"subject"`
	From     string    `json:"from"`
	Body     string    `json:"body"`
	HTMLBody string    `json:"html_body,omitempty"`
	Received time.Time `json:"received"`
}
