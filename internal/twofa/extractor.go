package twofa

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Verification-code patterns, most specific first. Confidence drops as the
// pattern gets more generic.
var codePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:verification|security|login|auth)\s+code[^0-9]{0,10}(\d{4,8})`),
	regexp.MustCompile(`(?i)\bcode[:\s]+(\d{4,8})\b`),
	regexp.MustCompile(`\b(\d{6})\b`),
	regexp.MustCompile(`\b(\d{8})\b`),
	regexp.MustCompile(`\b(\d{4})\b`),
}

// ExtractCode scans an email for a verification code. Returns nil when no
// pattern matches.
func ExtractCode(email *Email) *Code {
	content := email.Subject + " " + email.Body
	if email.Body == "" && email.HTMLBody != "" {
		content = email.Subject + " " + htmlToText(email.HTMLBody)
	}

	for i, pattern := range codePatterns {
		match := pattern.FindStringSubmatch(content)
		if match == nil {
			continue
		}
		return &Code{
			Value:      match[1],
			Sender:     senderAddress(email.From),
			Confidence: 0.9 - float64(i)*0.1,
			ReceivedAt: email.Received,
		}
	}
	return nil
}

// htmlToText reduces an HTML email body to its visible text.
func htmlToText(htmlBody string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return htmlBody
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// senderAddress strips a display name from a From header, so
// `"Acme Security" <no-reply@acme.com>` becomes `no-reply@acme.com`.
func senderAddress(from string) string {
	if start := strings.LastIndex(from, "<"); start >= 0 {
		if end := strings.LastIndex(from, ">"); end > start {
			return from[start+1 : end]
		}
	}
	return strings.TrimSpace(from)
}

// FreshEnough reports whether the email arrived within the polling window;
// stale messages must not satisfy a current 2FA prompt.
func FreshEnough(email *Email, window time.Duration) bool {
	return time.Since(email.Received) <= window
}
