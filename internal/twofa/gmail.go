package twofa

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/ciciliostudio/loginpilot/internal/session"
)

// GmailConfig holds the OAuth settings for the Gmail code reader.
type GmailConfig struct {
	Email        string        `yaml:"email"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	RefreshToken string        `yaml:"refresh_token"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// GmailReader polls the Gmail API for verification-code emails.
type GmailReader struct {
	service      *gmail.Service
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewGmailReader builds a read-only Gmail API client from stored OAuth
// credentials.
func NewGmailReader(ctx context.Context, cfg GmailConfig, logger *zap.Logger) (*GmailReader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{gmail.GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}
	token := &oauth2.Token{RefreshToken: cfg.RefreshToken}

	service, err := gmail.NewService(ctx,
		option.WithHTTPClient(oauthConfig.Client(ctx, token)))
	if err != nil {
		return nil, eris.Wrap(err, "twofa: create gmail service")
	}

	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &GmailReader{service: service, pollInterval: interval, logger: logger}, nil
}

// Source reports the email channel.
func (r *GmailReader) Source() session.TwoFactorSource {
	return session.TwoFactorEmail
}

// WaitForCode polls recent messages until a fresh verification code arrives.
func (r *GmailReader) WaitForCode(ctx context.Context, timeout time.Duration) (*Code, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		code, err := r.poll(ctx)
		if err != nil {
			r.logger.Warn("gmail poll failed", zap.Error(err))
		} else if code != nil {
			return code, nil
		}

		if time.Now().After(deadline) {
			return nil, eris.Errorf("twofa: no email code within %v", timeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *GmailReader) poll(ctx context.Context) (*Code, error) {
	after := time.Now().Add(-2 * time.Minute).Unix()
	list, err := r.service.Users.Messages.List("me").
		Q(fmt.Sprintf("after:%d", after)).
		MaxResults(10).
		Context(ctx).
		Do()
	if err != nil {
		return nil, eris.Wrap(err, "twofa: list gmail messages")
	}

	for _, ref := range list.Messages {
		msg, err := r.service.Users.Messages.Get("me", ref.Id).Context(ctx).Do()
		if err != nil {
			continue
		}
		email := gmailToEmail(msg)
		if code := ExtractCode(email); code != nil {
			return code, nil
		}
	}
	return nil, nil
}

func gmailToEmail(msg *gmail.Message) *Email {
	email := &Email{
		ID:       msg.Id,
		Received: time.Unix(msg.InternalDate/1000, 0),
	}
	if msg.Payload == nil {
		return email
	}
	for _, header := range msg.Payload.Headers {
		switch header.Name {
		case "Subject":
			email.Subject = header.Value
		case "From":
			email.From = header.Value
		}
	}
	plain, html := extractGmailBody(msg.Payload)
	email.Body = plain
	email.HTMLBody = html
	return email
}

// extractGmailBody walks the part tree collecting text content. Bodies are
// base64url encoded.
func extractGmailBody(part *gmail.MessagePart) (plain, html string) {
	if part.Body != nil && part.Body.Data != "" {
		if decoded, err := base64.URLEncoding.DecodeString(padBase64(part.Body.Data)); err == nil {
			switch part.MimeType {
			case "text/html":
				html = string(decoded)
			default:
				plain = string(decoded)
			}
		}
	}
	for _, sub := range part.Parts {
		p, h := extractGmailBody(sub)
		plain += p
		html += h
	}
	return plain, html
}

func padBase64(s string) string {
	if m := len(s) % 4; m != 0 {
		return s + strings.Repeat("=", 4-m)
	}
	return s
}
