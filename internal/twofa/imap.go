package twofa

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ciciliostudio/loginpilot/internal/session"
)

// IMAPConfig holds the connection settings for the IMAP code reader.
type IMAPConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	Mailbox      string        `yaml:"mailbox"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// IMAPReader polls an IMAP mailbox for verification-code emails.
type IMAPReader struct {
	cfg    IMAPConfig
	logger *zap.Logger
}

// NewIMAPReader creates a reader; the connection is opened per poll so a
// flaky mailbox does not pin a dead session.
func NewIMAPReader(cfg IMAPConfig, logger *zap.Logger) *IMAPReader {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IMAPReader{cfg: cfg, logger: logger}
}

// Source reports the email channel.
func (r *IMAPReader) Source() session.TwoFactorSource {
	return session.TwoFactorEmail
}

// WaitForCode polls the mailbox until a fresh verification code arrives.
func (r *IMAPReader) WaitForCode(ctx context.Context, timeout time.Duration) (*Code, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		code, err := r.poll()
		if err != nil {
			r.logger.Warn("imap poll failed", zap.Error(err))
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

// poll fetches recent messages and runs the extractor over them.
func (r *IMAPReader) poll() (*Code, error) {
	c, err := client.DialTLS(fmt.Sprintf("%s:%d", r.cfg.Host, r.cfg.Port), nil)
	if err != nil {
		return nil, eris.Wrap(err, "twofa: dial imap")
	}
	defer c.Logout()

	if err := c.Login(r.cfg.Username, r.cfg.Password); err != nil {
		return nil, eris.Wrap(err, "twofa: imap login")
	}

	mbox, err := c.Select(r.cfg.Mailbox, true)
	if err != nil {
		return nil, eris.Wrap(err, "twofa: select mailbox")
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	// Fetch the newest handful of messages.
	from := uint32(1)
	if mbox.Messages > 5 {
		from = mbox.Messages - 4
	}
	seqset := new(imap.SeqSet)
	seqset.AddRange(from, mbox.Messages)

	section := &imap.BodySectionName{}
	messages := make(chan *imap.Message, 5)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}, messages)
	}()

	var best *Code
	for msg := range messages {
		email, err := r.parseMessage(msg, section)
		if err != nil {
			r.logger.Debug("skipping unreadable message", zap.Error(err))
			continue
		}
		if !FreshEnough(email, 2*time.Minute) {
			continue
		}
		if code := ExtractCode(email); code != nil {
			if best == nil || code.ReceivedAt.After(best.ReceivedAt) {
				best = code
			}
		}
	}
	if err := <-done; err != nil {
		return nil, eris.Wrap(err, "twofa: fetch messages")
	}
	return best, nil
}

func (r *IMAPReader) parseMessage(msg *imap.Message, section *imap.BodySectionName) (*Email, error) {
	body := msg.GetBody(section)
	if body == nil {
		return nil, eris.New("twofa: message has no body section")
	}
	mr, err := mail.CreateReader(body)
	if err != nil {
		return nil, eris.Wrap(err, "twofa: parse mail")
	}

	email := &Email{}
	if msg.Envelope != nil {
		email.Subject = msg.Envelope.Subject
		email.Received = msg.Envelope.Date
		if len(msg.Envelope.From) > 0 {
			email.From = msg.Envelope.From[0].Address()
		}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "twofa: read mail part")
		}
		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		content, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		mediaType, _, _ := inline.ContentType()
		switch mediaType {
		case "text/plain":
			email.Body += string(content)
		case "text/html":
			email.HTMLBody += string(content)
		}
	}
	return email, nil
}
