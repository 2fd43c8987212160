package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ciciliostudio/loginpilot/internal/executor"
	"github.com/ciciliostudio/loginpilot/internal/session"
)

// defaultCodeTimeout bounds a 2FA code lookup when the executor does not ask
// for a specific timeout.
const defaultCodeTimeout = 60 * time.Second

// handleExecutorWS upgrades the connection and processes executor reports
// until the peer disconnects.
func (s *Server) handleExecutorWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	s.logger.Info("executor connected", zap.String("remote", conn.RemoteAddr().String()))

	for {
		var msg executor.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("executor connection lost", zap.Error(err))
			}
			return
		}

		ack := s.dispatch(&msg)
		if err := conn.WriteJSON(ack); err != nil {
			s.logger.Warn("failed to ack executor message", zap.Error(err))
			return
		}
	}
}

// checkOrigin admits non-browser clients, which send no Origin header, and
// browser pages whose Origin matches a configured pattern. Any other page
// could otherwise inject fabricated step reports and poison learned rules.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, pattern := range s.allowedOrigins {
		if originMatches(pattern, origin) {
			return true
		}
	}
	s.logger.Warn("rejected websocket origin", zap.String("origin", origin))
	return false
}

// originMatches supports the single-wildcard patterns used in the CORS
// configuration, e.g. "chrome-extension://*".
func originMatches(pattern, origin string) bool {
	if pattern == "*" {
		return true
	}
	i := strings.IndexByte(pattern, '*')
	if i < 0 {
		return strings.EqualFold(pattern, origin)
	}
	return len(origin) >= len(pattern)-1 &&
		strings.HasPrefix(origin, pattern[:i]) &&
		strings.HasSuffix(origin, pattern[i+1:])
}

// dispatch applies one executor message to the tracker and, on completion,
// the learner.
func (s *Server) dispatch(msg *executor.Message) executor.Ack {
	// Code lookups block on the mail reader and must not hold the lock
	// that serializes rule mutations.
	if msg.Type == executor.MessageGetCode {
		return s.lookupCode(msg)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg.Type {
	case executor.MessageStartAttempt:
		if msg.Domain == "" {
			return executor.Ack{Error: "start_attempt requires a domain"}
		}
		id := s.tracker.StartAttempt(msg.Domain, msg.LoginURL)
		return executor.Ack{OK: true, AttemptID: id}

	case executor.MessageLogStep:
		ok := s.tracker.LogStep(
			session.StepAction(msg.Action),
			session.StepResult(msg.Result),
			msg.Params,
			msg.Details,
		)
		if !ok {
			return executor.Ack{Error: "no attempt in progress"}
		}
		return executor.Ack{OK: true}

	case executor.MessageCompleteAttempt:
		attempt := s.tracker.CompleteAttempt(
			session.Outcome(msg.Outcome),
			msg.FinalState,
			msg.ErrorMessage,
		)
		if attempt == nil {
			return executor.Ack{Error: "no attempt in progress"}
		}
		s.learner.LearnFromAttempt(attempt)
		return executor.Ack{OK: true, AttemptID: attempt.ID}

	default:
		return executor.Ack{Error: "unknown message type: " + string(msg.Type)}
	}
}

// lookupCode answers a get_2fa_code request from the configured email
// reader.
func (s *Server) lookupCode(msg *executor.Message) executor.Ack {
	if s.codes == nil {
		return executor.Ack{Error: "no email code reader configured"}
	}
	timeout := defaultCodeTimeout
	if msg.TimeoutSeconds > 0 {
		timeout = time.Duration(msg.TimeoutSeconds * float64(time.Second))
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout+5*time.Second)
	defer cancel()

	code, err := s.codes.WaitForCode(ctx, timeout)
	if err != nil {
		return executor.Ack{Error: err.Error()}
	}
	return executor.Ack{OK: true, Code: code.Value, Sender: code.Sender}
}

// ImportCommunity applies a community rule file under the same lock that
// serializes executor reports, so drop-directory imports never race rule
// mutation.
func (s *Server) ImportCommunity(path string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.ImportCommunity(path)
}
