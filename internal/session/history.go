package session

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ciciliostudio/loginpilot/internal/storage"
)

// DefaultHistoryCap bounds the persisted attempt log. Older attempts are
// evicted first and handed to the eviction hook.
const DefaultHistoryCap = 500

const historyVersion = "1.0"

// HistoryDocument is the on-disk shape of the attempt history file. The
// reporting dashboard reads the same document and never writes it.
type HistoryDocument struct {
	Version     string    `json:"version"`
	LastUpdated time.Time `json:"last_updated"`
	Attempts    []Attempt `json:"attempts"`
}

// EvictFunc receives attempts pushed out of the bounded history.
type EvictFunc func(Attempt)

// History is the bounded, persisted log of completed attempts.
type History struct {
	path     string
	cap      int
	attempts []Attempt
	onEvict  EvictFunc
	logger   *zap.Logger
}

// NewHistory loads the history file at path, degrading to an empty log when
// the file is missing or corrupt.
func NewHistory(path string, capacity int, logger *zap.Logger) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &History{path: path, cap: capacity, logger: logger}

	var doc HistoryDocument
	if err := storage.LoadJSON(path, &doc); err != nil {
		if !eris.Is(err, os.ErrNotExist) {
			logger.Warn("history file unreadable, starting empty",
				zap.String("path", path), zap.Error(err))
		}
		return h
	}
	h.attempts = doc.Attempts
	if len(h.attempts) > h.cap {
		h.attempts = h.attempts[len(h.attempts)-h.cap:]
	}
	return h
}

// SetEvictFunc registers a hook for attempts evicted by the cap.
func (h *History) SetEvictFunc(fn EvictFunc) {
	h.onEvict = fn
}

// Append adds a completed attempt, evicting the oldest entries past the cap,
// and persists the document. Write failures are logged, not returned; the
// in-memory log stays authoritative for the rest of the process.
func (h *History) Append(attempt Attempt) {
	h.attempts = append(h.attempts, attempt)
	for len(h.attempts) > h.cap {
		evicted := h.attempts[0]
		h.attempts = h.attempts[1:]
		if h.onEvict != nil {
			h.onEvict(evicted)
		}
	}
	h.persist()
}

// Attempts returns the recorded attempts, oldest first.
func (h *History) Attempts() []Attempt {
	out := make([]Attempt, len(h.attempts))
	copy(out, h.attempts)
	return out
}

// Len reports how many attempts are currently retained.
func (h *History) Len() int {
	return len(h.attempts)
}

func (h *History) persist() {
	doc := HistoryDocument{
		Version:     historyVersion,
		LastUpdated: time.Now(),
		Attempts:    h.attempts,
	}
	if err := storage.SaveJSON(h.path, doc); err != nil {
		h.logger.Warn("failed to persist attempt history", zap.Error(err))
	}
}
