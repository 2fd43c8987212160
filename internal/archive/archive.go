// Package archive persists attempts evicted from the bounded history log so
// long-term statistics survive the cap. The archive is best effort: a
// missing or broken database degrades to a no-op.
package archive

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ciciliostudio/loginpilot/internal/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS attempts (
	id           TEXT PRIMARY KEY,
	domain       TEXT NOT NULL,
	outcome      TEXT NOT NULL,
	started_at   TIMESTAMP NOT NULL,
	completed_at TIMESTAMP,
	payload      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_domain ON attempts(domain);
`

// Archive is an append-only sqlite store of evicted attempts.
type Archive struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open creates or opens the archive database at path.
func Open(path string, logger *zap.Logger) (*Archive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, eris.Wrap(err, "archive: open database")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "archive: apply schema")
	}
	return &Archive{db: db, logger: logger}, nil
}

// Store appends one evicted attempt. Failures are logged, not returned:
// losing an archive row must never break the learning path.
func (a *Archive) Store(attempt session.Attempt) {
	payload, err := json.Marshal(attempt)
	if err != nil {
		a.logger.Warn("archive: marshal attempt", zap.Error(err))
		return
	}
	var completed interface{}
	if attempt.CompletedAt != nil {
		completed = *attempt.CompletedAt
	}
	_, err = a.db.Exec(
		`INSERT OR IGNORE INTO attempts (id, domain, outcome, started_at, completed_at, payload)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		attempt.ID, attempt.Domain, string(attempt.Outcome),
		attempt.StartedAt, completed, string(payload),
	)
	if err != nil {
		a.logger.Warn("archive: store attempt", zap.Error(err))
	}
}

// Count returns the number of archived attempts, 0 on any error.
func (a *Archive) Count() int {
	var n int
	if err := a.db.QueryRow(`SELECT COUNT(*) FROM attempts`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// DomainCounts returns per-domain totals of archived attempts.
func (a *Archive) DomainCounts() (map[string]int, error) {
	rows, err := a.db.Query(`SELECT domain, COUNT(*) FROM attempts GROUP BY domain`)
	if err != nil {
		return nil, eris.Wrap(err, "archive: query domain counts")
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var domain string
		var n int
		if err := rows.Scan(&domain, &n); err != nil {
			return nil, eris.Wrap(err, "archive: scan domain count")
		}
		counts[domain] = n
	}
	return counts, rows.Err()
}

// OldestStartedAt returns the start time of the oldest archived attempt.
func (a *Archive) OldestStartedAt() (time.Time, bool) {
	var ts time.Time
	err := a.db.QueryRow(`SELECT started_at FROM attempts ORDER BY started_at LIMIT 1`).Scan(&ts)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// Close releases the database handle.
func (a *Archive) Close() error {
	return a.db.Close()
}
