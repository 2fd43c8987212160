package rules

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ciciliostudio/loginpilot/internal/storage"
)

const ruleFileVersion = "1.0"

// ruleDocument is the on-disk shape of the rule file. Only rules with local
// provenance are written back; bundled and community rules are reproducible
// from their sources.
type ruleDocument struct {
	Version     string           `json:"version"`
	LastUpdated time.Time        `json:"last_updated"`
	General     GeneralRules     `json:"general_rules"`
	Domains     map[string]*Rule `json:"domains"`
}

// Store holds the merged rule set and persists the local layer.
type Store struct {
	path    string
	general GeneralRules
	domains map[string]*Rule
	logger  *zap.Logger
}

// NewStore loads the layered rule set: static general defaults, bundled
// rules, then the user's local file. Missing or corrupt files degrade to the
// lower layers rather than failing.
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	local := map[string]*Rule{}
	general := DefaultGeneralRules()

	var doc ruleDocument
	if err := storage.LoadJSON(path, &doc); err != nil {
		if !eris.Is(err, os.ErrNotExist) {
			logger.Warn("rule file unreadable, starting from bundled rules",
				zap.String("path", path), zap.Error(err))
		}
	} else {
		if doc.Domains != nil {
			local = doc.Domains
		}
		if len(doc.General.SubmitButtonTexts) > 0 {
			general = doc.General
		}
	}

	return &Store{
		path:    path,
		general: general,
		domains: MergeLayers(BundledRules(), local, nil),
		logger:  logger,
	}
}

// RuleForDomain looks up a rule by exact domain, then retries with the
// domain reduced to its last two labels. The second return value is false
// when neither matches.
func (s *Store) RuleForDomain(domain string) (*Rule, bool) {
	if rule, ok := s.domains[domain]; ok {
		return rule, true
	}
	if parent := ParentDomain(domain); parent != "" {
		if rule, ok := s.domains[parent]; ok {
			return rule, true
		}
	}
	return nil, false
}

// Put inserts or replaces the rule for its domain and persists.
func (s *Store) Put(rule *Rule) {
	rule.UpdatedAt = time.Now()
	s.domains[rule.Domain] = rule
	s.Save()
}

// General returns the cross-domain defaults.
func (s *Store) General() GeneralRules {
	return s.general
}

// Domains returns the merged domain map. Callers must not mutate rules they
// did not obtain for learning.
func (s *Store) Domains() map[string]*Rule {
	return s.domains
}

// ImportCommunity merges a community rule file into the set: imported rules
// apply only where no local rule exists or the local rule has strictly lower
// confidence. Returns how many rules were adopted.
func (s *Store) ImportCommunity(path string) (int, error) {
	var doc ruleDocument
	if err := storage.LoadJSON(path, &doc); err != nil {
		return 0, eris.Wrap(err, "rules: read community file")
	}

	community := make(map[string]*Rule, len(doc.Domains))
	for domain, rule := range doc.Domains {
		rule.Domain = domain
		rule.Provenance = ProvenanceCommunity
		community[domain] = rule
	}

	before := s.domains
	s.domains = MergeLayers(nil, before, community)
	adopted := 0
	for domain, rule := range s.domains {
		if rule.Provenance == ProvenanceCommunity {
			if prev, ok := before[domain]; !ok || prev.Provenance != ProvenanceCommunity {
				adopted++
			}
		}
	}
	s.logger.Info("community rules imported",
		zap.String("path", path), zap.Int("adopted", adopted))
	return adopted, nil
}

// Save persists the local layer atomically. Failures are logged and
// swallowed: persistence is best effort, in-memory state stays
// authoritative.
func (s *Store) Save() {
	localOnly := make(map[string]*Rule)
	for domain, rule := range s.domains {
		if rule.Provenance == ProvenanceLocal {
			localOnly[domain] = rule
		}
	}
	doc := ruleDocument{
		Version:     ruleFileVersion,
		LastUpdated: time.Now(),
		General:     s.general,
		Domains:     localOnly,
	}
	if err := storage.SaveJSON(s.path, doc); err != nil {
		s.logger.Warn("failed to persist rule store", zap.Error(err))
	}
}

// RuleSet snapshots the merged state for stats and export.
func (s *Store) RuleSet() RuleSet {
	domains := make(map[string]*Rule, len(s.domains))
	for domain, rule := range s.domains {
		domains[domain] = rule.Clone()
	}
	return RuleSet{
		Version:     ruleFileVersion,
		LastUpdated: time.Now(),
		General:     s.general,
		Domains:     domains,
	}
}
