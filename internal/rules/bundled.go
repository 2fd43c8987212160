package rules

import (
	_ "embed"
	"encoding/json"
	"time"
)

// bundledConfidence seeds shipped rules below the contribution threshold so
// they must prove themselves against real outcomes.
const bundledConfidence = 0.7

//go:embed bundled_rules.json
var bundledRulesJSON []byte

// BundledRules returns the rules shipped with the binary, seeded at
// confidence 0.7 with bundled provenance. The embedded document only carries
// steps and 2FA hints; counters start at zero.
func BundledRules() map[string]*Rule {
	var doc struct {
		Domains map[string]*Rule `json:"domains"`
	}
	if err := json.Unmarshal(bundledRulesJSON, &doc); err != nil {
		// The embedded document is fixed at build time; a parse failure
		// is a packaging bug, not a runtime condition.
		panic("rules: invalid embedded bundled_rules.json: " + err.Error())
	}

	now := time.Now()
	for domain, rule := range doc.Domains {
		rule.Domain = domain
		rule.Provenance = ProvenanceBundled
		rule.Confidence = bundledConfidence
		if rule.CreatedAt.IsZero() {
			rule.CreatedAt = now
		}
	}
	return doc.Domains
}
