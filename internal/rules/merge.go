package rules

import "strings"

// MergeLayers combines the three provenance layers into one domain map.
// Layers only add or override, never delete:
//
//   - bundled rules form the base;
//   - a local rule replaces a bundled one for the same domain
//     unconditionally, since it reflects this user's real outcomes;
//   - a community rule applies only where no local rule exists or the
//     existing local rule has strictly lower confidence.
//
// The function is pure: inputs are not mutated and the result holds clones.
func MergeLayers(bundled, local, community map[string]*Rule) map[string]*Rule {
	merged := make(map[string]*Rule, len(bundled)+len(local)+len(community))

	for domain, rule := range bundled {
		merged[domain] = rule.Clone()
	}
	for domain, rule := range local {
		merged[domain] = rule.Clone()
	}
	for domain, rule := range community {
		existing, ok := merged[domain]
		if !ok || existing.Provenance != ProvenanceLocal || existing.Confidence < rule.Confidence {
			merged[domain] = rule.Clone()
		}
	}
	return merged
}

// ParentDomain reduces a host to its last two dot-separated labels, so
// "login.example.com" falls back to "example.com". Returns "" when the
// domain has no parent to fall back to.
func ParentDomain(domain string) string {
	labels := strings.Split(domain, ".")
	if len(labels) <= 2 {
		return ""
	}
	return strings.Join(labels[len(labels)-2:], ".")
}
