package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkRule(domain string, provenance Provenance, confidence float64) *Rule {
	return &Rule{Domain: domain, Provenance: provenance, Confidence: confidence}
}

func TestMergeLayersLocalAlwaysWinsOverBundled(t *testing.T) {
	bundled := map[string]*Rule{"a.com": mkRule("a.com", ProvenanceBundled, 0.9)}
	local := map[string]*Rule{"a.com": mkRule("a.com", ProvenanceLocal, 0.1)}

	merged := MergeLayers(bundled, local, nil)
	require.Contains(t, merged, "a.com")
	assert.Equal(t, ProvenanceLocal, merged["a.com"].Provenance)
	assert.Equal(t, 0.1, merged["a.com"].Confidence)
}

func TestMergeLayersCommunityFillsGaps(t *testing.T) {
	community := map[string]*Rule{"new.com": mkRule("new.com", ProvenanceCommunity, 0.6)}

	merged := MergeLayers(nil, nil, community)
	assert.Contains(t, merged, "new.com")
}

func TestMergeLayersCommunityNeedsStrictlyHigherConfidenceThanLocal(t *testing.T) {
	local := map[string]*Rule{
		"tie.com":  mkRule("tie.com", ProvenanceLocal, 0.5),
		"low.com":  mkRule("low.com", ProvenanceLocal, 0.3),
		"high.com": mkRule("high.com", ProvenanceLocal, 0.9),
	}
	community := map[string]*Rule{
		"tie.com":  mkRule("tie.com", ProvenanceCommunity, 0.5),
		"low.com":  mkRule("low.com", ProvenanceCommunity, 0.8),
		"high.com": mkRule("high.com", ProvenanceCommunity, 0.4),
	}

	merged := MergeLayers(nil, local, community)
	assert.Equal(t, ProvenanceLocal, merged["tie.com"].Provenance, "equal confidence keeps local")
	assert.Equal(t, ProvenanceCommunity, merged["low.com"].Provenance, "strictly higher replaces local")
	assert.Equal(t, ProvenanceLocal, merged["high.com"].Provenance)
}

func TestMergeLayersCommunityReplacesBundled(t *testing.T) {
	bundled := map[string]*Rule{"a.com": mkRule("a.com", ProvenanceBundled, 0.9)}
	community := map[string]*Rule{"a.com": mkRule("a.com", ProvenanceCommunity, 0.2)}

	merged := MergeLayers(bundled, nil, community)
	assert.Equal(t, ProvenanceCommunity, merged["a.com"].Provenance)
}

func TestMergeLayersNeverDeletes(t *testing.T) {
	bundled := map[string]*Rule{
		"a.com": mkRule("a.com", ProvenanceBundled, 0.7),
		"b.com": mkRule("b.com", ProvenanceBundled, 0.7),
	}
	local := map[string]*Rule{"c.com": mkRule("c.com", ProvenanceLocal, 1.0)}

	merged := MergeLayers(bundled, local, nil)
	assert.Len(t, merged, 3)
}

func TestMergeLayersDoesNotAliasInputs(t *testing.T) {
	local := map[string]*Rule{"a.com": mkRule("a.com", ProvenanceLocal, 0.5)}
	merged := MergeLayers(nil, local, nil)

	merged["a.com"].Confidence = 0.99
	assert.Equal(t, 0.5, local["a.com"].Confidence)
}

func TestParentDomain(t *testing.T) {
	assert.Equal(t, "example.com", ParentDomain("login.example.com"))
	assert.Equal(t, "example.com", ParentDomain("a.b.example.com"))
	assert.Equal(t, "", ParentDomain("example.com"))
	assert.Equal(t, "", ParentDomain("localhost"))
}
