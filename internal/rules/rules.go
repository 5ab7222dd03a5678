// Package rules holds the keyword tables that map free-text feedback notes
// to issue tags, plus the fixed analysis constants that are part of the
// flywheel's contract rather than operator configuration.
//
// The built-in tables can be replaced by a YAML file and hot-reloaded while
// the daemon runs; the constants cannot.
package rules

// Fixed analysis constants. These define the flywheel's semantics and are
// deliberately not configurable: changing them changes what "declining" or
// "low quality" means across every deployment.
const (
	// TrendDelta is the half-mean difference beyond which a batch trend
	// counts as improving or declining.
	TrendDelta = 0.2

	// MinTrendBatch is the smallest batch for which a trend is computed.
	// Smaller batches report insufficient data.
	MinTrendBatch = 5

	// LowSatisfactionScore is the per-entry score under which an entry
	// counts toward the low-quality share.
	LowSatisfactionScore = 3.0

	// LowQualityShare is the fraction of low-scoring entries above which
	// a batch is flagged.
	LowQualityShare = 0.20

	// TopIssueTags is how many of the most frequent issue tags are
	// considered for prompt-optimization actions.
	TopIssueTags = 3

	// IssueTagMinCount is the occurrence count an issue tag must exceed
	// before it generates an action.
	IssueTagMinCount = 5
)

// TagRules is one versioned keyword table: issue tag to the lowercase
// keywords that mark it.
type TagRules struct {
	Version int                 `koanf:"version"`
	Tags    map[string][]string `koanf:"tags"`
}

// DefaultRules returns the built-in issue-tag keyword table.
func DefaultRules() *TagRules {
	return &TagRules{
		Version: 1,
		Tags: map[string][]string{
			"accuracy":     {"wrong", "incorrect", "inaccurate", "mistake", "error"},
			"relevance":    {"irrelevant", "not helpful", "off topic", "unrelated"},
			"completeness": {"incomplete", "missing", "partial", "unfinished"},
			"clarity":      {"unclear", "confusing", "hard to understand", "complex"},
			"speed":        {"slow", "delayed", "takes too long", "timeout"},
		},
	}
}
