package analysis

import (
	"sort"

	"github.com/fyrsmithlabs/flywheeld/internal/feedback"
	"github.com/fyrsmithlabs/flywheeld/internal/rules"
)

// classifyTrend orders the batch by submission time, splits it in half,
// and compares satisfaction means. Batches smaller than
// rules.MinTrendBatch cannot be split meaningfully.
func classifyTrend(batch []*feedback.Entry) Trend {
	if len(batch) < rules.MinTrendBatch {
		return TrendInsufficient
	}

	ordered := make([]*feedback.Entry, len(batch))
	copy(ordered, batch)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	// The first half takes the extra element on odd batch sizes.
	mid := (len(ordered) + 1) / 2
	first := meanSatisfaction(ordered[:mid])
	second := meanSatisfaction(ordered[mid:])

	switch diff := second - first; {
	case diff > rules.TrendDelta:
		return TrendImproving
	case diff < -rules.TrendDelta:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func meanSatisfaction(entries []*feedback.Entry) float64 {
	if len(entries) == 0 {
		return 0
	}
	var sum float64
	for _, e := range entries {
		sum += e.Satisfaction
	}
	return sum / float64(len(entries))
}

// issueCount pairs a tag with how many batch entries matched it.
type issueCount struct {
	tag   string
	count int
}

// topIssues returns the n most frequent tags, count descending with ties
// broken by tag name so action generation is deterministic.
func topIssues(counts map[string]int, n int) []issueCount {
	out := make([]issueCount, 0, len(counts))
	for tag, count := range counts {
		out = append(out, issueCount{tag: tag, count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].tag < out[j].tag
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
