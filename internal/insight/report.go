package insight

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// DefaultReportDays is the report window when the caller does not give
// one.
const DefaultReportDays = 7

// Anomaly detection bounds.
const (
	anomalyMinSample     = 10
	anomalySigma         = 3.0
	anomalyErrorRateMax  = 0.10
	anomalyWindow        = 24 * time.Hour
	severityHigh         = "high"
	anomalyResponseTime  = "high_response_time"
	anomalyHighErrorRate = "high_error_rate"
)

type dayAccumulator struct {
	count   int
	errors  int
	respSum float64
	respN   int
}

// Report aggregates interactions over the trailing days window. A
// window with no interactions yields a zero-valued report, not an
// error.
func (s *Service) Report(ctx context.Context, days int) (*PerformanceReport, error) {
	if days < 1 {
		days = DefaultReportDays
	}

	ctx, span := s.tracer.Start(ctx, "insight.report")
	defer span.End()

	since := time.Now().UTC().AddDate(0, 0, -days)
	records, err := s.store.InteractionsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("loading interactions: %w", err)
	}

	span.SetAttributes(
		attribute.Int("report.days", days),
		attribute.Int("report.interactions", len(records)),
	)

	report := &PerformanceReport{
		PeriodDays:        days,
		TotalInteractions: len(records),
	}
	if len(records) == 0 {
		return report, nil
	}

	var (
		errorCount int
		respSum    float64
		respN      int
		tokenSum   int
		satSum     float64
		satN       int
	)
	qualitySum := make(map[string]float64)
	qualityN := make(map[string]int)
	daily := make(map[string]*dayAccumulator)

	for _, rec := range records {
		if rec.Failed() {
			errorCount++
		}
		// Zero processing times mean the platform did not measure; they
		// would drag the mean toward zero.
		if rec.ProcessingTimeMs > 0 {
			respSum += rec.ProcessingTimeMs
			respN++
		}
		tokenSum += rec.TokensUsed
		for name, score := range rec.QualityScores {
			qualitySum[name] += score
			qualityN[name]++
		}
		if rec.Satisfaction != nil {
			satSum += *rec.Satisfaction
			satN++
		}

		day := rec.Timestamp.UTC().Format("2006-01-02")
		acc := daily[day]
		if acc == nil {
			acc = &dayAccumulator{}
			daily[day] = acc
		}
		acc.count++
		if rec.Failed() {
			acc.errors++
		}
		if rec.ProcessingTimeMs > 0 {
			acc.respSum += rec.ProcessingTimeMs
			acc.respN++
		}
	}

	report.ErrorRatePercent = float64(errorCount) / float64(len(records)) * 100
	if respN > 0 {
		report.AvgResponseTimeMs = respSum / float64(respN)
	}
	report.AvgTokens = float64(tokenSum) / float64(len(records))
	if len(qualitySum) > 0 {
		report.AvgQualityScores = make(map[string]float64, len(qualitySum))
		for name, sum := range qualitySum {
			report.AvgQualityScores[name] = sum / float64(qualityN[name])
		}
	}
	if satN > 0 {
		report.AvgSatisfaction = satSum / float64(satN)
	}

	report.Daily = make(map[string]DayStat, len(daily))
	for day, acc := range daily {
		stat := DayStat{Interactions: acc.count, Errors: acc.errors}
		if acc.respN > 0 {
			stat.AvgResponseTime = acc.respSum / float64(acc.respN)
		}
		report.Daily[day] = stat
	}

	return report, nil
}

// Anomalies scans the last 24 hours for response-time outliers and
// error-rate spikes. Fewer than ten interactions is too small a sample
// to flag anything.
func (s *Service) Anomalies(ctx context.Context) ([]Anomaly, error) {
	ctx, span := s.tracer.Start(ctx, "insight.anomalies")
	defer span.End()

	records, err := s.store.InteractionsSince(ctx, time.Now().UTC().Add(-anomalyWindow))
	if err != nil {
		return nil, fmt.Errorf("loading interactions: %w", err)
	}
	if len(records) < anomalyMinSample {
		return nil, nil
	}

	var anomalies []Anomaly

	var times []float64
	for _, rec := range records {
		if rec.ProcessingTimeMs > 0 {
			times = append(times, rec.ProcessingTimeMs)
		}
	}
	if len(times) >= 2 {
		mean := meanOf(times)
		threshold := mean + anomalySigma*sampleStddev(times, mean)
		for _, rec := range records {
			if rec.ProcessingTimeMs > threshold {
				anomalies = append(anomalies, Anomaly{
					Type:          anomalyResponseTime,
					InteractionID: rec.ID,
					Value:         rec.ProcessingTimeMs,
					Threshold:     threshold,
					Severity:      severityHigh,
				})
			}
		}
	}

	errorCount := 0
	for _, rec := range records {
		if rec.Failed() {
			errorCount++
		}
	}
	if rate := float64(errorCount) / float64(len(records)); rate > anomalyErrorRateMax {
		anomalies = append(anomalies, Anomaly{
			Type:      anomalyHighErrorRate,
			Value:     rate,
			Threshold: anomalyErrorRateMax,
			Severity:  severityHigh,
		})
	}

	span.SetAttributes(attribute.Int("anomalies.found", len(anomalies)))
	return anomalies, nil
}

// Recommendations derives improvement suggestions from the trailing
// seven-day report.
func (s *Service) Recommendations(ctx context.Context) ([]Recommendation, error) {
	report, err := s.Report(ctx, DefaultReportDays)
	if err != nil {
		return nil, err
	}
	return s.recommendFrom(report), nil
}

func (s *Service) recommendFrom(report *PerformanceReport) []Recommendation {
	if report.TotalInteractions == 0 {
		return nil
	}

	var recs []Recommendation

	if report.AvgResponseTimeMs > s.cfg.ResponseTimeLimitMs {
		recs = append(recs, Recommendation{
			Area:        "performance",
			Priority:    "high",
			Suggestion:  "optimize the response generation pipeline; average latency is above the serving limit",
			Current:     report.AvgResponseTimeMs,
			TargetValue: s.cfg.ResponseTimeTargetMs,
		})
	}

	if report.ErrorRatePercent > s.cfg.ErrorRateLimit*100 {
		recs = append(recs, Recommendation{
			Area:        "reliability",
			Priority:    "critical",
			Suggestion:  "investigate and fix the dominant error sources",
			Current:     report.ErrorRatePercent,
			TargetValue: s.cfg.ErrorRateTarget * 100,
		})
	}

	if report.AvgSatisfaction > 0 && report.AvgSatisfaction < s.cfg.SatisfactionFloor {
		recs = append(recs, Recommendation{
			Area:        "user_experience",
			Priority:    "high",
			Suggestion:  "review low-satisfaction feedback and retrain on the recurring themes",
			Current:     report.AvgSatisfaction,
			TargetValue: s.cfg.SatisfactionTarget,
		})
	}

	for _, name := range sortedKeys(report.AvgQualityScores) {
		if score := report.AvgQualityScores[name]; score < s.cfg.QualityFloor {
			recs = append(recs, Recommendation{
				Area:        "quality",
				Priority:    "medium",
				Suggestion:  fmt.Sprintf("improve %s scores through targeted prompt and knowledge updates", name),
				Current:     score,
				TargetValue: s.cfg.QualityTarget,
			})
		}
	}

	return recs
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStddev is the n-1 standard deviation.
func sampleStddev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
