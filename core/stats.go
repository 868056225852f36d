package core

import "github.com/shopspring/decimal"

// StatsWindow is the number of most recent sessions summarized by stats
const StatsWindow = 100

// Stats aggregates an identity's verification history
type Stats struct {
	Total             int                  `json:"total"`
	Successful        int                  `json:"successful"`
	Failed            int                  `json:"failed"`
	SuccessRate       float64              `json:"successRate"`
	AverageConfidence float64              `json:"averageConfidence"`
	LastVerification  *VerificationSession `json:"lastVerification,omitempty"`
}

// SummarizeHistory computes stats over history, which must be ordered
// newest first
func SummarizeHistory(history []VerificationSession) Stats {
	if len(history) > StatsWindow {
		history = history[:StatsWindow]
	}
	stats := Stats{Total: len(history)}
	if len(history) == 0 {
		return stats
	}

	confidence := decimal.Zero
	for _, s := range history {
		if s.Success {
			stats.Successful++
			confidence = confidence.Add(decimal.NewFromFloat(s.ConfidenceScore))
		}
	}
	stats.Failed = stats.Total - stats.Successful
	stats.SuccessRate = decimal.NewFromInt(int64(stats.Successful)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(stats.Total))).
		Round(1).
		InexactFloat64()
	if stats.Successful > 0 {
		stats.AverageConfidence = confidence.
			Div(decimal.NewFromInt(int64(stats.Successful))).
			Round(1).
			InexactFloat64()
	}
	last := history[0]
	stats.LastVerification = &last
	return stats
}
