package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeHistory_Empty(t *testing.T) {
	stats := SummarizeHistory(nil)
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, 0.0, stats.SuccessRate)
	assert.Nil(t, stats.LastVerification)
}

func TestSummarizeHistory_Rates(t *testing.T) {
	history := []VerificationSession{
		{SessionID: "c", Success: true, ConfidenceScore: 95.25},
		{SessionID: "b", Success: false, ConfidenceScore: 0, FailureReason: FailureTimeout},
		{SessionID: "a", Success: true, ConfidenceScore: 88.5},
	}

	stats := SummarizeHistory(history)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Successful)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 66.7, stats.SuccessRate)
	assert.Equal(t, 91.9, stats.AverageConfidence)
	require.NotNil(t, stats.LastVerification)
	assert.Equal(t, "c", stats.LastVerification.SessionID)
}

func TestSummarizeHistory_Window(t *testing.T) {
	history := make([]VerificationSession, StatsWindow+20)
	for i := range history {
		history[i] = VerificationSession{Success: i < 50}
	}
	stats := SummarizeHistory(history)
	assert.Equal(t, StatsWindow, stats.Total)
	assert.Equal(t, 50, stats.Successful)
	assert.Equal(t, 50.0, stats.SuccessRate)
}

func TestNormalizeIdentity(t *testing.T) {
	id, err := NormalizeIdentity("  0x52908400098527886e0f7030069857d2e4169ee7 ")
	require.NoError(t, err)
	assert.Equal(t, "0x52908400098527886E0F7030069857D2E4169EE7", id)

	id, err = NormalizeIdentity("account-42")
	require.NoError(t, err)
	assert.Equal(t, "account-42", id)

	_, err = NormalizeIdentity("   ")
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestRejectionError_Unwrap(t *testing.T) {
	err := &RejectionError{Kind: RejectReplay, Reasons: []string{"Challenge expired."}}
	assert.ErrorIs(t, err, ErrReplayRejected)
	assert.Equal(t, "replay: Challenge expired.", err.Error())
}
