package core

import "time"

// Failure reasons recorded on unsuccessful sessions. Fail-closed rejections
// record their RejectionKind
const (
	FailureTimeout  = "timeout"
	FailureLowScore = "low_score"
	FailureAborted  = "aborted"
)

// VerificationSession is an append-only history entry, one per concluded
// attempt
type VerificationSession struct {
	SessionID       string        `json:"sessionId"`
	Identity        string        `json:"identity"`
	ChallengeType   ChallengeType `json:"challengeType"`
	ChallengeID     string        `json:"challengeId"`
	Success         bool          `json:"success"`
	ConfidenceScore float64       `json:"confidenceScore"`
	MatchScore      float64       `json:"matchScore"`
	LivenessScore   float64       `json:"livenessScore"`
	DurationSeconds float64       `json:"durationSeconds"`
	FailureReason   string        `json:"failureReason,omitempty"`
	Timestamp       time.Time     `json:"timestamp"`
}

// Enrollment is the stored biometric template of an identity
type Enrollment struct {
	Identity           string     `json:"identity"`
	Template           Descriptor `json:"template"`
	Algorithm          string     `json:"algorithm"`
	Version            string     `json:"version"`
	QualityScore       float64    `json:"qualityScore"`
	FramesUsed         int        `json:"framesUsed"`
	RegisteredAt       time.Time  `json:"registeredAt"`
	LastVerification   *time.Time `json:"lastVerification,omitempty"`
	TotalVerifications int        `json:"totalVerifications"`
	FailedAttempts     int        `json:"failedAttempts"`
}

// SecurityEvent records a rejected attempt for auditing
type SecurityEvent struct {
	Identity    string        `json:"identity"`
	Kind        RejectionKind `json:"kind"`
	ChallengeID string        `json:"challengeId,omitempty"`
	Reasons     []string      `json:"reasons"`
	Timestamp   time.Time     `json:"timestamp"`
}
