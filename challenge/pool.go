package challenge

import (
	"time"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
)

// Definition is a template from which challenges are issued
type Definition struct {
	Type        core.ChallengeType
	Instruction string
	Difficulty  string
	Params      core.DetectionParams
}

// DefaultPool is the set of actions a subject may be asked to perform
var DefaultPool = []Definition{
	{
		Type:        core.ChallengeBlinkTwice,
		Instruction: "Blink Twice",
		Difficulty:  "easy",
		Params:      core.DetectionParams{Method: "eye_aspect_ratio", Threshold: 0.22, RequiredCount: 2},
	},
	{
		Type:        core.ChallengeSmile,
		Instruction: "Smile",
		Difficulty:  "easy",
		Params:      core.DetectionParams{Method: "expression", Threshold: 0.6, Duration: 1500 * time.Millisecond},
	},
	{
		Type:        core.ChallengeTurnLeft,
		Instruction: "Turn Head Left",
		Difficulty:  "medium",
		Params:      core.DetectionParams{Method: "head_pose", Threshold: 20},
	},
	{
		Type:        core.ChallengeTurnRight,
		Instruction: "Turn Head Right",
		Difficulty:  "medium",
		Params:      core.DetectionParams{Method: "head_pose", Threshold: 20},
	},
	{
		Type:        core.ChallengeOpenMouth,
		Instruction: "Open Your Mouth",
		Difficulty:  "easy",
		Params:      core.DetectionParams{Method: "mouth_opening", Threshold: 0.35},
	},
	{
		Type:        core.ChallengeRaiseEyebrows,
		Instruction: "Raise Eyebrows",
		Difficulty:  "medium",
		Params:      core.DetectionParams{Method: "eyebrow_movement", Threshold: 0.15},
	},
	{
		Type:        core.ChallengeNod,
		Instruction: "Nod Your Head",
		Difficulty:  "medium",
		Params:      core.DetectionParams{Method: "vertical_head_movement", RequiredCount: 2},
	},
	{
		Type:        core.ChallengeLookUp,
		Instruction: "Look Up",
		Difficulty:  "medium",
		Params:      core.DetectionParams{Method: "head_pose", Threshold: 15},
	},
	{
		Type:        core.ChallengeLookDown,
		Instruction: "Look Down",
		Difficulty:  "medium",
		Params:      core.DetectionParams{Method: "head_pose", Threshold: 15},
	},
}

// PoolEntry is the public view of a pool definition
type PoolEntry struct {
	Type        core.ChallengeType `json:"type"`
	Instruction string             `json:"instruction"`
}

// Pool lists the challenges in the default pool
func Pool() []PoolEntry {
	entries := make([]PoolEntry, 0, len(DefaultPool))
	for _, d := range DefaultPool {
		entries = append(entries, PoolEntry{Type: d.Type, Instruction: d.Instruction})
	}
	return entries
}
