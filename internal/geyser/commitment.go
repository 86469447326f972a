package geyser

import "strings"

// CommitmentLevel is the confirmation-depth tier requested from the upstream
// feed and reported on slot updates.
type CommitmentLevel int32

const (
	CommitmentProcessed CommitmentLevel = 0
	CommitmentConfirmed CommitmentLevel = 1
	CommitmentFinalized CommitmentLevel = 2
)

// ParseCommitmentLevel maps a configuration string onto a commitment level.
// Unrecognized values degrade to CommitmentProcessed, the least strict tier,
// rather than failing; the feed treats an absent commitment the same way.
func ParseCommitmentLevel(s string) CommitmentLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CONFIRMED":
		return CommitmentConfirmed
	case "FINALIZED":
		return CommitmentFinalized
	default:
		return CommitmentProcessed
	}
}

func (c CommitmentLevel) String() string {
	switch c {
	case CommitmentConfirmed:
		return "CONFIRMED"
	case CommitmentFinalized:
		return "FINALIZED"
	default:
		return "PROCESSED"
	}
}
