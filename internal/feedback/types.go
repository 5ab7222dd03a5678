// Package feedback defines user feedback entries, the pending queue shared
// with the analyzer, and the ingestor that normalizes and persists incoming
// feedback.
package feedback

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a feedback entry.
type Kind string

const (
	KindPositive   Kind = "positive"
	KindNegative   Kind = "negative"
	KindNeutral    Kind = "neutral"
	KindCorrection Kind = "correction"
)

// NormalizeKind maps a raw kind string onto the closed enumeration.
// Absent or unrecognized values become neutral so ingestion stays lossless.
func NormalizeKind(raw string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindPositive:
		return KindPositive
	case KindNegative:
		return KindNegative
	case KindNeutral:
		return KindNeutral
	case KindCorrection:
		return KindCorrection
	default:
		return KindNeutral
	}
}

// Entry is one user-supplied satisfaction signal tied to one interaction.
// Entries are immutable once created; the analyzer only reads them.
type Entry struct {
	ID            string `json:"id"`
	InteractionID string `json:"interaction_id"`
	UserID        string `json:"user_id"`
	Kind          Kind   `json:"kind"`

	// Satisfaction is nominally 1-5 but stored as given; out-of-range
	// values are computed on, not rejected.
	Satisfaction float64 `json:"satisfaction"`

	Note        string         `json:"note,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Context     map[string]any `json:"context,omitempty"`
}

// DeriveID produces the content-derived entry id: a 16-byte hex prefix of
// the SHA-256 over interaction ref, user ref, and capture time. Including
// the timestamp keeps concurrently-ingested feedback for the same
// interaction from colliding.
func DeriveID(interactionRef, userRef string, at time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s_%s_%s", interactionRef, userRef, at.Format(time.RFC3339Nano))))
	return hex.EncodeToString(sum[:16])
}
