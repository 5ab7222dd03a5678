// Package validation periodically checks recently completed improvement
// actions and records whether their effect held up.
package validation

import "time"

// StatusPassed is the validation status recorded for actions whose
// post-completion checks succeeded.
const StatusPassed = "passed"

// Record is the outcome of validating one completed action during one
// check cycle.
type Record struct {
	ActionID            string    `json:"action_id"`
	Status              string    `json:"status"`
	ImprovementVerified bool      `json:"improvement_verified"`
	ValidatedAt         time.Time `json:"validated_at"`
}
