package driven

import "time"

// CheckRecorder receives a summary of each completed stale-key check.
type CheckRecorder interface {
	RecordCheck(records, failures, stale int, duration time.Duration)
}
