// Package trace provides push-trace recording for post-run analysis.
// It has no dependencies on sim/ and stores pure data types.
package trace

// PushRecord captures a single push as it was drained into the waiting queues.
type PushRecord struct {
	Step         int    `json:"step"`
	Clock        int64  `json:"clock"`
	Label        string `json:"label"`
	Target       string `json:"target"`
	DueTick      int64  `json:"due_tick"`
	Origin       int    `json:"origin"`
	IndividualID int    `json:"individual_id,omitempty"`
	Resolved     bool   `json:"resolved"`
}
