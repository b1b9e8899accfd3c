// Package scheduler drives the weekly digest run: the fan-out chain that
// walks due users one step at a time, and the maintenance jobs that keep the
// derived UTC reset pair current.
//
// The MaintenancePayload is the JSON structure sent by EventBridge rules to
// the trigger function. The TaskType determines which job runs.
package scheduler

import "time"

// TaskType identifies which scheduled job should handle an EventBridge event.
type TaskType string

const (
	// TaskTriggerDigests starts the hourly batch chain for users due now.
	TaskTriggerDigests TaskType = "trigger_digests"
	// TaskResyncUTC recomputes every user's UTC reset pair. Scheduled daily so
	// DST transitions are picked up before the affected reset hour.
	TaskResyncUTC TaskType = "resync_utc"
)

// MaintenancePayload is the JSON payload sent by EventBridge. An empty Task
// means TaskTriggerDigests.
//
//	{
//	  "task": "trigger_digests",
//	  "reference_time": "2026-03-09T22:00:00Z"  // optional
//	}
type MaintenancePayload struct {
	Task TaskType `json:"task"`
	// ReferenceTime overrides "now" for manual invocation. If nil, the clock
	// is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}
