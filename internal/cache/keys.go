package cache

import "fmt"

// WindowKey addresses the cached record list for one user and week offset.
func WindowKey(userID string, offset int) string {
	return fmt.Sprintf("window:%s:%d", userID, offset)
}

// ScheduleKey addresses a cached UserSchedule.
func ScheduleKey(userID string) string {
	return "schedule:" + userID
}

// ConfirmKey addresses the rotating confirmation-message index for a user.
func ConfirmKey(userID string) string {
	return "confirm:" + userID
}
