package domain

import "time"

// WholeDaysSince returns the number of complete 24 hour periods between
// sentAt and now. Calendar dates and time zones play no part.
func WholeDaysSince(sentAt, now time.Time) int {
	elapsed := now.Sub(sentAt)
	if elapsed < 0 {
		return -1
	}
	return int(elapsed / (24 * time.Hour))
}

// DueForReminder reports whether a member whose most recent reminder attempt
// is last may be sent another one under an interval of intervalDays.
func DueForReminder(last *LogEntry, found bool, now time.Time, intervalDays int) bool {
	if !found || last == nil {
		return true
	}
	if intervalDays < 1 {
		intervalDays = 1
	}
	return WholeDaysSince(last.SentAt, now) >= intervalDays
}
