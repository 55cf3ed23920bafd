package metadata

import "time"

// PublishHour is the local hour every episode goes live at.
const PublishHour = 17

// PublishTime returns 17:00 on the local calendar day of at in loc,
// expressed in UTC. A zero at means now.
func PublishTime(at time.Time, loc *time.Location) time.Time {
	if at.IsZero() {
		at = time.Now()
	}
	local := at.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), PublishHour, 0, 0, 0, loc).UTC()
}
