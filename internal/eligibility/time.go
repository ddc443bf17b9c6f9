package eligibility

import "time"

// BusinessDaysAgo walks back n business days (Monday–Friday) from now,
// preserving the time of day. Used to turn the email window, which is
// expressed in business days, into an absolute cutoff.
func BusinessDaysAgo(now time.Time, n int) time.Time {
	t := now
	for n > 0 {
		t = t.AddDate(0, 0, -1)
		switch t.Weekday() {
		case time.Saturday, time.Sunday:
			continue
		default:
			n--
		}
	}
	return t
}
