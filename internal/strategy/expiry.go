package strategy

import "time"

// LastThursday returns the last Thursday of month, the monthly F&O expiry.
func LastThursday(year int, month time.Month) time.Time {
	// day 0 of the next month is the last day of this one
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	offset := (int(last.Weekday()) - int(time.Thursday) + 7) % 7
	return last.AddDate(0, 0, -offset)
}

// NextMonthlyExpiry returns the expiry a position opened on date would write.
// After the 20th the current month is too short, so the next month is used.
func NextMonthlyExpiry(date time.Time) time.Time {
	year, month := date.Year(), date.Month()
	if date.Day() > 20 {
		month++
		if month > time.December {
			month = time.January
			year++
		}
	}
	return LastThursday(year, month)
}
