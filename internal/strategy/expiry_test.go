package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestLastThursday(t *testing.T) {
	tests := []struct {
		year  int
		month time.Month
		want  time.Time
	}{
		{2024, time.January, date(2024, 1, 25)},
		{2024, time.February, date(2024, 2, 29)},
		{2023, time.December, date(2023, 12, 28)},
		{2023, time.August, date(2023, 8, 31)},
	}
	for _, tt := range tests {
		got := LastThursday(tt.year, tt.month)
		assert.Equal(t, tt.want, got, "%d-%02d", tt.year, tt.month)
		assert.Equal(t, time.Thursday, got.Weekday())
	}
}

func TestNextMonthlyExpiry(t *testing.T) {
	assert.Equal(t, date(2024, 2, 29), NextMonthlyExpiry(date(2024, 2, 1)))
	assert.Equal(t, date(2024, 2, 29), NextMonthlyExpiry(date(2024, 2, 20)))
	assert.Equal(t, date(2024, 3, 28), NextMonthlyExpiry(date(2024, 2, 21)))
	assert.Equal(t, date(2024, 1, 25), NextMonthlyExpiry(date(2023, 12, 21)))
}
