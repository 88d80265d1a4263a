package util

import (
	"time"

	"github.com/jinzhu/now"
)

// Datetime related utility functions.
// General convention for date functions - suffix Z if utc based.
const (
	DATETIME_FORMAT_YYYYMMDD_HYPHEN string = "2006-01-02"
	DATETIME_FORMAT_YYYYMMDD        string = "20060102"
)

// TimeNowZ Return current time in UTC. Should be used everywhere to avoid
// local timezone.
func TimeNowZ() time.Time {
	return time.Now().UTC()
}

// TimeNowUnix Returns current epoch time.
func TimeNowUnix() int64 {
	return TimeNowZ().Unix()
}

func UnixTimeBeforeDuration(duration time.Duration) int64 {
	return TimeNowUnix() - int64(duration.Seconds())
}

// GetDateOnlyFromTimestampZ Returns date in YYYY-MM-DD format. Used as the
// suffix of conversion date index keys.
func GetDateOnlyFromTimestampZ(timestamp int64) string {
	return time.Unix(timestamp, 0).UTC().Format(DATETIME_FORMAT_YYYYMMDD_HYPHEN)
}

// GetDatesInRangeZ Returns day starts between from and to, both inclusive,
// as YYYY-MM-DD. Day boundaries are UTC.
func GetDatesInRangeZ(from, to int64) []string {
	dates := make([]string, 0)
	if from > to {
		return dates
	}

	day := now.New(time.Unix(from, 0).UTC()).BeginningOfDay()
	end := time.Unix(to, 0).UTC()
	for !day.After(end) {
		dates = append(dates, day.Format(DATETIME_FORMAT_YYYYMMDD_HYPHEN))
		day = day.AddDate(0, 0, 1)
	}
	return dates
}
