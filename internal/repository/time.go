package repository

import "time"

// nowMs returns the current time as milliseconds since epoch, UTC.
func nowMs() int64 {
	return time.Now().UTC().UnixMilli()
}
