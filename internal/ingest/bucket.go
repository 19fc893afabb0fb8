// Package ingest implements C4 (SessionEngine) and C5 (RollupEngine), the
// transactional core that turns one accepted event into signed metric and
// dimension deltas and applies them to the rollup cubes.
package ingest

import "time"

// bucketKey is the (date, hour) pair a timestamp falls into, per §4.4's
// bucketKey(t) = (date(t), hour(t)) definition. date is formatted
// YYYY-MM-DD; hour is 0-23, both in UTC.
type bucketKey struct {
	date string
	hour int
}

func newBucketKey(tsMs int64) bucketKey {
	t := time.UnixMilli(tsMs).UTC()
	return bucketKey{date: t.Format("2006-01-02"), hour: t.Hour()}
}

func (b bucketKey) equal(other bucketKey) bool {
	return b.date == other.date && b.hour == other.hour
}
