package queue

import "time"

// SetClock replaces the queue clock
func SetClock(q *Queue, now func() time.Time) {
	q.now = now
}
