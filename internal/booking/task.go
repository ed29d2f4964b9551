// Package booking models reservation tasks and drives them through the
// login → resolve → wait → attempt pipeline.
package booking

import (
	"fmt"
	"time"

	"github.com/example/seat-scheduler/internal/config"
)

// earliestTimestamp separates hour-of-day begin times (0-23) from absolute
// unix timestamps.
const earliestTimestamp = 1_000_000_000

// Task is one unit of booking work. After Normalize, BeginTime is always an
// absolute unix timestamp and DaysAhead carries the floor's window policy.
type Task struct {
	UserName   string
	Password   string
	FloorID    string
	SeatNumber string
	BeginTime  int64 // hour 0-23 before Normalize, unix timestamp after
	Duration   int   // hours
	MaxTrials  int
	Interval   int // seconds between attempts

	DaysAhead int
}

// Validate checks field ranges on a freshly parsed task.
func (t Task) Validate() error {
	if t.UserName == "" {
		return fmt.Errorf("user_name required")
	}
	if t.Password == "" {
		return fmt.Errorf("password required")
	}
	if t.FloorID == "" {
		return fmt.Errorf("floor_id required")
	}
	if t.SeatNumber == "" {
		return fmt.Errorf("seat_number required")
	}
	if !(t.BeginTime >= 0 && t.BeginTime <= 23) && t.BeginTime <= earliestTimestamp {
		return fmt.Errorf("begin_time must be 0-23 (hour) or a unix timestamp")
	}
	if t.Duration < 1 || t.Duration > 12 {
		return fmt.Errorf("duration must be 1-12 hours")
	}
	if t.MaxTrials < 1 || t.MaxTrials > 100 {
		return fmt.Errorf("max_trials must be 1-100")
	}
	if t.Interval < 1 || t.Interval > 60 {
		return fmt.Errorf("interval must be 1-60 seconds")
	}
	return nil
}

// SeatInfo is the human-readable seat descriptor used in results.
func (t Task) SeatInfo() string {
	return fmt.Sprintf("Floor %s, Seat %s", t.FloorID, t.SeatNumber)
}

// Normalize applies the floor policy and splits the task into bookable
// sub-tasks. Hour-format begin times are converted to an absolute timestamp
// DaysAhead days out (shifted one more day if that moment already passed),
// and durations beyond the policy cap are split into contiguous chunks whose
// durations sum to the original request.
func (t Task) Normalize(pol config.FloorPolicy, now time.Time) []Task {
	t.DaysAhead = pol.DaysAhead

	begin := t.BeginTime
	if begin <= 23 {
		target := now.AddDate(0, 0, pol.DaysAhead)
		at := time.Date(target.Year(), target.Month(), target.Day(), int(begin), 0, 0, 0, now.Location())
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		begin = at.Unix()
	}

	maxPer := pol.MaxDurationHours
	if maxPer <= 0 || t.Duration <= maxPer {
		t.BeginTime = begin
		return []Task{t}
	}

	var out []Task
	remaining := t.Duration
	for remaining > 0 {
		chunk := remaining
		if chunk > maxPer {
			chunk = maxPer
		}
		sub := t
		sub.BeginTime = begin
		sub.Duration = chunk
		out = append(out, sub)

		remaining -= chunk
		begin += int64(chunk) * 3600
	}
	return out
}
