package booking

import (
	"fmt"
	"time"
)

// Result is the terminal outcome of one task. It is produced once per
// pipeline run and never mutated afterwards.
type Result struct {
	Success   bool
	Cancelled bool

	User     string
	SeatInfo string

	// Set on success.
	BookingTime string // "2006-01-02 15:04"
	Duration    string // e.g. "4h"
	Attempt     int    // 1-based successful attempt index
	Message     string

	// Set on failure.
	Attempts int // attempts exhausted
	Err      string
}

func successResult(t Task, attempt int) Result {
	return Result{
		Success:     true,
		User:        t.UserName,
		SeatInfo:    t.SeatInfo(),
		BookingTime: time.Unix(t.BeginTime, 0).Format("2006-01-02 15:04"),
		Duration:    fmt.Sprintf("%dh", t.Duration),
		Attempt:     attempt,
		Message:     "Seat reservation successful",
	}
}

func failureResult(t Task, reason string) Result {
	return Result{
		User:     t.UserName,
		SeatInfo: t.SeatInfo(),
		Err:      reason,
	}
}

func cancelledResult(t Task) Result {
	r := failureResult(t, "task cancelled")
	r.Cancelled = true
	return r
}
