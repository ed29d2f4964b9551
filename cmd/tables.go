package cmd

import (
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/example/seat-scheduler/internal/booking"
)

func printTaskSummary(w io.Writer, tasks []booking.Task) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"User", "Floor", "Seat", "Booking Time", "Duration", "Trials", "Interval"})
	for _, t := range tasks {
		table.Append([]string{
			t.UserName,
			t.FloorID,
			t.SeatNumber,
			time.Unix(t.BeginTime, 0).Format("2006-01-02 15:04"),
			strconv.Itoa(t.Duration) + "h",
			strconv.Itoa(t.MaxTrials),
			strconv.Itoa(t.Interval) + "s",
		})
	}
	table.Render()
}

func printResults(w io.Writer, results []booking.Result) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"User", "Seat Info", "Status", "Time", "Duration", "Attempts", "Details"})
	for _, r := range results {
		status := "Failed"
		if r.Success {
			status = "Success"
		} else if r.Cancelled {
			status = "Cancelled"
		}

		attempts := "N/A"
		if r.Attempt > 0 {
			attempts = strconv.Itoa(r.Attempt)
		} else if r.Attempts > 0 {
			attempts = strconv.Itoa(r.Attempts)
		}

		details := r.Err
		if r.Success {
			details = r.Message
		}

		table.Append([]string{
			r.User,
			r.SeatInfo,
			status,
			orNA(r.BookingTime),
			orNA(r.Duration),
			attempts,
			details,
		})
	}
	table.Render()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
