package booking

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/example/seat-scheduler/internal/config"
)

// Task blocks are separated by "---"; each block is a set of `key = value`
// pairs, one per line.
var (
	blockSep  = regexp.MustCompile(`---`)
	pairRegex = regexp.MustCompile(`(\w+)\s*=\s*(\S+)`)
)

// FieldError reports one invalid or missing field in a task record.
type FieldError struct {
	Field  string
	Reason string
}

// FieldErrors aggregates per-field problems so a bad record fails with the
// full list instead of the first hit.
type FieldErrors []FieldError

func (fe FieldErrors) Error() string {
	parts := make([]string, len(fe))
	for i, e := range fe {
		parts[i] = fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return "invalid task record: " + strings.Join(parts, "; ")
}

// ParseTasks parses a task-list configuration string into normalized,
// ready-to-run tasks. Bad blocks are logged and skipped; the remaining blocks
// still parse. An input with no valid tasks is an error.
func ParseTasks(input string, cfg *config.Config, now time.Time) ([]Task, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("configuration is empty")
	}

	var tasks []Task
	blocks := blockSep.Split(input, -1)
	for i, block := range blocks {
		if strings.TrimSpace(block) == "" {
			continue
		}
		rec := map[string]string{}
		for _, m := range pairRegex.FindAllStringSubmatch(block, -1) {
			rec[m[1]] = m[2]
		}
		if len(rec) == 0 {
			slog.Warn("empty configuration block", "block", i+1)
			continue
		}

		task, err := taskFromRecord(rec)
		if err != nil {
			slog.Error("configuration block rejected", "block", i+1, "error", err)
			continue
		}
		tasks = append(tasks, task.Normalize(cfg.PolicyFor(task.FloorID), now)...)
	}

	if len(tasks) == 0 {
		return nil, fmt.Errorf("no valid tasks found in configuration")
	}
	return tasks, nil
}

// taskFromRecord validates a raw key/value record into a Task, collecting all
// field-level problems.
func taskFromRecord(rec map[string]string) (Task, error) {
	var errs FieldErrors

	require := func(key string) string {
		v := rec[key]
		if v == "" {
			errs = append(errs, FieldError{key, "required"})
		}
		return v
	}
	number := func(key string, def, min, max int64) int64 {
		v, ok := rec[key]
		if !ok || v == "" {
			return def
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, FieldError{key, "not a number"})
			return def
		}
		if n < min || n > max {
			errs = append(errs, FieldError{key, fmt.Sprintf("must be %d-%d", min, max)})
		}
		return n
	}

	t := Task{
		UserName:   require("user_name"),
		Password:   require("password"),
		FloorID:    require("floor_id"),
		SeatNumber: require("seat_number"),
	}

	if v := require("begin_time"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		switch {
		case err != nil:
			errs = append(errs, FieldError{"begin_time", "not a number"})
		case (n < 0 || n > 23) && n <= earliestTimestamp:
			errs = append(errs, FieldError{"begin_time", "must be 0-23 (hour) or a unix timestamp"})
		default:
			t.BeginTime = n
		}
	}

	if v := require("duration"); v != "" {
		t.Duration = int(number("duration", 0, 1, 12))
	}
	t.MaxTrials = int(number("max_trials", 3, 1, 100))
	t.Interval = int(number("interval", 2, 1, 60))

	if len(errs) > 0 {
		return Task{}, errs
	}
	return t, nil
}
