package booking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// statusOK mirrors the API's success code.
const statusOK = "ok"

// maxConcurrent caps in-flight pipelines per batch. Fixed admission control
// to keep the external API comfortable, not derived from task count.
const maxConcurrent = 10

// windowOpenHour is the local hour at which the booking window opens,
// DaysAhead days before the target date.
const windowOpenHour = 20

// Client is one authenticated session against the booking API.
type Client interface {
	Login(ctx context.Context, username, password string) (string, error)
	Reserve(ctx context.Context, beginTime int64, durationHours int, seatID int64) (string, error)
}

// SeatResolver maps a floor identifier and seat number to a seat id, zero on
// any miss.
type SeatResolver interface {
	SeatID(ctx context.Context, floorID, seatNumber string) int64
}

// Service runs booking tasks. Each task's pipeline owns a fresh Client; only
// the resolver (and the topology cache behind it) is shared.
type Service struct {
	resolver  SeatResolver
	newClient func() Client
	log       *slog.Logger

	// GlobalRetries > 1 routes every task through RunWithRetry.
	GlobalRetries int

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewService(resolver SeatResolver, newClient func() Client, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		resolver:      resolver,
		newClient:     newClient,
		log:           log.With("component", "booking"),
		GlobalRetries: 1,
		sleep:         sleepCtx,
		now:           time.Now,
	}
}

// RunTask drives one task through login → resolve → wait → attempt.
func (s *Service) RunTask(ctx context.Context, t Task) Result {
	log := s.log.With("user", t.UserName, "floor_id", t.FloorID, "seat", t.SeatNumber)
	log.Info("starting booking task")

	client := s.newClient()

	if _, err := client.Login(ctx, t.UserName, t.Password); err != nil {
		if ctx.Err() != nil {
			return cancelledResult(t)
		}
		log.Error("login failed", "error", err)
		return failureResult(t, fmt.Sprintf("%s: %v", ErrLoginFailed, err))
	}

	seatID := s.resolver.SeatID(ctx, t.FloorID, t.SeatNumber)
	if seatID == 0 {
		if ctx.Err() != nil {
			return cancelledResult(t)
		}
		return failureResult(t, ErrSeatNotFound.Error())
	}

	if err := s.awaitWindow(ctx, t); err != nil {
		return cancelledResult(t)
	}

	return s.attempt(ctx, client, t, seatID)
}

// awaitWindow sleeps until the booking window opens: 20:00 local, DaysAhead
// days before the target date. Window math never aborts a task; anything
// suspicious degrades to proceeding immediately. The only error returned is
// cancellation.
func (s *Service) awaitWindow(ctx context.Context, t Task) error {
	if t.BeginTime <= earliestTimestamp {
		s.log.Warn("begin time is not an absolute timestamp, proceeding immediately",
			"user", t.UserName, "begin_time", t.BeginTime)
		return nil
	}

	now := s.now()
	begin := time.Unix(t.BeginTime, 0).In(now.Location())
	openDay := begin.AddDate(0, 0, -t.DaysAhead)
	opensAt := time.Date(openDay.Year(), openDay.Month(), openDay.Day(), windowOpenHour, 0, 0, 0, now.Location())

	if !now.Before(opensAt) {
		s.log.Info("booking window already open", "user", t.UserName)
		return nil
	}

	wait := opensAt.Sub(now)
	s.log.Info("waiting for booking window",
		"user", t.UserName, "opens_at", opensAt.Format("2006-01-02 15:04:05"), "wait", wait.Round(time.Second))
	return s.sleep(ctx, wait)
}

// attempt issues up to MaxTrials reservation calls, sleeping Interval seconds
// between attempts (never after the last one).
func (s *Service) attempt(ctx context.Context, client Client, t Task, seatID int64) Result {
	log := s.log.With("user", t.UserName, "seat_id", seatID)
	lastReason := "unknown error"

	for attempt := 1; attempt <= t.MaxTrials; attempt++ {
		log.Info("booking attempt", "attempt", attempt, "max_trials", t.MaxTrials)

		status, err := client.Reserve(ctx, t.BeginTime, t.Duration, seatID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return cancelledResult(t)
			}
			lastReason = fmt.Sprintf("request error: %v", err)
			log.Error("reservation request failed", "attempt", attempt, "error", err)
		case status == statusOK:
			log.Info("booking successful", "attempt", attempt)
			return successResult(t, attempt)
		default:
			lastReason = status
			log.Warn("reservation rejected", "attempt", attempt, "reason", status)
		}

		if attempt < t.MaxTrials {
			if s.sleep(ctx, time.Duration(t.Interval)*time.Second) != nil {
				return cancelledResult(t)
			}
		}
	}

	r := failureResult(t, fmt.Sprintf("failed after %d attempts: %s", t.MaxTrials, lastReason))
	r.Attempts = t.MaxTrials
	return r
}

// RunAll executes tasks concurrently under the admission cap and returns
// results in input order. A panic or failure in one pipeline never disturbs
// its siblings.
func (s *Service) RunAll(ctx context.Context, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	limit := int64(maxConcurrent)
	if n := int64(len(tasks)); n < limit {
		limit = n
	}
	sem := semaphore.NewWeighted(limit)
	results := make([]Result, len(tasks))

	s.log.Info("starting batch", "tasks", len(tasks), "concurrency", limit)

	var wg sync.WaitGroup
	for i, t := range tasks {
		wg.Add(1)
		go func(i int, t Task) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = cancelledResult(t)
				return
			}
			defer sem.Release(1)
			results[i] = s.runIsolated(ctx, t)
		}(i, t)
	}
	wg.Wait()

	successes := 0
	for _, r := range results {
		if r.Success {
			successes++
		}
	}
	s.log.Info("batch complete", "tasks", len(results), "successful", successes, "failed", len(results)-successes)
	return results
}

// runIsolated converts a panicking pipeline into a failed result for that
// task alone.
func (s *Service) runIsolated(ctx context.Context, t Task) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("task pipeline panicked", "user", t.UserName, "panic", r)
			res = failureResult(t, fmt.Sprintf("task execution failed: %v", r))
		}
	}()
	if s.GlobalRetries > 1 {
		return s.RunWithRetry(ctx, t, s.GlobalRetries)
	}
	return s.RunTask(ctx, t)
}

// RunWithRetry repeats the full pipeline up to globalMaxRetries times with
// linear backoff (2s, 4s, ...). Cancellation is never retried.
func (s *Service) RunWithRetry(ctx context.Context, t Task, globalMaxRetries int) Result {
	if globalMaxRetries < 1 {
		s.log.Warn("global retries clamped to 1", "requested", globalMaxRetries)
		globalMaxRetries = 1
	}

	var last Result
	for attempt := 1; attempt <= globalMaxRetries; attempt++ {
		s.log.Info("global attempt", "user", t.UserName, "attempt", attempt, "max", globalMaxRetries)

		last = s.RunTask(ctx, t)
		if last.Success || last.Cancelled {
			return last
		}

		if attempt < globalMaxRetries {
			backoff := time.Duration(2*attempt) * time.Second
			s.log.Info("global retry backoff", "user", t.UserName, "wait", backoff)
			if s.sleep(ctx, backoff) != nil {
				return cancelledResult(t)
			}
		}
	}
	return last
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
