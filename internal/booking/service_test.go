package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Fixed clock: 21:00 on March 1st, so a next-day 10:00 target with one day
// ahead has its window (20:00 today) already open.
var (
	testNow   = time.Date(2026, 3, 1, 21, 0, 0, 0, time.Local)
	testBegin = time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local).Unix()
)

func runnableTask() Task {
	return Task{
		UserName:   "alice",
		Password:   "secret",
		FloorID:    "1547",
		SeatNumber: "001",
		BeginTime:  testBegin,
		Duration:   2,
		MaxTrials:  3,
		Interval:   2,
		DaysAhead:  1,
	}
}

type fakeResolver struct {
	seats    map[string]int64
	calls    int32
	panicFor string
}

func (r *fakeResolver) SeatID(ctx context.Context, floorID, seatNumber string) int64 {
	atomic.AddInt32(&r.calls, 1)
	if floorID == r.panicFor {
		panic("resolver exploded")
	}
	return r.seats[floorID]
}

type fakeClient struct {
	loginErr error
	// reserve is invoked with the 1-based call number.
	reserve func(call int) (string, error)

	mu           sync.Mutex
	loginCalls   int
	reserveCalls int
}

func (c *fakeClient) Login(ctx context.Context, username, password string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loginCalls++
	if c.loginErr != nil {
		return "", c.loginErr
	}
	return "12345", nil
}

func (c *fakeClient) Reserve(ctx context.Context, beginTime int64, durationHours int, seatID int64) (string, error) {
	c.mu.Lock()
	c.reserveCalls++
	call := c.reserveCalls
	c.mu.Unlock()
	if c.reserve == nil {
		return statusOK, nil
	}
	return c.reserve(call)
}

func (c *fakeClient) reserved() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reserveCalls
}

type sleepRecorder struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.mu.Lock()
	s.slept = append(s.slept, d)
	s.mu.Unlock()
	return nil
}

func newTestService(client Client, resolver SeatResolver) (*Service, *sleepRecorder) {
	rec := &sleepRecorder{}
	svc := NewService(resolver, func() Client { return client }, nil)
	svc.sleep = rec.sleep
	svc.now = func() time.Time { return testNow }
	return svc, rec
}

func okResolver() *fakeResolver {
	return &fakeResolver{seats: map[string]int64{"1547": 77}}
}

func TestAttemptLoopExhaustsTrials(t *testing.T) {
	client := &fakeClient{reserve: func(int) (string, error) { return "seat taken", nil }}
	svc, rec := newTestService(client, okResolver())

	task := runnableTask()
	task.MaxTrials = 4

	res := svc.RunTask(context.Background(), task)
	assert.False(t, res.Success)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, "failed after 4 attempts: seat taken", res.Err)
	assert.Equal(t, 4, client.reserved())

	// One inter-attempt delay per gap, none after the final attempt.
	require.Len(t, rec.slept, 3)
	for _, d := range rec.slept {
		assert.Equal(t, 2*time.Second, d)
	}
}

func TestAttemptSucceedsMidway(t *testing.T) {
	client := &fakeClient{reserve: func(call int) (string, error) {
		if call < 3 {
			return "seat taken", nil
		}
		return statusOK, nil
	}}
	svc, rec := newTestService(client, okResolver())

	task := runnableTask()
	task.MaxTrials = 5

	res := svc.RunTask(context.Background(), task)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Attempt)
	assert.Equal(t, 3, client.reserved())
	assert.Len(t, rec.slept, 2)
	assert.Equal(t, "alice", res.User)
	assert.Equal(t, "Floor 1547, Seat 001", res.SeatInfo)
	assert.Equal(t, "2h", res.Duration)
}

func TestTransportErrorsAreRetried(t *testing.T) {
	client := &fakeClient{reserve: func(call int) (string, error) {
		if call == 1 {
			return "", errors.New("connection reset")
		}
		return statusOK, nil
	}}
	svc, _ := newTestService(client, okResolver())

	res := svc.RunTask(context.Background(), runnableTask())
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Attempt)
}

func TestLoginFailureIsTerminal(t *testing.T) {
	client := &fakeClient{loginErr: errors.New("bad credentials")}
	resolver := okResolver()
	svc, _ := newTestService(client, resolver)

	res := svc.RunTask(context.Background(), runnableTask())
	assert.False(t, res.Success)
	assert.Contains(t, res.Err, "login failed")
	assert.Contains(t, res.Err, "bad credentials")
	assert.Equal(t, int32(0), resolver.calls, "resolution must not run after a failed login")
	assert.Zero(t, client.reserved())
}

func TestSeatNotFoundSkipsReserve(t *testing.T) {
	client := &fakeClient{}
	svc, _ := newTestService(client, &fakeResolver{seats: map[string]int64{}})

	task := runnableTask()
	task.FloorID = "2001"

	res := svc.RunTask(context.Background(), task)
	assert.False(t, res.Success)
	assert.Equal(t, ErrSeatNotFound.Error(), res.Err)
	assert.Zero(t, client.reserved())
}

func TestCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeClient{reserve: func(call int) (string, error) {
		cancel() // cancel while the loop would otherwise keep retrying
		return "seat taken", nil
	}}
	svc, _ := newTestService(client, okResolver())

	res := svc.RunTask(ctx, runnableTask())
	assert.True(t, res.Cancelled)
	assert.False(t, res.Success)
	assert.Equal(t, 1, client.reserved(), "cancellation must not be retried")
}

func TestAwaitWindowWaitsUntilOpen(t *testing.T) {
	svc, rec := newTestService(&fakeClient{}, okResolver())
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local) }

	require.NoError(t, svc.awaitWindow(context.Background(), runnableTask()))
	require.Len(t, rec.slept, 1)
	assert.Equal(t, 10*time.Hour, rec.slept[0], "window opens at 20:00 one day before the target date")
}

func TestAwaitWindowAlreadyOpen(t *testing.T) {
	svc, rec := newTestService(&fakeClient{}, okResolver())

	require.NoError(t, svc.awaitWindow(context.Background(), runnableTask()))
	assert.Empty(t, rec.slept)
}

func TestAwaitWindowDegradesOnBadTimestamp(t *testing.T) {
	svc, rec := newTestService(&fakeClient{}, okResolver())

	task := runnableTask()
	task.BeginTime = 9 // never normalized; proceed rather than block

	require.NoError(t, svc.awaitWindow(context.Background(), task))
	assert.Empty(t, rec.slept)
}

func TestRunAllBoundsConcurrencyAndKeepsOrder(t *testing.T) {
	var active, maxActive int32
	client := &fakeClient{reserve: func(int) (string, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return statusOK, nil
	}}
	svc, _ := newTestService(client, okResolver())

	tasks := make([]Task, 15)
	for i := range tasks {
		tasks[i] = runnableTask()
		tasks[i].UserName = fmt.Sprintf("user%02d", i)
	}

	results := svc.RunAll(context.Background(), tasks)
	require.Len(t, results, 15)

	assert.LessOrEqual(t, atomic.LoadInt32(&maxActive), int32(10))
	for i, r := range results {
		assert.True(t, r.Success)
		assert.Equal(t, fmt.Sprintf("user%02d", i), r.User, "results must preserve input order")
	}
}

func TestRunAllIsolatesPanickingPipeline(t *testing.T) {
	resolver := okResolver()
	resolver.panicFor = "9999"
	svc, _ := newTestService(&fakeClient{}, resolver)

	tasks := []Task{runnableTask(), runnableTask(), runnableTask()}
	tasks[1].FloorID = "9999"
	tasks[1].UserName = "boom"

	results := svc.RunAll(context.Background(), tasks)
	require.Len(t, results, 3)

	assert.True(t, results[0].Success)
	assert.True(t, results[2].Success)
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Err, "task execution failed")
}

func TestRunAllEmpty(t *testing.T) {
	svc, _ := newTestService(&fakeClient{}, okResolver())
	assert.Nil(t, svc.RunAll(context.Background(), nil))
}

func TestRunWithRetryClampsToOne(t *testing.T) {
	client := &fakeClient{reserve: func(int) (string, error) { return "seat taken", nil }}
	svc, _ := newTestService(client, okResolver())

	task := runnableTask()
	task.MaxTrials = 1

	res := svc.RunWithRetry(context.Background(), task, 0)
	assert.False(t, res.Success)
	client.mu.Lock()
	assert.Equal(t, 1, client.loginCalls, "clamped retries run the pipeline exactly once")
	client.mu.Unlock()
}

func TestRunWithRetrySucceedsOnSecondPipeline(t *testing.T) {
	client := &fakeClient{reserve: func(call int) (string, error) {
		if call <= 2 {
			return "seat taken", nil
		}
		return statusOK, nil
	}}
	svc, rec := newTestService(client, okResolver())

	task := runnableTask()
	task.MaxTrials = 2

	res := svc.RunWithRetry(context.Background(), task, 3)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Attempt, "attempt index restarts per pipeline run")
	assert.Contains(t, rec.slept, 2*time.Second, "linear backoff between pipeline runs starts at 2s")
}

func TestRunWithRetryDoesNotRetryCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeClient{reserve: func(int) (string, error) {
		cancel()
		return "seat taken", nil
	}}
	svc, _ := newTestService(client, okResolver())

	res := svc.RunWithRetry(ctx, runnableTask(), 5)
	assert.True(t, res.Cancelled)
	assert.Equal(t, 1, client.reserved())
}

func TestRunAllRoutesThroughGlobalRetries(t *testing.T) {
	client := &fakeClient{reserve: func(call int) (string, error) {
		if call == 1 {
			return "seat taken", nil
		}
		return statusOK, nil
	}}
	svc, _ := newTestService(client, okResolver())
	svc.GlobalRetries = 2

	task := runnableTask()
	task.MaxTrials = 1

	results := svc.RunAll(context.Background(), []Task{task})
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	client.mu.Lock()
	assert.Equal(t, 2, client.loginCalls)
	client.mu.Unlock()
}
