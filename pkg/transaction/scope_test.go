package transaction

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/nimburion/txscope/pkg/async"
)

// fakeConnection records every call and fails the ones configured to fail.
// Operations complete on their own goroutine, like a real driver would.
type fakeConnection struct {
	mu         sync.Mutex
	calls      []string
	autoCommit bool

	disableErr  error
	commitErr   error
	rollbackErr error
	enableErr   error
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{autoCommit: true}
}

func (c *fakeConnection) record(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

func (c *fakeConnection) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *fakeConnection) AutoCommit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoCommit
}

func (c *fakeConnection) op(call string, err error, apply func()) async.Completable {
	return async.FromFunc(func(context.Context) (struct{}, error) {
		c.record(call)
		if err != nil {
			return struct{}{}, err
		}
		if apply != nil {
			c.mu.Lock()
			apply()
			c.mu.Unlock()
		}
		return struct{}{}, nil
	})
}

func (c *fakeConnection) SetAutoCommit(_ context.Context, enabled bool) async.Completable {
	if enabled {
		return c.op("enable", c.enableErr, func() { c.autoCommit = true })
	}
	return c.op("disable", c.disableErr, func() { c.autoCommit = false })
}

func (c *fakeConnection) Commit(context.Context) async.Completable {
	return c.op("commit", c.commitErr, nil)
}

func (c *fakeConnection) Rollback(context.Context) async.Completable {
	return c.op("rollback", c.rollbackErr, nil)
}

func work[T any](conn *fakeConnection, runs *atomic.Int32, v T, err error) async.Single[T] {
	return async.FromFunc(func(context.Context) (T, error) {
		runs.Add(1)
		conn.record("run")
		return v, err
	})
}

func TestWrap_SuccessCommits(t *testing.T) {
	conn := newFakeConnection()
	var runs atomic.Int32

	v, err := Wrap(conn, work(conn, &runs, 42, nil)).Await(context.Background())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
	if !conn.AutoCommit() {
		t.Fatal("expected autocommit restored to true")
	}
	want := []string{"disable", "run", "commit", "enable"}
	if got := conn.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected calls %v, got %v", want, got)
	}
	if runs.Load() != 1 {
		t.Fatalf("expected work to run once, got %d", runs.Load())
	}
}

func TestWrap_WorkFailureRollsBack(t *testing.T) {
	dbErr := errors.New("db-error")
	conn := newFakeConnection()
	conn.rollbackErr = errors.New("rollback-fail")
	var runs atomic.Int32

	_, err := Wrap(conn, work(conn, &runs, 0, dbErr)).Await(context.Background())
	if !errors.Is(err, dbErr) {
		t.Fatalf("expected db-error, got %v", err)
	}
	if err.Error() != "db-error" {
		t.Fatalf("expected the original error verbatim, got %q", err.Error())
	}
	want := []string{"disable", "run", "rollback", "enable"}
	if got := conn.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected calls %v, got %v", want, got)
	}
	if !conn.AutoCommit() {
		t.Fatal("expected autocommit restored to true")
	}
}

func TestWrap_WorkFailureWinsOverRestoreFailure(t *testing.T) {
	dbErr := errors.New("db-error")
	conn := newFakeConnection()
	conn.rollbackErr = errors.New("rollback-fail")
	conn.enableErr = errors.New("enable-fail")
	var runs atomic.Int32

	_, err := Wrap(conn, work(conn, &runs, 0, dbErr)).Await(context.Background())
	if err != dbErr {
		t.Fatalf("expected db-error, got %v", err)
	}
}

func TestWrap_CommitFailure(t *testing.T) {
	commitErr := errors.New("commit-fail")
	conn := newFakeConnection()
	conn.commitErr = commitErr
	conn.enableErr = errors.New("enable-fail")
	var runs atomic.Int32

	v, err := Wrap(conn, work(conn, &runs, "value", nil)).Await(context.Background())
	if err != commitErr {
		t.Fatalf("expected commit error, got %v", err)
	}
	if v != "" {
		t.Fatalf("expected zero value on failure, got %q", v)
	}
	want := []string{"disable", "run", "commit", "enable"}
	if got := conn.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected calls %v, got %v", want, got)
	}
}

func TestWrap_RestoreFailureAfterCommitIsSuppressed(t *testing.T) {
	conn := newFakeConnection()
	conn.enableErr = errors.New("enable-fail")
	var runs atomic.Int32

	v, err := Wrap(conn, work(conn, &runs, 7, nil)).Await(context.Background())
	if err != nil || v != 7 {
		t.Fatalf("expected (7, nil), got (%d, %v)", v, err)
	}
}

func TestWrap_BeginFailure(t *testing.T) {
	beginErr := errors.New("begin-fail")
	conn := newFakeConnection()
	conn.disableErr = beginErr
	var runs atomic.Int32

	_, err := Wrap(conn, work(conn, &runs, 1, nil)).Await(context.Background())
	if err != beginErr {
		t.Fatalf("expected begin error, got %v", err)
	}
	if runs.Load() != 0 {
		t.Fatalf("work must never start, ran %d times", runs.Load())
	}
	want := []string{"disable"}
	if got := conn.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected calls %v, got %v", want, got)
	}
}

func TestWrap_IsDeferred(t *testing.T) {
	conn := newFakeConnection()
	var runs atomic.Int32

	wrapped := Wrap(conn, work(conn, &runs, 1, nil))
	time.Sleep(5 * time.Millisecond)
	if len(conn.Calls()) != 0 {
		t.Fatalf("expected no calls before subscribe, got %v", conn.Calls())
	}
	if _, err := wrapped.Await(context.Background()); err != nil {
		t.Fatalf("await: %v", err)
	}
}

func TestWrap_NilConnectionPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for nil connection")
		}
	}()
	Wrap[int](nil, async.Just(1))
}

func TestWrap_WorkSeesInvocationID(t *testing.T) {
	conn := newFakeConnection()
	var seen string
	w := async.FromFunc(func(ctx context.Context) (int, error) {
		seen = IDFromContext(ctx)
		return 1, nil
	})

	if _, err := Wrap(conn, w, WithIDGenerator(func() string { return "tx-1" })).Await(context.Background()); err != nil {
		t.Fatalf("await: %v", err)
	}
	if seen != "tx-1" {
		t.Fatalf("expected invocation id tx-1, got %q", seen)
	}
}

func TestWrap_DefaultIDsAreUnique(t *testing.T) {
	conn := newFakeConnection()
	ids := make(chan string, 2)
	w := async.FromFunc(func(ctx context.Context) (int, error) {
		ids <- IDFromContext(ctx)
		return 1, nil
	})
	wrapped := Wrap(conn, w)
	for i := 0; i < 2; i++ {
		if _, err := wrapped.Await(context.Background()); err != nil {
			t.Fatalf("await: %v", err)
		}
	}
	first, second := <-ids, <-ids
	if first == "" || first == second {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", first, second)
	}
}

func TestRun(t *testing.T) {
	conn := newFakeConnection()
	v, err := Run(context.Background(), conn, func(context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || v != 42 {
		t.Fatalf("expected (42, nil), got (%d, %v)", v, err)
	}
}

func TestRun_WaitsForCleanupAfterCancel(t *testing.T) {
	conn := newFakeConnection()
	ctx, cancel := context.WithCancel(context.Background())

	_, err := Run(ctx, conn, func(ctx context.Context) (int, error) {
		cancel()
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	want := []string{"disable", "rollback", "enable"}
	if got := conn.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected calls %v, got %v", want, got)
	}
}

func TestRun_PanicRollsBackAndRepanics(t *testing.T) {
	conn := newFakeConnection()
	panicValue := errors.New("panic error")

	func() {
		defer func() {
			if r := recover(); r != panicValue {
				t.Fatalf("expected re-panic with original value, got %v", r)
			}
		}()
		_, _ = Run(context.Background(), conn, func(context.Context) (int, error) {
			panic(panicValue)
		})
	}()

	want := []string{"disable", "rollback", "enable"}
	if got := conn.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected calls %v, got %v", want, got)
	}
}

func TestRun_ReturnedPanicErrorStaysAnError(t *testing.T) {
	conn := newFakeConnection()
	returned := errors.Join(errors.New("nested"), &async.PanicError{Value: "elsewhere"})

	_, err := Run(context.Background(), conn, func(context.Context) (int, error) {
		return 0, returned
	})
	if err != returned {
		t.Fatalf("expected returned error unchanged, got %v", err)
	}

	want := []string{"disable", "rollback", "enable"}
	if got := conn.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected calls %v, got %v", want, got)
	}
}

func TestRun_PanickingCommitStaysAnError(t *testing.T) {
	conn := &panickingCommitConnection{fakeConnection: newFakeConnection()}

	_, err := Run(context.Background(), conn, func(context.Context) (int, error) {
		return 1, nil
	})
	var pe *async.PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected commit panic as PanicError, got %v", err)
	}
	if !conn.AutoCommit() {
		t.Fatal("expected autocommit restored")
	}
}

// panickingCommitConnection panics inside its Commit computation.
type panickingCommitConnection struct {
	*fakeConnection
}

func (c *panickingCommitConnection) Commit(context.Context) async.Completable {
	return async.New(func(context.Context, func(async.Outcome[struct{}])) {
		c.record("commit")
		panic("commit exploded")
	})
}

func TestWrap_PanickingSourceRollsBack(t *testing.T) {
	conn := newFakeConnection()
	w := async.New(func(context.Context, func(async.Outcome[int])) {
		panic("boom")
	})

	_, err := Wrap(conn, w).Wait(context.Background())
	var pe *async.PanicError
	if !errors.As(err, &pe) || pe.Value != "boom" {
		t.Fatalf("expected PanicError boom, got %v", err)
	}

	want := []string{"disable", "rollback", "enable"}
	if got := conn.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected calls %v, got %v", want, got)
	}
	if !conn.AutoCommit() {
		t.Fatal("expected autocommit restored")
	}
}

func TestRun_NilFnPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for nil fn")
		}
	}()
	_, _ = Run[int](context.Background(), newFakeConnection(), nil)
}

func TestWrap_IndependentConnectionsRunConcurrently(t *testing.T) {
	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := newFakeConnection()
			var runs atomic.Int32
			v, err := Wrap(conn, work(conn, &runs, i, nil)).Await(context.Background())
			if err != nil || v != i {
				errs <- errors.New("unexpected outcome")
				return
			}
			if !reflect.DeepEqual(conn.Calls(), []string{"disable", "run", "commit", "enable"}) {
				errs <- errors.New("unexpected call sequence")
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

type failureCase struct {
	BeginFails    bool
	WorkFails     bool
	CommitFails   bool
	RollbackFails bool
	RestoreFails  bool
}

func genFailureCase() gopter.Gen {
	return gopter.CombineGens(gen.Bool(), gen.Bool(), gen.Bool(), gen.Bool(), gen.Bool()).
		Map(func(values []interface{}) failureCase {
			return failureCase{
				BeginFails:    values[0].(bool),
				WorkFails:     values[1].(bool),
				CommitFails:   values[2].(bool),
				RollbackFails: values[3].(bool),
				RestoreFails:  values[4].(bool),
			}
		})
}

// For any combination of step failures the primary outcome wins, every
// step runs at most once, and restore happens exactly when begin succeeded.
func TestProperty_PrimaryOutcomeWins(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	properties := gopter.NewProperties(params)

	beginErr := errors.New("begin")
	workErr := errors.New("work")
	commitErr := errors.New("commit")

	properties.Property("outcome and call sequence follow the protocol", prop.ForAll(
		func(fc failureCase) bool {
			conn := newFakeConnection()
			if fc.BeginFails {
				conn.disableErr = beginErr
			}
			if fc.CommitFails {
				conn.commitErr = commitErr
			}
			if fc.RollbackFails {
				conn.rollbackErr = errors.New("rollback")
			}
			if fc.RestoreFails {
				conn.enableErr = errors.New("restore")
			}
			var workRunErr error
			if fc.WorkFails {
				workRunErr = workErr
			}

			var runs atomic.Int32
			v, err := Wrap(conn, work(conn, &runs, 42, workRunErr)).Await(context.Background())

			var wantErr error
			var wantCalls []string
			switch {
			case fc.BeginFails:
				wantErr = beginErr
				wantCalls = []string{"disable"}
			case fc.WorkFails:
				wantErr = workErr
				wantCalls = []string{"disable", "run", "rollback", "enable"}
			case fc.CommitFails:
				wantErr = commitErr
				wantCalls = []string{"disable", "run", "commit", "enable"}
			default:
				wantCalls = []string{"disable", "run", "commit", "enable"}
			}

			if err != wantErr {
				t.Logf("case %+v: expected error %v, got %v", fc, wantErr, err)
				return false
			}
			if wantErr == nil && v != 42 {
				return false
			}
			if !reflect.DeepEqual(conn.Calls(), wantCalls) {
				t.Logf("case %+v: expected calls %v, got %v", fc, wantCalls, conn.Calls())
				return false
			}
			expectedRuns := int32(1)
			if fc.BeginFails {
				expectedRuns = 0
			}
			return runs.Load() == expectedRuns
		},
		genFailureCase(),
	))

	properties.TestingRun(t)
}
