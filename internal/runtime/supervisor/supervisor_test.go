package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoCollectsFirstError(t *testing.T) {
	t.Parallel()

	s := New(context.Background())
	s.Go("ok", func(ctx context.Context) error { return nil })
	s.Go("boom", func(ctx context.Context) error { return errors.New("boom") })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err == nil || err.Error() != "boom: boom" {
		t.Fatalf("Wait = %v, want named boom error", err)
	}
}

func TestContextCanceledIsClean(t *testing.T) {
	t.Parallel()

	s := New(context.Background())
	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	s.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait = %v, want nil for canceled loop", err)
	}
}

func TestPanicRecovered(t *testing.T) {
	t.Parallel()

	s := New(context.Background())
	s.Go("panics", func(ctx context.Context) error { panic("kaput") })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if err == nil {
		t.Fatal("want error from panicking goroutine")
	}
}

func TestCancelOnError(t *testing.T) {
	t.Parallel()

	s := New(context.Background(), WithCancelOnError(true))
	s.Go("failing", func(ctx context.Context) error { return errors.New("fatal") })
	s.Go("sibling", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err == nil {
		t.Fatal("want first error surfaced")
	}
	select {
	case <-s.Context().Done():
	default:
		t.Fatal("supervisor context should be canceled after error")
	}
}

func TestGoRestartRetriesUntilClean(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	s := New(context.Background())
	s.GoRestart("flaky", func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, time.Millisecond, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait = %v", err)
	}
	if got := runs.Load(); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
}

func TestGoRestartStopsOnCancel(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	s := New(context.Background())
	s.GoRestart("always-failing", func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("again")
	}, time.Millisecond, 2*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop = %v", err)
	}
	if runs.Load() == 0 {
		t.Fatal("loop never ran")
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	s := New(context.Background())
	block := make(chan struct{})
	s.Go("held", func(ctx context.Context) error {
		<-block
		return nil
	})

	st := s.Stats()
	if st.Started != 1 || st.Active != 1 {
		t.Fatalf("Stats = %+v", st)
	}
	close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.Wait(ctx)
	if st := s.Stats(); st.Active != 0 {
		t.Fatalf("Active = %d after Wait", st.Active)
	}
}
