package broadcast

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	kit "wablast/internal/transport"
	logx "wablast/pkg/logx"
)

// dispatch is the send-pace-record cycle: lines in order, recipients in
// order per line, run flag polled before every send, pacing delay after
// every send. After the last pair it restarts from the first line — the
// repeat-until-stopped semantic is intentional.
func (s *Service) dispatch(ctx context.Context, job Job, done chan struct{}) {
	defer close(done)
	defer s.loopExited(done)
	defer func() {
		if r := recover(); r != nil {
			// A programming error must not spin silently: record it,
			// force the run flag off and let the loop die.
			s.sink.Append(Entry{Outcome: OutcomeCrashed, Detail: fmt.Sprint(r)})
			s.running.Store(false)
			s.log.Error("dispatch loop crashed",
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())))
		}
	}()

	s.log.Debug("dispatch loop started",
		logx.Int("recipients", len(job.Recipients)),
		logx.Int("lines", len(job.Lines)))

	for {
		for _, line := range job.Lines {
			for _, to := range job.Recipients {
				if !s.running.Load() || ctx.Err() != nil {
					return
				}
				s.sendOne(ctx, to, line)

				// Pacing applies after every single send.
				select {
				case <-ctx.Done():
					return
				case <-time.After(job.Delay):
				}
			}
		}
	}
}

// sendOne attempts a single (recipient, line) pair. Failures are recorded
// and never abort the loop.
func (s *Service) sendOne(ctx context.Context, to kit.Recipient, line string) {
	s.mu.Lock()
	lim := s.limiter
	s.mu.Unlock()
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return
		}
	}

	cli, ok := s.src.Client()
	if !ok {
		s.sink.Append(Entry{
			Outcome:   OutcomeFailed,
			Recipient: string(to),
			Line:      line,
			Detail:    "no session handle",
		})
		return
	}

	if err := cli.SendText(ctx, to, line); err != nil {
		s.sink.Append(Entry{
			Outcome:   OutcomeFailed,
			Recipient: string(to),
			Line:      line,
			Detail:    err.Error(),
		})
		s.log.Debug("send failed", logx.String("to", string(to)), logx.Err(err))
		return
	}

	s.sink.Append(Entry{
		Outcome:   OutcomeSent,
		Recipient: string(to),
		Line:      line,
	})
}

// loopExited clears the loop handle unless a newer loop already replaced it.
func (s *Service) loopExited(done chan struct{}) {
	s.mu.Lock()
	if s.loopDone == done {
		if s.loopCancel != nil {
			s.loopCancel()
			s.loopCancel = nil
		}
		s.loopDone = nil
	}
	s.mu.Unlock()
}
