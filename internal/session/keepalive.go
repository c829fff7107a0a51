package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "wablast/pkg/logx"
)

// ParseKeepaliveSpec validates a keepalive cron expression.
// Standard 5-field crontab syntax plus descriptors ("@hourly", "@every 15m").
func ParseKeepaliveSpec(raw string) (cron.Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}
	sched, err := cron.ParseStandard(s)
	if err != nil {
		return nil, fmt.Errorf("session.keepalive: invalid cron spec %q: %w", raw, err)
	}
	return sched, nil
}

// RunKeepalive sends an available-presence ping on the given cron schedule
// while a session is connected. Long-idle sessions otherwise get flagged as
// inactive by the transport. Returns when ctx is done; nil schedule is a no-op.
func (s *Supervisor) RunKeepalive(ctx context.Context, sched cron.Schedule) error {
	if sched == nil {
		return nil
	}
	for {
		next := sched.Next(time.Now())
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Until(next)):
		}

		cli, ok := s.Client()
		if !ok || !s.Connected() {
			continue
		}
		if err := cli.SendPresence(); err != nil {
			s.log.Debug("keepalive presence failed", logx.Err(err))
			continue
		}
		s.log.Debug("keepalive presence sent", logx.Time("next", sched.Next(time.Now())))
	}
}
