package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"wablast/internal/eventbus"
	logx "wablast/pkg/logx"
)

// Service is the broadcast controller: it owns the run flag, the active
// job and the dispatch loop goroutine. The run flag is the only
// synchronization point between controller (writer) and loop (poller).
type Service struct {
	src Source
	log logx.Logger
	bus eventbus.Bus

	sink *Sink

	// running is the run flag. Written only by Start/Stop (and forced
	// false by a crashing loop); polled by the loop before every send.
	running atomic.Bool

	mu         sync.Mutex
	cfg        Config
	limiter    *rate.Limiter
	baseCtx    context.Context
	lastJob    *Job
	loopCancel context.CancelFunc
	loopDone   chan struct{}
	clearTimer *time.Timer
}

func New(cfg Config, src Source, log logx.Logger, bus eventbus.Bus) *Service {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.StopClearDelay <= 0 {
		cfg.StopClearDelay = defaultStopClearDelay
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		src:     src,
		log:     log,
		bus:     bus,
		sink:    NewSink(cfg.MaxLogEntries),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

// Bind sets the long-lived context dispatch loops are spawned from.
// Call once at app start, before any Start().
func (s *Service) Bind(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
}

// Apply updates tunables at runtime (hot reload). The active job keeps its
// own pacing delay; only the global ceiling and log bound change live.
func (s *Service) Apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.StopClearDelay <= 0 {
		cfg.StopClearDelay = defaultStopClearDelay
	}
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
	s.sink.SetMax(cfg.MaxLogEntries)
}

// Start validates the job, claims the run flag and spawns the dispatch
// loop. It returns the recipient count on success. An active run always
// wins: AlreadyRunning is reported before any validation, so a second
// start can never surface a job or connectivity error instead.
func (s *Service) Start(job Job) (int, error) {
	if s.running.Load() {
		return 0, ErrAlreadyRunning
	}
	if len(job.Recipients) == 0 || len(job.Lines) == 0 || job.Delay <= 0 {
		return 0, ErrEmptyJob
	}
	if !s.src.Connected() {
		return 0, ErrNotConnected
	}
	if !s.running.CompareAndSwap(false, true) {
		return 0, ErrAlreadyRunning
	}

	s.mu.Lock()
	if s.clearTimer != nil {
		s.clearTimer.Stop()
		s.clearTimer = nil
	}
	s.sink.Clear()
	jobCopy := job
	s.lastJob = &jobCopy
	s.spawnLoopLocked(&jobCopy)
	s.mu.Unlock()

	s.log.Info("broadcast started",
		logx.Int("recipients", len(job.Recipients)),
		logx.Int("lines", len(job.Lines)),
		logx.Duration("delay", job.Delay))
	s.publish("broadcast.started")
	return len(job.Recipients), nil
}

// Stop clears the run flag and cancels the loop's context. It is
// idempotent: stopping an idle controller still succeeds and still records
// the stop entry. The loop observes the flag at its next checkpoint; an
// in-flight send is allowed to finish.
func (s *Service) Stop() {
	was := s.running.Swap(false)

	s.mu.Lock()
	if s.loopCancel != nil {
		s.loopCancel()
		s.loopCancel = nil
	}
	s.sink.Append(Entry{Outcome: OutcomeStopped})
	delay := s.cfg.StopClearDelay
	if s.clearTimer != nil {
		s.clearTimer.Stop()
	}
	// Keep the stop entry visible for one poll cycle, then clear.
	s.clearTimer = time.AfterFunc(delay, s.sink.Clear)
	s.mu.Unlock()

	if was {
		s.log.Info("broadcast stopped")
		s.publish("broadcast.stopped")
	} else {
		s.log.Debug("stop requested while idle")
	}
}

// Pause tears the loop goroutine down without touching the run flag.
// Fired by the session supervisor on disconnect so sends stop cleanly
// instead of piling up failure entries while the link is gone.
func (s *Service) Pause() {
	s.mu.Lock()
	cancel := s.loopCancel
	s.loopCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		s.log.Info("broadcast paused (link down)")
	}
}

// Resume respawns the dispatch loop for the last job if the run flag is
// still set and no loop is alive. Fired by the session supervisor after a
// reconnect; a run interrupted by a disconnect continues without a new Start.
func (s *Service) Resume() {
	if !s.running.Load() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loopCancel != nil || s.lastJob == nil {
		return
	}
	s.spawnLoopLocked(s.lastJob)
	s.log.Info("broadcast resumed after reconnect",
		logx.Int("recipients", len(s.lastJob.Recipients)),
		logx.Int("lines", len(s.lastJob.Lines)))
	s.publish("broadcast.resumed")
}

// Running reports the run flag.
func (s *Service) Running() bool { return s.running.Load() }

func (s *Service) Status() Status {
	st := Status{
		Connected: s.src.Connected(),
		State:     s.src.StateName(),
		Running:   s.running.Load(),
		LogCount:  s.sink.Len(),
	}
	s.mu.Lock()
	if st.Running && s.lastJob != nil {
		st.Recipients = len(s.lastJob.Recipients)
		st.Lines = len(s.lastJob.Lines)
	}
	s.mu.Unlock()
	return st
}

func (s *Service) Logs() []Entry { return s.sink.Snapshot() }

func (s *Service) ClearLogs() {
	s.mu.Lock()
	if s.clearTimer != nil {
		s.clearTimer.Stop()
		s.clearTimer = nil
	}
	s.mu.Unlock()
	s.sink.Clear()
}

// spawnLoopLocked starts the dispatch goroutine. Caller holds s.mu.
func (s *Service) spawnLoopLocked(job *Job) {
	base := s.baseCtx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	s.loopCancel = cancel
	done := make(chan struct{})
	s.loopDone = done
	go s.dispatch(ctx, *job, done)
}

func (s *Service) publish(typ string) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ})
	}
}
