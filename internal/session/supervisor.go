package session

import (
	"context"
	"sync"
	"time"

	"wablast/internal/eventbus"
	kit "wablast/internal/transport"
	logx "wablast/pkg/logx"
)

type Config struct {
	// ReconnectDelay is the fixed pause before re-dialing after a disconnect.
	ReconnectDelay time.Duration
}

const defaultReconnectDelay = 3 * time.Second

// Supervisor owns the single live client handle and the connection state
// machine. All transitions happen on the Run goroutine, which is the only
// writer; the mutex exists for external readers (HTTP handlers, dispatch
// loop) that need a consistent snapshot.
type Supervisor struct {
	cfg    Config
	dialer kit.Dialer
	log    logx.Logger
	bus    eventbus.Bus

	// events carries lifecycle signals from the live handle; dialReq wakes
	// the loop to (re)dial, coalescing duplicate requests.
	events  chan kit.Event
	dialReq chan struct{}

	mu        sync.Mutex
	state     State
	challenge string
	client    kit.Client

	onUp   func(ctx context.Context)
	onDown func()
}

func New(cfg Config, dialer kit.Dialer, log logx.Logger, bus eventbus.Bus) *Supervisor {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Supervisor{
		cfg:     cfg,
		dialer:  dialer,
		log:     log,
		bus:     bus,
		events:  make(chan kit.Event, 16),
		dialReq: make(chan struct{}, 1),
		state:   StateIdle,
	}
}

// OnConnected installs the resume hook fired after every successful
// (re)connect. Must be called before Run.
func (s *Supervisor) OnConnected(fn func(ctx context.Context)) { s.onUp = fn }

// OnDisconnected installs the pause hook fired when the link drops.
// Must be called before Run.
func (s *Supervisor) OnDisconnected(fn func()) { s.onDown = fn }

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) StateName() string { return s.State().String() }

func (s *Supervisor) Connected() bool { return s.State() == StateConnected }

// Challenge returns the pending QR pairing code ("" when none).
func (s *Supervisor) Challenge() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.challenge
}

// Client returns the live handle. It never blocks; ok is false while
// disconnected or dialing.
func (s *Supervisor) Client() (kit.Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, false
	}
	return s.client, true
}

// EnsureConnected asks the Run loop to dial if no handle exists.
// Idempotent and safe from any goroutine.
func (s *Supervisor) EnsureConnected() {
	select {
	case s.dialReq <- struct{}{}:
	default:
	}
}

// Run is the single control loop: it dials, consumes lifecycle events and
// applies the reconnect/credential-reset policy. It returns when ctx is done.
func (s *Supervisor) Run(ctx context.Context) error {
	s.EnsureConnected()
	for {
		select {
		case <-ctx.Done():
			s.teardown()
			return nil
		case <-s.dialReq:
			s.dial(ctx)
		case ev := <-s.events:
			s.handle(ctx, ev)
		}
	}
}

// dial opens a new handle unless one already exists. It runs on the Run
// goroutine only, so handle creation is single-flight by construction.
func (s *Supervisor) dial(ctx context.Context) {
	s.mu.Lock()
	if s.client != nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	cli, err := s.dialer.Dial(ctx, s.events)
	if err != nil {
		s.log.Warn("dial failed", logx.Err(err), logx.Duration("retry_in", s.cfg.ReconnectDelay))
		s.setState(StateDisconnected)
		s.scheduleDial()
		return
	}

	s.mu.Lock()
	s.client = cli
	s.mu.Unlock()
	s.log.Debug("session handle opened")
}

func (s *Supervisor) handle(ctx context.Context, ev kit.Event) {
	switch ev.Kind {
	case kit.EventQRChallenge:
		s.mu.Lock()
		s.state = StateAwaitingScan
		s.challenge = ev.QRCode
		s.mu.Unlock()
		s.publish("session.qr", nil)
		s.log.Info("pairing challenge received; waiting for scan")

	case kit.EventConnected:
		s.mu.Lock()
		s.state = StateConnected
		s.challenge = ""
		s.mu.Unlock()
		s.publish("session.connected", nil)
		s.log.Info("session connected")
		if s.onUp != nil {
			s.onUp(ctx)
		}

	case kit.EventDisconnected:
		s.dropHandle()
		s.setState(StateDisconnected)
		s.publish("session.disconnected", ev.Reason)
		s.log.Warn("session disconnected", logx.String("reason", ev.Reason), logx.Duration("reconnect_in", s.cfg.ReconnectDelay))
		if s.onDown != nil {
			s.onDown()
		}
		s.scheduleDial()

	case kit.EventLoggedOut:
		s.dropHandle()
		s.setState(StateDisconnected)
		s.publish("session.logged_out", ev.Reason)
		s.log.Warn("logged out; resetting credentials", logx.String("reason", ev.Reason))
		if s.onDown != nil {
			s.onDown()
		}
		if err := s.dialer.ResetCredentials(ctx); err != nil {
			s.log.Error("credential reset failed", logx.Err(err))
		}
		s.scheduleDial()
	}
}

func (s *Supervisor) scheduleDial() {
	time.AfterFunc(s.cfg.ReconnectDelay, s.EnsureConnected)
}

func (s *Supervisor) dropHandle() {
	s.mu.Lock()
	cli := s.client
	s.client = nil
	s.mu.Unlock()
	if cli != nil {
		cli.Disconnect()
	}
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Supervisor) teardown() {
	s.dropHandle()
	s.setState(StateIdle)
}

func (s *Supervisor) publish(typ string, data any) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}
