package broadcast

import (
	"errors"
	"time"

	kit "wablast/internal/transport"
)

type Config struct {
	// RatePerSec is a global ceiling on send attempts, on top of the
	// per-send pacing delay each job carries.
	RatePerSec int
	// MaxLogEntries bounds the outcome log; oldest entries are dropped.
	MaxLogEntries int
	// StopClearDelay is the grace period between Stop() and clearing the
	// outcome log, so a client polling logs still observes the stop entry.
	StopClearDelay time.Duration
}

const (
	defaultRatePerSec     = 10
	defaultMaxLogEntries  = 1000
	defaultStopClearDelay = 10 * time.Second
)

// Job is one configured broadcast run. It is read-only once handed to the
// dispatch loop; a new Start always builds a new Job.
type Job struct {
	Recipients []kit.Recipient
	Lines      []string
	// Delay is the pacing pause applied after every single send.
	Delay time.Duration
}

type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeStopped Outcome = "stopped"
	OutcomeCrashed Outcome = "crashed"
)

// Entry is one timestamped per-send outcome.
type Entry struct {
	Time      time.Time `json:"time"`
	Outcome   Outcome   `json:"outcome"`
	Recipient string    `json:"recipient,omitempty"`
	Line      string    `json:"line,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Status is a read-only composite view for callers.
type Status struct {
	Connected  bool   `json:"connected"`
	State      string `json:"state"`
	Running    bool   `json:"running"`
	LogCount   int    `json:"log_count"`
	Recipients int    `json:"recipients,omitempty"`
	Lines      int    `json:"lines,omitempty"`
}

var (
	ErrAlreadyRunning = errors.New("broadcast already running")
	ErrNotConnected   = errors.New("session not connected")
	ErrEmptyJob       = errors.New("broadcast job has no valid recipients or lines")
)

// Source is the session-side view the dispatch loop needs: the current
// handle (polled on every send, never cached) and connectivity state.
type Source interface {
	Client() (kit.Client, bool)
	Connected() bool
	StateName() string
}
