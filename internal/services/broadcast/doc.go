// Package broadcast runs the controllable send loop: a job of message
// lines times recipients, dispatched in line-major order at a fixed pace,
// with per-send outcomes recorded in a bounded in-memory log.
//
// One job may be active at a time. The run flag survives transport
// disconnects; the session supervisor pauses and resumes the loop around
// reconnects so a run continues without a new start request.
package broadcast
