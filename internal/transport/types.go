package transport

import (
	"context"
	"strings"
)

// JID suffixes used by the wire protocol.
const (
	DirectSuffix = "@s.whatsapp.net"
	GroupSuffix  = "@g.us"
)

// Recipient is a fully-qualified chat address (direct or group JID).
type Recipient string

func (r Recipient) IsGroup() bool { return strings.HasSuffix(string(r), GroupSuffix) }

type EventKind string

const (
	// EventQRChallenge carries a fresh pairing code that must be scanned.
	EventQRChallenge EventKind = "qr"
	// EventConnected means the session is authenticated and live.
	EventConnected EventKind = "connected"
	// EventDisconnected means the link dropped; the handle is unusable.
	EventDisconnected EventKind = "disconnected"
	// EventLoggedOut means the stored credentials were invalidated remotely.
	EventLoggedOut EventKind = "logged_out"
)

// Event is a lifecycle signal emitted by a live client.
type Event struct {
	Kind   EventKind
	QRCode string // set for EventQRChallenge
	Reason string // set for EventDisconnected / EventLoggedOut
}

// Client is one live session handle. A handle that observed a disconnect
// cannot be reused; the owner must dial a new one.
type Client interface {
	SendText(ctx context.Context, to Recipient, text string) error
	SendPresence() error
	Connected() bool
	Disconnect()
}

// Dialer opens session handles against the transport using stored credentials.
// Lifecycle events for the returned handle are delivered on out.
type Dialer interface {
	Dial(ctx context.Context, out chan<- Event) (Client, error)
	// ResetCredentials wipes stored authentication material so the next
	// Dial starts a fresh pairing challenge.
	ResetCredentials(ctx context.Context) error
	Close() error
}
