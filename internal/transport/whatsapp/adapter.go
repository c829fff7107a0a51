package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite" // database/sql driver for the session store

	kit "wablast/internal/transport"
	logx "wablast/pkg/logx"
)

type Config struct {
	// StorePath is the sqlite file holding the whatsmeow device/credential store.
	StorePath string
	// DeviceName is shown on the paired phone (defaults to "wablast").
	DeviceName string
}

// Dialer owns the credential container and opens session handles from it.
// It implements kit.Dialer.
type Dialer struct {
	cfg       Config
	log       logx.Logger
	container *sqlstore.Container
}

func NewDialer(ctx context.Context, cfg Config, log logx.Logger) (*Dialer, error) {
	path := strings.TrimSpace(cfg.StorePath)
	if path == "" {
		return nil, errors.New("whatsapp: session store_path is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	name := strings.TrimSpace(cfg.DeviceName)
	if name == "" {
		name = "wablast"
	}
	store.DeviceProps.Os = proto.String(name)

	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)"
	container, err := sqlstore.New(ctx, "sqlite", dsn, waLogger{log: log.With(logx.String("comp", "wmstore"))})
	if err != nil {
		return nil, fmt.Errorf("whatsapp: open session store: %w", err)
	}

	return &Dialer{cfg: cfg, log: log, container: container}, nil
}

func (d *Dialer) Dial(ctx context.Context, out chan<- kit.Event) (kit.Client, error) {
	device, err := d.container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: load device: %w", err)
	}

	wm := whatsmeow.NewClient(device, waLogger{log: d.log.With(logx.String("comp", "wmclient"))})
	// Reconnect policy belongs to the session supervisor, not to the library.
	wm.EnableAutoReconnect = false
	c := &client{wm: wm, out: out, log: d.log}
	wm.AddEventHandler(c.handleEvent)

	// No stored identity yet: surface pairing codes before connecting.
	if wm.Store.ID == nil {
		qrCh, err := wm.GetQRChannel(ctx)
		if err != nil {
			return nil, fmt.Errorf("whatsapp: qr channel: %w", err)
		}
		go c.forwardQR(qrCh)
	}

	if err := wm.Connect(); err != nil {
		return nil, fmt.Errorf("whatsapp: connect: %w", err)
	}
	return c, nil
}

// ResetCredentials deletes every stored device so the next Dial pairs fresh.
func (d *Dialer) ResetCredentials(ctx context.Context) error {
	devices, err := d.container.GetAllDevices(ctx)
	if err != nil {
		return fmt.Errorf("whatsapp: list devices: %w", err)
	}
	for _, dev := range devices {
		if err := dev.Delete(ctx); err != nil {
			return fmt.Errorf("whatsapp: delete device: %w", err)
		}
	}
	d.log.Info("credential store reset", logx.Int("devices", len(devices)))
	return nil
}

func (d *Dialer) Close() error { return d.container.Close() }

// client wraps one live whatsmeow session. It implements kit.Client.
type client struct {
	wm  *whatsmeow.Client
	out chan<- kit.Event
	log logx.Logger
}

func (c *client) SendText(ctx context.Context, to kit.Recipient, text string) error {
	jid, err := types.ParseJID(string(to))
	if err != nil {
		return fmt.Errorf("whatsapp: bad recipient %q: %w", to, err)
	}
	_, err = c.wm.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	return err
}

func (c *client) SendPresence() error {
	return c.wm.SendPresence(context.Background(), types.PresenceAvailable)
}

func (c *client) Connected() bool { return c.wm.IsConnected() }

func (c *client) Disconnect() { c.wm.Disconnect() }

func (c *client) emit(e kit.Event) {
	// The session supervisor drains this channel; a full buffer means it is
	// wedged, and blocking whatsmeow's event goroutine would make it worse.
	select {
	case c.out <- e:
	default:
		c.log.Warn("lifecycle event dropped", logx.String("kind", string(e.Kind)))
	}
}

func (c *client) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.Connected:
		c.emit(kit.Event{Kind: kit.EventConnected})
	case *events.Disconnected:
		c.emit(kit.Event{Kind: kit.EventDisconnected, Reason: "stream closed"})
	case *events.StreamReplaced:
		c.emit(kit.Event{Kind: kit.EventDisconnected, Reason: "stream replaced"})
	case *events.LoggedOut:
		c.emit(kit.Event{Kind: kit.EventLoggedOut, Reason: e.Reason.String()})
	}
}

func (c *client) forwardQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case "code":
			c.emit(kit.Event{Kind: kit.EventQRChallenge, QRCode: item.Code})
		case "success":
			// events.Connected follows from the main handler.
		default:
			// timeout / outdated client / multidevice errors end the pairing attempt.
			c.emit(kit.Event{Kind: kit.EventDisconnected, Reason: "pairing: " + item.Event})
		}
	}
}
