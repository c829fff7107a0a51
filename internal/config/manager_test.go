package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{
		"http": {"addr": "127.0.0.1:9999"},
		"session": {"store_path": "/tmp/wa.db", "reconnect_delay": "5s", "keepalive": "@hourly"},
		"broadcast": {"rate_per_sec": 3, "max_log_entries": 50},
		"logging": {"level": "DEBUG", "console": true}
	}`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != "127.0.0.1:9999" {
		t.Fatalf("http.addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Session.StorePath != "/tmp/wa.db" || cfg.Session.Keepalive != "@hourly" {
		t.Fatalf("session = %+v", cfg.Session)
	}
	if cfg.Broadcast.RatePerSec != 3 || cfg.Broadcast.MaxLogEntries != 50 {
		t.Fatalf("broadcast = %+v", cfg.Broadcast)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Fatalf("logging.level = %q", cfg.Logging.Level)
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yaml", `
http:
  addr: "0.0.0.0:8088"
session:
  store_path: ./wa.db
  device_name: blast-box
broadcast:
  rate_per_sec: 7
logging:
  level: WARN
  console: false
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != "0.0.0.0:8088" {
		t.Fatalf("http.addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Session.DeviceName != "blast-box" {
		t.Fatalf("device_name = %q", cfg.Session.DeviceName)
	}
	if cfg.Broadcast.RatePerSec != 7 {
		t.Fatalf("rate_per_sec = %d", cfg.Broadcast.RatePerSec)
	}
	if cfg.Logging.Console {
		t.Fatal("logging.console should be false")
	}
}

func TestLoadDefaultsApply(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{}`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if cfg.HTTP.Addr != def.HTTP.Addr {
		t.Fatalf("http.addr = %q, want default %q", cfg.HTTP.Addr, def.HTTP.Addr)
	}
	if cfg.Session.StorePath != def.Session.StorePath {
		t.Fatalf("store_path = %q, want default %q", cfg.Session.StorePath, def.Session.StorePath)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{"htttp": {"addr": ":1"}}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("want error for unknown field")
	}
}

func TestLoadRejectsTrailingData(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{}{}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("want error for trailing data")
	}
}

func TestSubscribePublishUnsubscribe(t *testing.T) {
	t.Parallel()

	m := NewManager("unused")
	ch := m.Subscribe(1)

	cfg := Default()
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("published pointer differs")
		}
	default:
		t.Fatal("no config delivered")
	}

	// Full buffer: the stale revision is dropped for the newest.
	first, second := Default(), Default()
	m.publish(first)
	m.publish(second)
	if got := <-ch; got != second {
		t.Fatal("expected newest revision after overflow")
	}

	m.Unsubscribe(ch)
	if _, open := <-ch; open {
		t.Fatal("channel should be closed after Unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	m.publish(Default())
}

func TestWatchReloadsOnWrite(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{"http": {"addr": "127.0.0.1:1000"}}`)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ch := m.Subscribe(1)
	ctx := t.Context()
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher a moment to attach before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"http": {"addr": "127.0.0.1:2000"}}`), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-ch:
		if cfg.HTTP.Addr != "127.0.0.1:2000" {
			t.Fatalf("reloaded addr = %q", cfg.HTTP.Addr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}

	if got := m.Get().HTTP.Addr; got != "127.0.0.1:2000" {
		t.Fatalf("Get().HTTP.Addr = %q after reload", got)
	}
}

func TestReloadRejectsInvalidRevision(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{"http": {"addr": "127.0.0.1:1000"}}`)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.SetValidator(func(_ context.Context, cfg *Config) error {
		if cfg.HTTP.Addr == "127.0.0.1:2000" {
			return errors.New("addr blocked")
		}
		return nil
	})

	ch := m.Subscribe(1)

	// A rejected revision must neither commit nor publish.
	if err := os.WriteFile(path, []byte(`{"http": {"addr": "127.0.0.1:2000"}}`), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	m.reload(context.Background())
	select {
	case cfg := <-ch:
		t.Fatalf("rejected revision published: %+v", cfg)
	default:
	}
	if got := m.Get().HTTP.Addr; got != "127.0.0.1:1000" {
		t.Fatalf("committed addr = %q, want previous revision kept", got)
	}

	// A valid revision goes through.
	if err := os.WriteFile(path, []byte(`{"http": {"addr": "127.0.0.1:3000"}}`), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	m.reload(context.Background())
	select {
	case cfg := <-ch:
		if cfg.HTTP.Addr != "127.0.0.1:3000" {
			t.Fatalf("published addr = %q", cfg.HTTP.Addr)
		}
	default:
		t.Fatal("valid revision not published")
	}
}

func TestReloadSkipsUnchangedContent(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{"http": {"addr": "127.0.0.1:1000"}}`)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ch := m.Subscribe(1)
	m.reload(context.Background())
	select {
	case <-ch:
		t.Fatal("unchanged content republished")
	default:
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: 0},
		{raw: "3s", want: 3 * time.Second},
		{raw: " 500ms ", want: 500 * time.Millisecond},
		{raw: "-1s", wantErr: true},
		{raw: "fast", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseDurationField("test.field", tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseDurationField(%q): want error", tc.raw)
			}
			if !strings.Contains(err.Error(), "test.field") {
				t.Fatalf("error should name the field: %v", err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseDurationField(%q): %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("ParseDurationField(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurationOrDefault("f", "", 3*time.Second); err != nil || d != 3*time.Second {
		t.Fatalf("empty: %v, %v", d, err)
	}
	if d, err := ParseDurationOrDefault("f", "10s", 3*time.Second); err != nil || d != 10*time.Second {
		t.Fatalf("explicit: %v, %v", d, err)
	}
	if _, err := ParseDurationOrDefault("f", "nope", 3*time.Second); err == nil {
		t.Fatal("invalid input should error")
	}
}
