package session

import (
	"testing"
	"time"
)

func TestParseKeepaliveSpec(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		raw     string
		wantNil bool
		wantErr bool
	}{
		{name: "empty disables keepalive", raw: "", wantNil: true},
		{name: "whitespace disables keepalive", raw: "   ", wantNil: true},
		{name: "five field crontab", raw: "*/10 * * * *"},
		{name: "descriptor hourly", raw: "@hourly"},
		{name: "descriptor every", raw: "@every 15m"},
		{name: "six fields rejected", raw: "* * * * * *", wantErr: true},
		{name: "garbage rejected", raw: "often", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			sched, err := ParseKeepaliveSpec(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseKeepaliveSpec(%q): want error", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseKeepaliveSpec(%q): %v", tc.raw, err)
			}
			if tc.wantNil {
				if sched != nil {
					t.Fatalf("ParseKeepaliveSpec(%q): want nil schedule", tc.raw)
				}
				return
			}
			if sched == nil {
				t.Fatalf("ParseKeepaliveSpec(%q): nil schedule", tc.raw)
			}
			now := time.Now()
			if next := sched.Next(now); !next.After(now) {
				t.Fatalf("Next(%v) = %v, want a future time", now, next)
			}
		})
	}
}
