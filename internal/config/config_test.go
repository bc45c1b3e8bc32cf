package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/linkctl/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "linkctl.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFileOverlaysDefinedKeys(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
network = "unix"
address = "/tmp/linkctl.sock"
call_timeout = "250ms"
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Network != "unix" || cfg.Address != "/tmp/linkctl.sock" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.CallTimeout != 250*time.Millisecond {
		t.Fatalf("unexpected timeout: %v", cfg.CallTimeout)
	}
	if cfg.MaxMessageBytes != DefaultConfig().MaxMessageBytes {
		t.Fatalf("undefined keys must keep defaults, got %d", cfg.MaxMessageBytes)
	}
}

func TestLoadFileValidates(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		body string
	}{
		{name: "bad network", body: `network = "carrier-pigeon"`},
		{name: "blank address", body: `address = "  "`},
		{name: "bad timeout", body: `call_timeout = "soon"`},
		{name: "zero limit", body: `max_message_bytes = 0`},
		{name: "negative limit", body: `max_message_bytes = -1`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.body)
			if _, err := LoadFile(path); err == nil {
				t.Fatalf("expected error for %q", tc.body)
			}
		})
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	testlog.Start(t)
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	limits := DefaultConfig().Limits()
	if limits.MaxMessageBytes == 0 {
		t.Fatalf("limits must carry the message bound")
	}
}
