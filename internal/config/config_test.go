package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/radioctl/internal/testutil/testlog"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "radioctl.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesOnlyDefinedKeys(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, `
[serial]
device = " /dev/ttyUSB0 "
read_timeout = "50ms"

[protocol]
max_retries = 5
completion_timeout = "2s"

[diagnostics]
cors_origins = ["http://a", " ", "http://b"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := Default()
	if cfg.Serial.Device != "/dev/ttyUSB0" || cfg.Serial.ReadTimeout != 50*time.Millisecond {
		t.Fatalf("unexpected serial: %+v", cfg.Serial)
	}
	if cfg.Serial.Baud != def.Serial.Baud {
		t.Fatalf("baud default lost: %d", cfg.Serial.Baud)
	}
	if cfg.Protocol.MaxRetries != 5 || cfg.Protocol.CompletionTimeout != 2*time.Second {
		t.Fatalf("unexpected protocol: %+v", cfg.Protocol)
	}
	if cfg.Protocol.DesyncTimeout != def.Protocol.DesyncTimeout {
		t.Fatalf("desync default lost: %v", cfg.Protocol.DesyncTimeout)
	}
	if len(cfg.Diagnostics.CorsOrigins) != 2 || !cfg.Diagnostics.Enabled {
		t.Fatalf("unexpected diagnostics: %+v", cfg.Diagnostics)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"duration":  "[protocol]\ncompletion_timeout = \"soon\"\n",
		"parity":    "[serial]\nparity = \"mark\"\n",
		"retries":   "[protocol]\nmax_retries = -1\n",
		"log":       "[log]\nlevel = \"loud\"\n",
		"unknown":   "[serial]\nspeed = 9600\n",
		"backoff":   "[protocol]\nrestart_delay = \"2m\"\n",
		"diag_addr": "[diagnostics]\naddr = \"\"\n",
	}
	for name, body := range cases {
		if _, err := Load(writeFile(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := Load(writeFile(t, "[log]\nlevel = \"loud\"\n")); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("missing file accepted")
	}
}

func TestTemplateRoundTripsToDefault(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "radioctl.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("existing file overwritten")
	}
	if err := WriteTemplate(path, true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	def := Default()
	if cfg.Protocol != def.Protocol {
		t.Fatalf("protocol drift:\n got %+v\nwant %+v", cfg.Protocol, def.Protocol)
	}
	if cfg.Serial != def.Serial || cfg.Diagnostics.Addr != def.Diagnostics.Addr {
		t.Fatalf("serial/diagnostics drift: %+v %+v", cfg.Serial, cfg.Diagnostics)
	}
}
