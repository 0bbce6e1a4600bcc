package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/ports"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
stages:
  - name: detect
    workers: 4
sink:
  kind: websocket
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Pipeline.Policy.DrainTimeout != 5*time.Second {
		t.Fatalf("expected drain timeout default 5s, got %s", cfg.Pipeline.Policy.DrainTimeout)
	}
	if cfg.Pipeline.Policy.SinkRetryMax != 3 {
		t.Fatalf("expected sink retry default 3, got %d", cfg.Pipeline.Policy.SinkRetryMax)
	}
	if cfg.Pipeline.SinkQueueCapacity != 16 {
		t.Fatalf("expected sink queue capacity default 16, got %d", cfg.Pipeline.SinkQueueCapacity)
	}
	if cfg.Source.Kind != SourceSynthetic {
		t.Fatalf("expected default source kind synthetic, got %s", cfg.Source.Kind)
	}
	if cfg.Source.Synthetic.Width != 640 || cfg.Source.Synthetic.FPS != 30 {
		t.Fatalf("expected synthetic defaults 640x480@30, got %+v", cfg.Source.Synthetic)
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Fatalf("expected default metrics addr :9100, got %s", cfg.Metrics.Addr)
	}

	d := cfg.Stages[0]
	if d.Workers != 4 {
		t.Fatalf("expected explicit workers preserved, got %d", d.Workers)
	}
	if d.QueueCapacity != 16 || d.QueuePolicy != ports.PolicyBlock {
		t.Fatalf("expected stage queue defaults, got %+v", d)
	}
}

func TestLoadRejectsUnknownSourceKind(t *testing.T) {
	path := writeConfig(t, `
source:
  kind: webcam
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown source kind")
	}
}

func TestLoadRequiresPostgresConnString(t *testing.T) {
	path := writeConfig(t, `
sink:
  kind: postgres
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing conn_string")
	}
}

func TestLoadRejectsDuplicateStageNames(t *testing.T) {
	path := writeConfig(t, `
stages:
  - name: detect
  - name: detect
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for duplicate stage names")
	}
}

func TestLoadRejectsBadQueuePolicy(t *testing.T) {
	path := writeConfig(t, `
stages:
  - name: detect
    queue_policy: drop_newest
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown queue policy")
	}
}

func TestLoadFileSourceNeedsPath(t *testing.T) {
	path := writeConfig(t, `
source:
  kind: file
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing replay path")
	}
}
