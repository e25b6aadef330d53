// ABOUTME: Tests for configuration loading
// ABOUTME: Tests defaults, YAML overlay, environment precedence and validation
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mokvoice/voicelink-go/pkg/pipeline"
	"github.com/mokvoice/voicelink-go/pkg/protocol"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	if c.Call.Endpoint != protocol.DefaultEndpoint {
		t.Errorf("expected default endpoint, got %q", c.Call.Endpoint)
	}
	if c.Call.SampleRate != 24000 {
		t.Errorf("expected 24000Hz, got %d", c.Call.SampleRate)
	}
	if c.Heartbeat.SlowInterval != 5*time.Second || c.Heartbeat.FastInterval != time.Second || c.Heartbeat.ProbeTimeout != 3*time.Second {
		t.Errorf("unexpected heartbeat defaults %+v", c.Heartbeat)
	}
	if c.Strategy() != pipeline.StrategyAuto {
		t.Errorf("expected auto strategy, got %v", c.Strategy())
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "voicelink.yaml", `
call:
  endpoint: wss://speech.example.com/ws
  call_id: call_abc
  template_id: tmpl_1
  sample_rate: 16000
audio:
  strategy: buffered
heartbeat:
  slow_interval: 10s
  fast_interval: 2s
  probe_timeout: 4s
logging:
  level: debug
  format: json
`)

	c, err := Load(path, "")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if c.Call.Endpoint != "wss://speech.example.com/ws" || c.Call.CallID != "call_abc" || c.Call.TemplateID != "tmpl_1" {
		t.Errorf("unexpected call section %+v", c.Call)
	}
	if c.Call.SampleRate != 16000 {
		t.Errorf("expected 16000Hz, got %d", c.Call.SampleRate)
	}
	if !c.Call.EnableUpdate {
		t.Error("expected enable_update default to survive a partial file")
	}
	if c.Strategy() != pipeline.StrategyBuffered {
		t.Errorf("expected buffered strategy, got %v", c.Strategy())
	}

	hb := c.HeartbeatConfig()
	if hb.SlowInterval != 10*time.Second || hb.FastInterval != 2*time.Second || hb.ProbeTimeout != 4*time.Second {
		t.Errorf("unexpected heartbeat config %+v", hb)
	}
	if c.Logging.Level != "debug" || c.Logging.Format != "json" {
		t.Errorf("unexpected logging section %+v", c.Logging)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), ""); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "call: [unclosed")
	if _, err := Load(path, ""); err == nil {
		t.Error("expected parse error")
	}
}

func TestEnvFileAndPrecedence(t *testing.T) {
	yamlPath := writeFile(t, "voicelink.yaml", "call:\n  call_id: from_yaml\n  template_id: from_yaml\n")
	envPath := writeFile(t, ".env", "VOICELINK_CALL_ID=from_envfile\nVOICELINK_TEMPLATE_ID=from_envfile\nVOICELINK_ENABLE_UPDATE=false\n")
	t.Setenv("VOICELINK_TEMPLATE_ID", "from_process")

	c, err := Load(yamlPath, envPath)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if c.Call.CallID != "from_envfile" {
		t.Errorf("expected env file to override yaml, got %q", c.Call.CallID)
	}
	if c.Call.TemplateID != "from_process" {
		t.Errorf("expected process env to override env file, got %q", c.Call.TemplateID)
	}
	if c.Call.EnableUpdate {
		t.Error("expected enable_update disabled by env file")
	}
}

func TestMissingEnvFileIgnored(t *testing.T) {
	if _, err := Load("", filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("expected missing env file to be ignored, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		check   func(*Config) bool
		wantErr string
	}{
		{
			name:  "sample rate",
			env:   map[string]string{"VOICELINK_SAMPLE_RATE": "16000"},
			check: func(c *Config) bool { return c.Call.SampleRate == 16000 },
		},
		{
			name:  "heartbeat duration",
			env:   map[string]string{"VOICELINK_HEARTBEAT_SLOW": "7s"},
			check: func(c *Config) bool { return c.Heartbeat.SlowInterval == 7*time.Second },
		},
		{
			name:  "discovery",
			env:   map[string]string{"VOICELINK_DISCOVERY": "true"},
			check: func(c *Config) bool { return c.Discovery.Enabled },
		},
		{
			name:    "bad bool",
			env:     map[string]string{"VOICELINK_ENABLE_UPDATE": "maybe"},
			wantErr: "VOICELINK_ENABLE_UPDATE",
		},
		{
			name:    "bad rate",
			env:     map[string]string{"VOICELINK_SAMPLE_RATE": "fast"},
			wantErr: "VOICELINK_SAMPLE_RATE",
		},
		{
			name:    "bad duration",
			env:     map[string]string{"VOICELINK_HEARTBEAT_TIMEOUT": "soon"},
			wantErr: "VOICELINK_HEARTBEAT_TIMEOUT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			err := c.ApplyEnv(tt.env)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error mentioning %s, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.check(c) {
				t.Errorf("override not applied: %+v", c)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"sample rate too low", func(c *Config) { c.Call.SampleRate = 4000 }, "sample_rate"},
		{"bad endpoint scheme", func(c *Config) { c.Call.Endpoint = "ftp://example.com" }, "endpoint"},
		{"bad strategy", func(c *Config) { c.Audio.Strategy = "fastest" }, "unknown strategy"},
		{"bad backend", func(c *Config) { c.Audio.InputBackend = "jack" }, "input_backend"},
		{"zero probe timeout", func(c *Config) { c.Heartbeat.ProbeTimeout = 0 }, "positive"},
		{"fast slower than slow", func(c *Config) { c.Heartbeat.FastInterval = 10 * time.Second }, "fast_interval"},
		{"discovery without timeout", func(c *Config) { c.Discovery.Enabled = true; c.Discovery.Timeout = 0 }, "timeout"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging config"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}
