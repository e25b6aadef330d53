// ABOUTME: Configuration loading for the voicelink CLI
// ABOUTME: Merges defaults, an optional YAML file and VOICELINK_* environment
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mokvoice/voicelink-go/pkg/audio"
	"github.com/mokvoice/voicelink-go/pkg/heartbeat"
	"github.com/mokvoice/voicelink-go/pkg/pipeline"
	"github.com/mokvoice/voicelink-go/pkg/protocol"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "VOICELINK_"

// Config represents the complete client configuration
type Config struct {
	Call      CallConfig      `yaml:"call"`
	Audio     AudioConfig     `yaml:"audio"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// CallConfig selects the speech service and call
type CallConfig struct {
	Endpoint     string `yaml:"endpoint"`
	CallID       string `yaml:"call_id"`
	TemplateID   string `yaml:"template_id"`
	EnableUpdate bool   `yaml:"enable_update"`
	SampleRate   int    `yaml:"sample_rate"`
}

// AudioConfig selects devices and delivery
type AudioConfig struct {
	Strategy     string `yaml:"strategy"`      // auto, low-latency or buffered
	InputFile    string `yaml:"input_file"`    // MP3 played instead of the microphone
	InputBackend string `yaml:"input_backend"` // malgo or portaudio
}

// HeartbeatConfig holds liveness timing
type HeartbeatConfig struct {
	SlowInterval time.Duration `yaml:"slow_interval"`
	FastInterval time.Duration `yaml:"fast_interval"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// DiscoveryConfig controls mDNS lookup of a local service
type DiscoveryConfig struct {
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Address string `yaml:"address"` // empty disables the endpoint
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns the built-in configuration
func Default() *Config {
	hb := heartbeat.DefaultConfig()
	return &Config{
		Call: CallConfig{
			Endpoint:     protocol.DefaultEndpoint,
			EnableUpdate: true,
			SampleRate:   audio.DefaultSampleRate,
		},
		Audio: AudioConfig{
			Strategy:     "auto",
			InputBackend: "malgo",
		},
		Heartbeat: HeartbeatConfig{
			SlowInterval: hb.SlowInterval,
			FastInterval: hb.FastInterval,
			ProbeTimeout: hb.ProbeTimeout,
		},
		Discovery: DiscoveryConfig{
			Timeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "voicelink.log",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// any) and the environment, including variables from envFile. Real
// environment variables win over envFile entries.
func Load(path, envFile string) (*Config, error) {
	config := Default()

	if path != "" {
		if err := config.LoadFile(path); err != nil {
			return nil, err
		}
	}

	env, err := readEnv(envFile)
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(env); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// LoadFile overlays the YAML file at path
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// readEnv returns envFile entries overlaid with the process environment
func readEnv(envFile string) (map[string]string, error) {
	env := make(map[string]string)

	if envFile != "" {
		fileEnv, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read env file %s: %w", envFile, err)
		}
		for k, v := range fileEnv {
			env[k] = v
		}
	}

	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, EnvPrefix) {
			env[k] = v
		}
	}
	return env, nil
}

// ApplyEnv overlays VOICELINK_* values from env
func (c *Config) ApplyEnv(env map[string]string) error {
	strs := map[string]*string{
		"ENDPOINT":      &c.Call.Endpoint,
		"CALL_ID":       &c.Call.CallID,
		"TEMPLATE_ID":   &c.Call.TemplateID,
		"STRATEGY":      &c.Audio.Strategy,
		"INPUT_FILE":    &c.Audio.InputFile,
		"INPUT_BACKEND": &c.Audio.InputBackend,
		"METRICS_ADDR":  &c.Metrics.Address,
		"LOG_LEVEL":     &c.Logging.Level,
		"LOG_FORMAT":    &c.Logging.Format,
		"LOG_FILE":      &c.Logging.File,
	}
	for name, dst := range strs {
		if v, ok := env[EnvPrefix+name]; ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"ENABLE_UPDATE": &c.Call.EnableUpdate,
		"DISCOVERY":     &c.Discovery.Enabled,
	}
	for name, dst := range bools {
		if v, ok := env[EnvPrefix+name]; ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = b
		}
	}

	if v, ok := env[EnvPrefix+"SAMPLE_RATE"]; ok {
		rate, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sSAMPLE_RATE: %w", EnvPrefix, err)
		}
		c.Call.SampleRate = rate
	}

	durations := map[string]*time.Duration{
		"HEARTBEAT_SLOW":    &c.Heartbeat.SlowInterval,
		"HEARTBEAT_FAST":    &c.Heartbeat.FastInterval,
		"HEARTBEAT_TIMEOUT": &c.Heartbeat.ProbeTimeout,
		"DISCOVERY_TIMEOUT": &c.Discovery.Timeout,
	}
	for name, dst := range durations {
		if v, ok := env[EnvPrefix+name]; ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = d
		}
	}

	return nil
}

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	if err := c.Call.Validate(); err != nil {
		return fmt.Errorf("call config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Heartbeat.Validate(); err != nil {
		return fmt.Errorf("heartbeat config: %w", err)
	}
	if err := c.Discovery.Validate(); err != nil {
		return fmt.Errorf("discovery config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates call configuration
func (cc *CallConfig) Validate() error {
	if cc.SampleRate < 8000 || cc.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000, got %d", cc.SampleRate)
	}
	if cc.Endpoint != "" {
		if _, err := protocol.BuildURL(cc.Endpoint, "probe", "", false); err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
	}
	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if _, err := pipeline.ParseStrategy(a.Strategy); err != nil {
		return err
	}
	switch a.InputBackend {
	case "", "malgo", "portaudio":
	default:
		return fmt.Errorf("input_backend must be malgo or portaudio, got %q", a.InputBackend)
	}
	return nil
}

// Validate validates heartbeat timing
func (h *HeartbeatConfig) Validate() error {
	if h.SlowInterval <= 0 || h.FastInterval <= 0 || h.ProbeTimeout <= 0 {
		return fmt.Errorf("intervals and probe_timeout must be positive")
	}
	if h.FastInterval > h.SlowInterval {
		return fmt.Errorf("fast_interval (%v) must not exceed slow_interval (%v)", h.FastInterval, h.SlowInterval)
	}
	return nil
}

// Validate validates discovery configuration
func (d *DiscoveryConfig) Validate() error {
	if d.Enabled && d.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive when discovery is enabled")
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	if _, err := logrus.ParseLevel(l.Level); err != nil {
		return err
	}
	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("format must be text or json, got %q", l.Format)
	}
	return nil
}

// HeartbeatConfig converts the timing section for the transport
func (c *Config) HeartbeatConfig() heartbeat.Config {
	return heartbeat.Config{
		SlowInterval: c.Heartbeat.SlowInterval,
		FastInterval: c.Heartbeat.FastInterval,
		ProbeTimeout: c.Heartbeat.ProbeTimeout,
	}
}

// Strategy returns the parsed delivery strategy
func (c *Config) Strategy() pipeline.Strategy {
	s, _ := pipeline.ParseStrategy(c.Audio.Strategy)
	return s
}
