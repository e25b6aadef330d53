// ABOUTME: Entry point for the voicelink call client
// ABOUTME: Parses CLI flags and config, then runs one conversation
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mokvoice/voicelink-go/internal/config"
	"github.com/mokvoice/voicelink-go/internal/discovery"
	"github.com/mokvoice/voicelink-go/internal/metrics"
	"github.com/mokvoice/voicelink-go/internal/ui"
	"github.com/mokvoice/voicelink-go/internal/version"
	"github.com/mokvoice/voicelink-go/pkg/audio"
	"github.com/mokvoice/voicelink-go/pkg/audio/decode"
	"github.com/mokvoice/voicelink-go/pkg/audio/device"
	"github.com/mokvoice/voicelink-go/pkg/protocol"
	"github.com/mokvoice/voicelink-go/pkg/voicelink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	configPath   = flag.String("config", "", "YAML config file")
	envFile      = flag.String("env-file", ".env", "Environment file with VOICELINK_* overrides")
	endpoint     = flag.String("endpoint", "", "Speech service base URL (default: "+protocol.DefaultEndpoint+")")
	callID       = flag.String("call-id", "", "Call identifier")
	templateID   = flag.String("template-id", "", "Template identifier")
	sampleRate   = flag.Int("sample-rate", 0, "Sample rate in Hz (default: 24000)")
	strategy     = flag.String("strategy", "", "Audio delivery: auto, low-latency or buffered")
	inputFile    = flag.String("input-file", "", "MP3 file to send instead of the microphone")
	inputBackend = flag.String("input-backend", "", "Microphone backend: malgo or portaudio")
	discover     = flag.Bool("discover", false, "Find a local speech service via mDNS")
	metricsAddr  = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	logFile      = flag.String("log-file", "", "Log file path (default: voicelink.log)")
	logLevel     = flag.String("log-level", "", "Log level (default: info)")
	noTUI        = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	streamLogs   = flag.Bool("stream-logs", false, "Alias for -no-tui")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicelink: %v\n", err)
		os.Exit(2)
	}

	// Determine if we should use TUI or streaming logs
	useTUI := !(*noTUI || *streamLogs)

	log, closeLog, err := setupLogging(cfg.Logging, useTUI)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicelink: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if cfg.Call.CallID == "" {
		log.Fatal("No call id: set -call-id, call.call_id or VOICELINK_CALL_ID")
	}

	log.Infof("Starting %s %s", version.Product, version.Version)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Discovery.Enabled {
		log.Info("Starting service discovery...")
		discoverCtx, stop := context.WithTimeout(ctx, cfg.Discovery.Timeout)
		service, err := discovery.Discover(discoverCtx, discovery.Config{Logger: log})
		stop()
		if err != nil {
			log.Fatalf("Discovery failed: %v", err)
		}
		cfg.Call.Endpoint = service.Endpoint()
		log.Infof("Discovered %s at %s", service.Name, cfg.Call.Endpoint)
	}

	var recorder voicelink.Recorder
	if cfg.Metrics.Address != "" {
		m, shutdown := serveMetrics(cfg.Metrics.Address, log)
		defer shutdown()
		recorder = m
	}

	var input audio.InputStream
	if cfg.Audio.InputFile != "" {
		stream, err := decode.OpenMP3(cfg.Audio.InputFile, cfg.Call.SampleRate)
		if err != nil {
			log.Fatalf("Failed to open input file: %v", err)
		}
		log.Infof("Sending %s (%dHz source) instead of the microphone", cfg.Audio.InputFile, stream.SourceRate())
		input = stream
	}

	// TUI setup
	var tuiProg *tea.Program
	var controls *ui.Controls
	if useTUI {
		controls = ui.NewControls()
		tuiProg = ui.Run(ui.NewModel(cfg.Call.CallID, cfg.Call.Endpoint, cfg.Call.SampleRate, controls))
		go func() {
			if _, err := tuiProg.Run(); err != nil {
				log.Errorf("TUI error: %v", err)
			}
		}()
	}

	// Helper to update TUI
	updateTUI := func(msg ui.StatusMsg) {
		if tuiProg != nil {
			tuiProg.Send(msg)
		}
	}

	ended := make(chan voicelink.EndInfo, 1)
	host := device.NewHost(device.HostConfig{
		InputBackend: cfg.Audio.InputBackend,
		Logger:       log,
	})

	var session *voicelink.Session
	session = voicelink.NewSession(host, voicelink.Handlers{
		OnConversationStarted: func() {
			updateTUI(ui.StatusMsg{Strategy: session.Strategy().String()})
		},
		OnConversationEnded: func(info voicelink.EndInfo) {
			updateTUI(ui.StatusMsg{Ended: &info})
			select {
			case ended <- info:
			default:
			}
		},
		OnUpdate: func(update protocol.Update) {
			kind := update.Type()
			if kind == "" {
				kind = "update"
			}
			log.Debugf("Update: %v", map[string]any(update))
			updateTUI(ui.StatusMsg{Update: kind})
		},
		OnDisconnect: func() {
			lost := true
			updateTUI(ui.StatusMsg{LinkLost: &lost})
		},
		OnReconnect: func() {
			lost := false
			updateTUI(ui.StatusMsg{LinkLost: &lost})
		},
		OnError: func(err error) {
			updateTUI(ui.StatusMsg{Error: err.Error()})
			if errors.Is(err, voicelink.ErrPermissionDenied) {
				log.Error("Microphone access was denied; grant access or use -input-file")
			}
		},
		OnStateChange: func(state voicelink.State) {
			updateTUI(ui.StatusMsg{State: state.String()})
		},
	})

	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())

	err = session.StartConversation(ctx, voicelink.Config{
		SampleRate:   cfg.Call.SampleRate,
		CallID:       cfg.Call.CallID,
		TemplateID:   cfg.Call.TemplateID,
		Endpoint:     cfg.Call.Endpoint,
		EnableUpdate: cfg.Call.EnableUpdate,
		Input:        input,
		Strategy:     cfg.Strategy(),
		Heartbeat:    cfg.HeartbeatConfig(),
		Header:       header,
		Logger:       log,
		Metrics:      recorder,
	})
	if err != nil {
		if tuiProg != nil {
			tuiProg.Quit()
		}
		log.Fatalf("Failed to start conversation: %v", err)
	}

	// Start stats update loop for TUI
	if tuiProg != nil {
		go statsUpdateLoop(ctx, session, updateTUI)
	}

	var quit <-chan struct{}
	var stop <-chan struct{}
	if controls != nil {
		quit = controls.Quit
		stop = controls.Stop
	}

	// Wait for the call to end, a quit from the TUI or a signal
	for waiting := true; waiting; {
		select {
		case info := <-ended:
			log.Infof("Conversation ended (code %d)", info.Code)
			waiting = false
		case <-stop:
			log.Info("Hang up requested from TUI")
			session.StopConversation()
		case <-quit:
			log.Info("Received quit signal from TUI")
			waiting = false
		case <-ctx.Done():
			log.Info("Shutdown signal received")
			waiting = false
		}
	}

	session.StopConversation()
	if tuiProg != nil {
		tuiProg.Quit()
	}

	stats := session.Stats()
	log.Infof("Call stopped: sent %d bytes, received %d bytes, %d blocks dropped, duration %v",
		stats.SentBytes, stats.ReceivedBytes, stats.DroppedBlocks, stats.Duration.Round(time.Second))
}

// loadConfig merges the config file, environment and explicitly set flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		return nil, err
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "endpoint":
			cfg.Call.Endpoint = *endpoint
		case "call-id":
			cfg.Call.CallID = *callID
		case "template-id":
			cfg.Call.TemplateID = *templateID
		case "sample-rate":
			cfg.Call.SampleRate = *sampleRate
		case "strategy":
			cfg.Audio.Strategy = *strategy
		case "input-file":
			cfg.Audio.InputFile = *inputFile
		case "input-backend":
			cfg.Audio.InputBackend = *inputBackend
		case "discover":
			cfg.Discovery.Enabled = *discover
		case "metrics-addr":
			cfg.Metrics.Address = *metricsAddr
		case "log-file":
			cfg.Logging.File = *logFile
		case "log-level":
			cfg.Logging.Level = *logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

// setupLogging logs to the file, and to stdout as well without the TUI
func setupLogging(cfg config.LoggingConfig, useTUI bool) (*logrus.Entry, func(), error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	closeLog := func() {}
	var out io.Writer = os.Stdout
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return nil, nil, fmt.Errorf("error opening log file: %w", err)
		}
		closeLog = func() { _ = f.Close() }

		if useTUI {
			// TUI mode: log only to file
			out = f
		} else {
			out = io.MultiWriter(os.Stdout, f)
		}
	} else if useTUI {
		out = io.Discard
	}
	logger.SetOutput(out)

	return logrus.NewEntry(logger), closeLog, nil
}

// serveMetrics exposes a private registry on addr
func serveMetrics(addr string, log *logrus.Entry) (*metrics.Metrics, func()) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Metrics server error: %v", err)
		}
	}()
	log.Infof("Serving metrics on %s/metrics", addr)

	return m, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

// statsUpdateLoop periodically updates TUI with call statistics
func statsUpdateLoop(ctx context.Context, session *voicelink.Session, updateTUI func(ui.StatusMsg)) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := session.Stats()
			updateTUI(ui.StatusMsg{Stats: &stats})
		case <-ctx.Done():
			return
		}
	}
}
