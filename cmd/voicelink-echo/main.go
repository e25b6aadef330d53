// ABOUTME: Entry point for the local echo speech service
// ABOUTME: Parses CLI flags and serves calls that play the caller back
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mokvoice/voicelink-go/internal/echo"
	"github.com/sirupsen/logrus"
)

var (
	port        = flag.Int("port", 8927, "WebSocket server port")
	name        = flag.String("name", "", "Service friendly name (default: hostname-voicelink-echo)")
	logFile     = flag.String("log-file", "voicelink-echo.log", "Log file path")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	noMDNS      = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	delay       = flag.Duration("delay", 500*time.Millisecond, "Delay before audio is echoed back")
	updateEvery = flag.Int("update-every", 50, "Send an update object every N audio frames (0 disables)")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Set up logging (both file and console)
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		logger.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()
	logger.SetOutput(io.MultiWriter(os.Stdout, f))

	// Determine service name
	serviceName := *name
	if serviceName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serviceName = fmt.Sprintf("%s-voicelink-echo", hostname)
	}

	log := logrus.NewEntry(logger)
	log.Infof("Starting echo service: %s on port %d", serviceName, *port)
	log.Infof("Logging to: %s", *logFile)
	log.Info("Press Ctrl-C to stop")

	srv := echo.New(echo.Config{
		Port:        *port,
		Name:        serviceName,
		EnableMDNS:  !*noMDNS,
		Delay:       *delay,
		UpdateEvery: *updateEvery,
		Logger:      log,
	})

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Infof("Received %v signal, shutting down gracefully...", sig)
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
