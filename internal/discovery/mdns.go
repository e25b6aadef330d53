// ABOUTME: mDNS service discovery for voicelink speech services
// ABOUTME: Handles both advertisement (local services) and browsing (clients)
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"
)

// ServiceType is the mDNS service type of a voicelink speech service
const ServiceType = "_voicelink._tcp"

const (
	defaultPath         = "/"
	defaultQueryTimeout = 3 * time.Second
)

// Config holds discovery configuration
type Config struct {
	ServiceName  string
	Port         int
	Path         string // WebSocket path prefix advertised in TXT "path="
	Secure       bool   // advertise TXT "tls=1" so clients dial wss
	QueryTimeout time.Duration
	Logger       *logrus.Entry
}

// Manager handles mDNS operations
type Manager struct {
	config   Config
	log      *logrus.Entry
	ctx      context.Context
	cancel   context.CancelFunc
	services chan *ServiceInfo
	browse   sync.Once
}

// ServiceInfo describes a discovered speech service
type ServiceInfo struct {
	Name   string
	Host   string
	Port   int
	Path   string
	Secure bool
}

// Endpoint returns the base URL to dial, suitable for voicelink.Config.Endpoint
func (s *ServiceInfo) Endpoint() string {
	scheme := "ws"
	if s.Secure {
		scheme = "wss"
	}
	path := strings.TrimSuffix(s.Path, "/")
	return fmt.Sprintf("%s://%s%s", scheme, net.JoinHostPort(s.Host, strconv.Itoa(s.Port)), path)
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Path == "" {
		config.Path = defaultPath
	}
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = defaultQueryTimeout
	}

	log := config.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:   config,
		log:      log.WithField("component", "discovery"),
		ctx:      ctx,
		cancel:   cancel,
		services: make(chan *ServiceInfo, 10),
	}
}

// Advertise announces a local speech service via mDNS
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		txtRecords(m.config),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.log.Infof("Advertising mDNS service: %s on port %d (type: %s)", m.config.ServiceName, m.config.Port, ServiceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for speech services until Stop
func (m *Manager) Browse() {
	m.browse.Do(func() {
		go m.browseLoop()
	})
}

// browseLoop continuously browses for services
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		done := make(chan struct{})

		go func() {
			defer close(done)
			for entry := range entries {
				info := serviceFromEntry(entry)
				if info == nil {
					continue
				}

				m.log.Infof("Discovered service: %s at %s", info.Name, info.Endpoint())

				select {
				case m.services <- info:
				case <-m.ctx.Done():
				default:
					m.log.Debugf("Discovery channel full, skipping %s", info.Name)
				}
			}
		}()

		params := &mdns.QueryParam{
			Service: ServiceType,
			Domain:  "local",
			Timeout: m.config.QueryTimeout,
			Entries: entries,
		}

		if err := mdns.Query(params); err != nil {
			m.log.Debugf("mDNS query failed: %v", err)
			select {
			case <-m.ctx.Done():
			case <-time.After(m.config.QueryTimeout):
			}
		}
		close(entries)
		<-done
	}
}

// Services returns the channel of discovered services
func (m *Manager) Services() <-chan *ServiceInfo {
	return m.services
}

// Stop stops advertising and browsing
func (m *Manager) Stop() {
	m.cancel()
}

// Discover browses until the first service is found or ctx ends
func Discover(ctx context.Context, config Config) (*ServiceInfo, error) {
	m := NewManager(config)
	defer m.Stop()

	m.Browse()

	select {
	case info := <-m.Services():
		return info, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("no %s service found: %w", ServiceType, ctx.Err())
	}
}

func txtRecords(config Config) []string {
	txt := []string{"path=" + config.Path}
	if config.Secure {
		txt = append(txt, "tls=1")
	}
	return txt
}

func serviceFromEntry(entry *mdns.ServiceEntry) *ServiceInfo {
	var host string
	switch {
	case entry.AddrV4 != nil:
		host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		host = entry.AddrV6.String()
	default:
		return nil
	}

	fields := parseTXT(entry.InfoFields)
	path := fields["path"]
	if path == "" {
		path = defaultPath
	}

	return &ServiceInfo{
		Name:   entry.Name,
		Host:   host,
		Port:   entry.Port,
		Path:   path,
		Secure: fields["tls"] == "1",
	}
}

// parseTXT splits key=value TXT fields
func parseTXT(fields []string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		key, value, _ := strings.Cut(f, "=")
		if key == "" {
			continue
		}
		out[strings.ToLower(key)] = value
	}
	return out
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
