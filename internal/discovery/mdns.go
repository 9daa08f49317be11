// ABOUTME: mDNS service discovery for local Live API servers
// ABOUTME: The mock server advertises _ose-live._tcp and the client browses for it
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Resonate-Protocol/ose-go/internal/version"
	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog/log"
)

// ServiceType is the mDNS service advertised by local live servers
const ServiceType = "_ose-live._tcp"

// ErrNotFound is returned when browsing finds no server before the timeout
var ErrNotFound = errors.New("no live server found")

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
}

// Manager handles mDNS operations
type Manager struct {
	config Config
	ctx    context.Context
	cancel context.CancelFunc
}

// ServerInfo describes a discovered server
type ServerInfo struct {
	Name         string
	Host         string
	Port         int
	Manufacturer string
	Version      string
}

// BaseURL returns the http base URL the wire client maps to ws
func (s ServerInfo) BaseURL() string {
	return "http://" + net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Advertise announces a live server until Stop is called
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
		txtRecords(),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Info().
		Str("name", m.config.ServiceName).
		Int("port", m.config.Port).
		Str("type", ServiceType).
		Msg("Advertising mDNS service")

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Find browses until the first server answers or the timeout passes
func (m *Manager) Find(timeout time.Duration) (*ServerInfo, error) {
	ctx, cancel := context.WithTimeout(m.ctx, timeout)
	defer cancel()

	entries := make(chan *mdns.ServiceEntry, 10)
	result := make(chan *ServerInfo, 1)
	go func() {
		result <- firstServer(entries, cancel)
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true

	err := mdns.QueryContext(ctx, params)
	close(entries)
	server := <-result

	switch {
	case server != nil:
		log.Info().Str("name", server.Name).Str("host", server.Host).Int("port", server.Port).Msg("Discovered live server")
		return server, nil
	case m.ctx.Err() != nil:
		return nil, m.ctx.Err()
	case err != nil && !errors.Is(err, context.DeadlineExceeded):
		return nil, fmt.Errorf("mdns query failed: %w", err)
	default:
		return nil, ErrNotFound
	}
}

// firstServer drains entries and returns the first usable server, calling
// stop once it is found
func firstServer(entries <-chan *mdns.ServiceEntry, stop func()) *ServerInfo {
	var first *ServerInfo
	for entry := range entries {
		if first != nil {
			continue
		}
		if first = toServerInfo(entry); first != nil {
			stop()
		}
	}
	return first
}

// Stop stops advertising
func (m *Manager) Stop() {
	m.cancel()
}

// toServerInfo converts an entry, skipping other services and unusable addresses
func toServerInfo(entry *mdns.ServiceEntry) *ServerInfo {
	if entry == nil || !strings.Contains(entry.Name, ServiceType) {
		return nil
	}

	var host string
	switch {
	case entry.AddrV4 != nil:
		host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		host = entry.AddrV6.String()
	default:
		return nil
	}

	name := entry.Name
	if i := strings.Index(name, "."+ServiceType); i > 0 {
		name = name[:i]
	}

	info := &ServerInfo{Name: name, Host: host, Port: entry.Port}
	for _, field := range entry.InfoFields {
		key, value, _ := strings.Cut(field, "=")
		switch key {
		case "manufacturer":
			info.Manufacturer = value
		case "version":
			info.Version = value
		}
	}
	return info
}

func txtRecords() []string {
	return []string{
		"proto=live-v1beta",
		"manufacturer=" + version.Manufacturer,
		"version=" + version.Version,
	}
}

// getLocalIPs returns non-loopback IPv4 addresses
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
