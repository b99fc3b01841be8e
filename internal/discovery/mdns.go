// Package discovery finds MPD daemons on the local network over mDNS and
// advertises the development daemon.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the DNS-SD service type MPD registers under
const ServiceType = "_mpd._tcp"

// Daemon describes a discovered MPD daemon
type Daemon struct {
	Name string `json:"name" yaml:"name"`
	Host string `json:"host" yaml:"host"`
	Addr string `json:"addr" yaml:"addr"`
	Port int    `json:"port" yaml:"port"`
}

// Address returns the address to dial
func (d Daemon) Address() string {
	return net.JoinHostPort(d.Addr, strconv.Itoa(d.Port))
}

// queryFunc matches mdns.Query
type queryFunc func(params *mdns.QueryParam) error

// Browser browses for MPD daemons
type Browser struct {
	timeout time.Duration
	logger  *slog.Logger
	query   queryFunc
}

// NewBrowser creates a browser waiting up to timeout for answers
func NewBrowser(timeout time.Duration, logger *slog.Logger) *Browser {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Browser{
		timeout: timeout,
		logger:  logger,
		query:   mdns.Query,
	}
}

// Browse sends one query and returns the daemons that answered, sorted by
// name. Duplicate answers for the same instance are merged.
func (b *Browser) Browse(ctx context.Context) ([]Daemon, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	found := make(map[string]Daemon)
	collected := make(chan struct{})

	go func() {
		defer close(collected)
		for entry := range entries {
			d, ok := daemonFromEntry(entry)
			if !ok {
				continue
			}
			if _, dup := found[d.Name]; !dup {
				b.logger.Debug("discovered daemon", "name", d.Name, "addr", d.Address())
			}
			found[d.Name] = d
		}
	}()

	timeout := b.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	params := mdns.DefaultParams(ServiceType)
	params.Timeout = timeout
	params.Entries = entries
	params.DisableIPv6 = true

	err := b.query(params)
	close(entries)
	<-collected

	if err != nil {
		return nil, fmt.Errorf("failed to browse %s: %w", ServiceType, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	daemons := make([]Daemon, 0, len(found))
	for _, d := range found {
		daemons = append(daemons, d)
	}
	sort.Slice(daemons, func(i, j int) bool { return daemons[i].Name < daemons[j].Name })
	return daemons, nil
}

// daemonFromEntry converts an mDNS answer, skipping other services and
// entries without an address.
func daemonFromEntry(entry *mdns.ServiceEntry) (Daemon, bool) {
	if entry == nil || !strings.Contains(entry.Name, ServiceType) {
		return Daemon{}, false
	}

	var addr string
	switch {
	case entry.AddrV4 != nil:
		addr = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		addr = entry.AddrV6.String()
	default:
		return Daemon{}, false
	}

	name := entry.Name
	if i := strings.Index(name, "."+ServiceType); i > 0 {
		name = name[:i]
	}
	// mDNS escapes spaces in instance names
	name = strings.ReplaceAll(name, `\ `, " ")

	return Daemon{
		Name: name,
		Host: strings.TrimSuffix(entry.Host, "."),
		Addr: addr,
		Port: entry.Port,
	}, true
}

// Advertise announces a daemon listening on port under the given instance
// name. The returned function withdraws the announcement.
func Advertise(name string, port int, logger *slog.Logger) (func() error, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ips, err := getLocalIPs()
	if err != nil {
		return nil, fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(name, ServiceType, "", "", port, ips, []string{"txtvers=1"})
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to create mdns server: %w", err)
	}

	logger.Info("advertising mDNS service", "name", name, "port", port, "type", ServiceType)

	return server.Shutdown, nil
}

// getLocalIPs returns local IPv4 addresses of interfaces that are up
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
