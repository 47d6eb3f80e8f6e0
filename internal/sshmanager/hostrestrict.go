package sshmanager

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/gluk-w/tmuxremote/internal/logutil"
)

// ErrHostNotAllowed is wrapped when a profile targets a host outside the
// configured allow list.
var ErrHostNotAllowed = errors.New("host not allowed")

// ParseAllowedNetworks parses a comma-separated list of IPs and CIDR ranges.
// Single IPs become /32 or /128 networks. Empty input returns nil, which
// allows every host.
func ParseAllowedNetworks(allowList string) ([]*net.IPNet, error) {
	var networks []*net.IPNet
	for _, part := range strings.Split(allowList, ",") {
		entry := strings.TrimSpace(part)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, network, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %q: %w", entry, err)
			}
			networks = append(networks, network)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("invalid IP address %q", entry)
		}
		bits := 128
		if ip.To4() != nil {
			bits = 32
		}
		mask := net.CIDRMask(bits, bits)
		networks = append(networks, &net.IPNet{IP: ip.Mask(mask), Mask: mask})
	}
	return networks, nil
}

// lookupFunc resolves a host name to addresses.
type lookupFunc func(ctx context.Context, host string) ([]net.IP, error)

func defaultLookup(ctx context.Context, host string) ([]net.IP, error) {
	return net.DefaultResolver.LookupIP(ctx, "ip", host)
}

// checkHostAllowed resolves host and requires every address to fall inside
// one of networks. An empty networks list allows everything.
func checkHostAllowed(ctx context.Context, lookup lookupFunc, host string, networks []*net.IPNet) error {
	if len(networks) == 0 {
		return nil
	}

	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		resolved, err := lookup(ctx, host)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", logutil.SanitizeForLog(host), err)
		}
		ips = resolved
	}
	if len(ips) == 0 {
		return fmt.Errorf("%w: %s resolved to no addresses", ErrHostNotAllowed, logutil.SanitizeForLog(host))
	}

	for _, ip := range ips {
		if !containsIP(networks, ip) {
			return fmt.Errorf("%w: %s (%s) is not in the allowed list",
				ErrHostNotAllowed, logutil.SanitizeForLog(host), ip)
		}
	}
	return nil
}

func containsIP(networks []*net.IPNet, ip net.IP) bool {
	for _, n := range networks {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
