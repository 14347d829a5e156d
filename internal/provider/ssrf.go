package provider

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	gateway "github.com/eugener/aigateway/internal"
)

// CheckOutboundURL rejects base URLs that could be used to reach internal
// network resources (spec.md §4.4): non-http(s) schemes, embedded userinfo,
// and hosts that resolve to loopback, private, link-local, CGNAT, or ULA
// addresses. Only its tests call it: admin provider writes and outbound
// requests do not run this check on a base_url or models_endpoint.
func CheckOutboundURL(resolve func(host string) ([]net.IP, error), raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: invalid url: %v", gateway.ErrSSRFBlocked, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q not allowed", gateway.ErrSSRFBlocked, u.Scheme)
	}
	if u.User != nil {
		return fmt.Errorf("%w: embedded userinfo not allowed", gateway.ErrSSRFBlocked)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", gateway.ErrSSRFBlocked)
	}
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".local") {
		return fmt.Errorf("%w: host %q not allowed", gateway.ErrSSRFBlocked, host)
	}

	if ip := net.ParseIP(host); ip != nil {
		if !isPublicIP(ip) {
			return fmt.Errorf("%w: address %s not allowed", gateway.ErrSSRFBlocked, ip)
		}
		return nil
	}

	ips, err := resolve(host)
	if err != nil {
		return fmt.Errorf("%w: resolve %q: %v", gateway.ErrSSRFBlocked, host, err)
	}
	if len(ips) == 0 {
		return fmt.Errorf("%w: host %q did not resolve", gateway.ErrSSRFBlocked, host)
	}
	for _, ip := range ips {
		if !isPublicIP(ip) {
			return fmt.Errorf("%w: %q resolves to blocked address %s", gateway.ErrSSRFBlocked, host, ip)
		}
	}
	return nil
}

// isPublicIP reports whether ip is routable on the public internet: not
// loopback, link-local, private (RFC 1918), CGNAT (RFC 6598), or ULA
// (RFC 4193).
func isPublicIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified() || ip.IsPrivate() || ip.IsMulticast() {
		return false
	}
	if ip4 := ip.To4(); ip4 != nil && ip4[0] == 100 && ip4[1]&0xc0 == 64 {
		return false // 100.64.0.0/10 CGNAT
	}
	return true
}

// DefaultResolve resolves host via the system resolver.
func DefaultResolve(host string) ([]net.IP, error) {
	return net.LookupIP(host)
}
