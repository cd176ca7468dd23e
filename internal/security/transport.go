// Package security guards outbound requests to user-supplied URLs.
//
// Form owners choose where submissions are forwarded, so every dial and
// redirect is checked against private, loopback, link-local and reserved
// ranges. All resolved addresses must be public before any is dialed.
package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"time"
)

const dnsTimeout = 500 * time.Millisecond

var (
	// ErrBlocked is returned when a target resolves to a blocked range.
	ErrBlocked = errors.New("ssrf: destination address is not allowed")
	// ErrDNSTimeout is returned when resolution exceeds dnsTimeout.
	ErrDNSTimeout = errors.New("ssrf: DNS resolution timeout")
	// ErrDNSFailed is returned when a host cannot be resolved.
	ErrDNSFailed = errors.New("ssrf: DNS resolution failed")
	// ErrTooManyRedirects is returned when the redirect budget is spent.
	ErrTooManyRedirects = errors.New("ssrf: too many redirects")
)

var blockedPrefixes = mustPrefixes(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16", // cloud metadata
	"172.16.0.0/12",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustPrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, len(cidrs))
	for i, c := range cidrs {
		out[i] = netip.MustParsePrefix(c)
	}
	return out
}

// IsBlocked reports whether addr falls inside a blocked range.
// IPv4-mapped IPv6 addresses are checked as IPv4.
func IsBlocked(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Resolver abstracts DNS resolution for tests.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Guard resolves hosts and rejects blocked destinations.
type Guard struct {
	Resolver Resolver
}

// NewGuard returns a Guard using the system resolver.
func NewGuard() *Guard {
	return &Guard{Resolver: net.DefaultResolver}
}

// resolve returns the addresses for host after checking every one of them.
func (g *Guard) resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		if IsBlocked(addr) {
			return nil, fmt.Errorf("%w: %s", ErrBlocked, addr)
		}
		return []netip.Addr{addr}, nil
	}

	dnsCtx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	ips, err := g.Resolver.LookupIPAddr(dnsCtx, host)
	if err != nil {
		if dnsCtx.Err() != nil {
			return nil, fmt.Errorf("%w: host %q", ErrDNSTimeout, host)
		}
		return nil, fmt.Errorf("%w: host %q: %v", ErrDNSFailed, host, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("%w: host %q has no addresses", ErrDNSFailed, host)
	}

	addrs := make([]netip.Addr, 0, len(ips))
	for _, ip := range ips {
		addr, ok := netip.AddrFromSlice(ip.IP)
		if !ok || IsBlocked(addr) {
			return nil, fmt.Errorf("%w: %s (resolved from %s)", ErrBlocked, ip.IP, host)
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// CheckURL validates a destination before it is stored or called.
func (g *Guard) CheckURL(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return fmt.Errorf("%w: unparseable URL", ErrBlocked)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrBlocked, u.Scheme)
	}
	_, err = g.resolve(ctx, u.Hostname())
	return err
}

// DialContext dials the first resolved address once all of them pass.
// Dialing the checked address, not the hostname, closes the DNS rebinding gap.
func (g *Guard) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("ssrf: invalid address %q: %w", address, err)
	}
	addrs, err := g.resolve(ctx, host)
	if err != nil {
		return nil, err
	}
	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(addrs[0].String(), port))
}

// CheckRedirect validates every redirect hop and caps their number.
func (g *Guard) CheckRedirect(maxRedirects int) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("%w: limit is %d", ErrTooManyRedirects, maxRedirects)
		}
		if req.URL.Hostname() == "" {
			return fmt.Errorf("%w: redirect has no host", ErrBlocked)
		}
		_, err := g.resolve(req.Context(), req.URL.Hostname())
		return err
	}
}

// NewHTTPClient returns a client whose transport and redirects go through g.
func (g *Guard) NewHTTPClient(timeout time.Duration, maxRedirects int) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = g.DialContext

	return &http.Client{
		Transport:     transport,
		Timeout:       timeout,
		CheckRedirect: g.CheckRedirect(maxRedirects),
	}
}
