// Package dnsbl checks connecting clients against DNS blocklists and
// verifies forward-confirmed reverse DNS.
package dnsbl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	mdns "github.com/miekg/dns"
)

var ErrDNSNotFound = errors.New("dnsbl: not found")

// CheckerConfig configures a Checker.
type CheckerConfig struct {
	// Zones are the blocklist zones to query (e.g. "zen.spamhaus.org").
	Zones []string

	// Nameservers is a list of DNS servers to query (e.g., "8.8.8.8:53").
	// If empty, system resolvers from /etc/resolv.conf are used,
	// falling back to public DNS (8.8.8.8, 1.1.1.1).
	Nameservers []string

	// Timeout is the timeout for individual DNS queries. Default is 5 seconds.
	Timeout time.Duration
}

// Checker queries DNS blocklists and reverse DNS using github.com/miekg/dns.
type Checker struct {
	config CheckerConfig
	client *mdns.Client
}

// NewChecker creates a checker for the configured zones.
func NewChecker(config CheckerConfig) *Checker {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if len(config.Nameservers) == 0 {
		config.Nameservers = getSystemNameservers()
	}

	return &Checker{
		config: config,
		client: &mdns.Client{
			Timeout: config.Timeout,
		},
	}
}

// getSystemNameservers tries to get system DNS servers from resolv.conf.
func getSystemNameservers() []string {
	config, err := mdns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(config.Servers) == 0 {
		// Fallback to common public DNS servers
		return []string{"8.8.8.8:53", "1.1.1.1:53"}
	}

	servers := make([]string, 0, len(config.Servers))
	for _, s := range config.Servers {
		if !strings.Contains(s, ":") {
			s = s + ":53"
		}
		servers = append(servers, s)
	}
	return servers
}

// Blocked reports whether ip is listed in any configured zone, and the zone
// that listed it. Lookup failures count as not listed; a blocklist outage
// must not reject mail.
func (c *Checker) Blocked(ctx context.Context, ip net.IP) (bool, string) {
	name := reverseOctets(ip)
	if name == "" {
		return false, ""
	}

	for _, zone := range c.config.Zones {
		ips, err := c.lookupA(ctx, name+"."+zone)
		if err != nil {
			continue
		}
		// Listed addresses answer inside 127.0.0.0/8.
		for _, listed := range ips {
			if listed.To4() != nil && listed.To4()[0] == 127 {
				return true, zone
			}
		}
	}
	return false, ""
}

// ForwardConfirmed reports whether ip has forward-confirmed reverse DNS: a
// PTR record whose name resolves back to ip.
func (c *Checker) ForwardConfirmed(ctx context.Context, ip net.IP) (bool, error) {
	arpa, err := mdns.ReverseAddr(ip.String())
	if err != nil {
		return false, fmt.Errorf("dnsbl: invalid IP for reverse lookup: %w", err)
	}

	names, err := c.lookupPTR(ctx, arpa)
	if err != nil {
		return false, err
	}

	for _, name := range names {
		ips, err := c.lookupA(ctx, strings.TrimSuffix(name, "."))
		if err != nil {
			continue
		}
		for _, resolved := range ips {
			if resolved.Equal(ip) {
				return true, nil
			}
		}
	}
	return false, nil
}

// reverseOctets builds the reversed-octet query name for an IPv4 address.
// Blocklist zones are IPv4-only here; other addresses are skipped.
func reverseOctets(ip net.IP) string {
	v4 := ip.To4()
	if v4 == nil {
		return ""
	}
	return fmt.Sprintf("%d.%d.%d.%d", v4[3], v4[2], v4[1], v4[0])
}

func (c *Checker) lookupA(ctx context.Context, name string) ([]net.IP, error) {
	resp, err := c.query(ctx, name, mdns.TypeA)
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, rr := range resp.Answer {
		if a, ok := rr.(*mdns.A); ok {
			ips = append(ips, a.A)
		}
	}
	if len(ips) == 0 {
		return nil, ErrDNSNotFound
	}
	return ips, nil
}

func (c *Checker) lookupPTR(ctx context.Context, arpa string) ([]string, error) {
	resp, err := c.query(ctx, arpa, mdns.TypePTR)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, rr := range resp.Answer {
		if ptr, ok := rr.(*mdns.PTR); ok {
			names = append(names, ptr.Ptr)
		}
	}
	if len(names) == 0 {
		return nil, ErrDNSNotFound
	}
	return names, nil
}

func (c *Checker) query(ctx context.Context, name string, qtype uint16) (*mdns.Msg, error) {
	m := new(mdns.Msg)
	m.SetQuestion(mdns.Fqdn(name), qtype)
	m.RecursionDesired = true

	var lastErr error
	for _, server := range c.config.Nameservers {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		resp, _, err := c.client.ExchangeContext(ctx, m, server)
		if err != nil {
			lastErr = fmt.Errorf("dnsbl: query failed: %w", err)
			continue
		}

		switch resp.Rcode {
		case mdns.RcodeSuccess:
			return resp, nil
		case mdns.RcodeNameError: // NXDOMAIN
			return nil, ErrDNSNotFound
		default:
			lastErr = fmt.Errorf("dnsbl: unexpected rcode %d", resp.Rcode)
			continue
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrDNSNotFound
}
