package security

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ClientResolver extracts the client address of a request. Forwarding headers
// are honoured only when the direct peer is a trusted proxy.
type ClientResolver struct {
	trustedProxies []*net.IPNet
}

// NewClientResolver trusts loopback and private networks plus any extra CIDRs.
func NewClientResolver(extra ...string) (*ClientResolver, error) {
	cidrs := append([]string{
		"127.0.0.0/8",
		"::1/128",
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
	}, extra...)

	c := &ClientResolver{}
	for _, cidr := range cidrs {
		cidr = strings.TrimSpace(cidr)
		if ip := net.ParseIP(cidr); ip != nil {
			if ip.To4() != nil {
				cidr += "/32"
			} else {
				cidr += "/128"
			}
		}
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy CIDR %q: %w", cidr, err)
		}
		c.trustedProxies = append(c.trustedProxies, network)
	}
	return c, nil
}

// ClientIP returns the best known client address for r.
func (c *ClientResolver) ClientIP(r *http.Request) string {
	direct, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		direct = r.RemoteAddr
	}
	ip := net.ParseIP(direct)
	if ip == nil || !c.trusted(ip) {
		return direct
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return direct
}

func (c *ClientResolver) trusted(ip net.IP) bool {
	for _, network := range c.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
