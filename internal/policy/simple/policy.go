// Package simple contains a host-based admission policy for target sites.
package simple

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrDisallowed is returned for targets the policy refuses.
var ErrDisallowed = errors.New("target not allowed")

// Policy admits absolute http(s) URLs. With BlockPrivate it also refuses
// loopback, private and link-local address literals and localhost names.
type Policy struct {
	BlockPrivate bool
	// DenyHosts lists hostnames that are always refused, including subdomains.
	DenyHosts []string
}

// New creates a Policy that blocks private targets.
func New(denyHosts ...string) *Policy {
	return &Policy{BlockPrivate: true, DenyHosts: denyHosts}
}

// AllowTarget reports whether rawURL may be scraped.
func (p *Policy) AllowTarget(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be absolute http(s)", ErrDisallowed)
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	for _, deny := range p.DenyHosts {
		deny = strings.ToLower(deny)
		if host == deny || strings.HasSuffix(host, "."+deny) {
			return fmt.Errorf("%w: host %s is denied", ErrDisallowed, host)
		}
	}
	if !p.BlockPrivate {
		return nil
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("%w: local host", ErrDisallowed)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return fmt.Errorf("%w: private address %s", ErrDisallowed, ip)
		}
	}
	return nil
}
