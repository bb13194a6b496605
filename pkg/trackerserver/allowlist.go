package trackerserver

import (
	"net"
	"strings"
)

// AllowList implements spec.md §6's `allow_hosts` config key: a set of
// CIDR ranges or glob-style host patterns, consulted for every
// connection that is not a storage or peer tracker (i.e. client and
// admin commands), per SPEC_FULL.md §3.
type AllowList struct {
	nets     []*net.IPNet
	wildcard bool
}

// NewAllowList parses the `allow_hosts` values. Each entry is either a
// bare "*" (allow everything, the default when unset), a CIDR
// (`10.0.0.0/8`), or a dotted-decimal pattern with `*` wildcard octets
// (`10.0.0.*`).
func NewAllowList(entries []string) *AllowList {
	al := &AllowList{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if e == "*" {
			al.wildcard = true
			continue
		}
		if _, ipnet, err := net.ParseCIDR(e); err == nil {
			al.nets = append(al.nets, ipnet)
			continue
		}
		if ipnet := parseWildcardPattern(e); ipnet != nil {
			al.nets = append(al.nets, ipnet)
		}
	}
	if len(entries) == 0 {
		al.wildcard = true
	}
	return al
}

// parseWildcardPattern turns "10.0.0.*" into the equivalent /24 (and so
// on for each trailing "*" octet). Returns nil if the pattern isn't a
// dotted-decimal with only trailing wildcard octets.
func parseWildcardPattern(pattern string) *net.IPNet {
	octets := strings.Split(pattern, ".")
	if len(octets) != 4 {
		return nil
	}
	ip := make(net.IP, 4)
	ones := 32
	seenWildcard := false
	for i, o := range octets {
		if o == "*" {
			if !seenWildcard {
				ones = i * 8
			}
			seenWildcard = true
			continue
		}
		if seenWildcard {
			return nil // wildcard must be trailing
		}
		n := 0
		for _, c := range o {
			if c < '0' || c > '9' {
				return nil
			}
			n = n*10 + int(c-'0')
		}
		if n > 255 {
			return nil
		}
		ip[i] = byte(n)
	}
	if !seenWildcard {
		ones = 32
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(ones, 32)}
}

// Allowed reports whether addr (a dotted-decimal IPv4 or IPv6 address,
// with any port already stripped) is permitted.
func (al *AllowList) Allowed(addr string) bool {
	if al.wildcard {
		return true
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range al.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
