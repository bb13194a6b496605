package storageid

import (
	"net"
	"strconv"
	"strings"
)

// classify tags ip as inner (private IPv4 ranges, or link-local IPv6) or
// outer, per spec.md §4.1.
func classify(ip string) AddressClass {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ClassOuter
	}
	if parsed.IsLinkLocalUnicast() {
		return ClassInner
	}
	if v4 := parsed.To4(); v4 != nil {
		switch {
		case v4[0] == 10:
			return ClassInner
		case v4[0] == 172 && v4[1] >= 16 && v4[1] <= 31:
			return ClassInner
		case v4[0] == 192 && v4[1] == 168:
			return ClassInner
		}
	}
	return ClassOuter
}

// splitHostAddrs parses the <host> field of a storage_ids line into its
// component IP address strings (1 or 2), resolving bare hostnames and
// stripping IPv6 brackets, per spec.md §4.1.
func splitHostAddrs(host string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(host, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, "[") && strings.HasSuffix(part, "]") {
			part = part[1 : len(part)-1]
		}
		if net.ParseIP(part) != nil {
			out = append(out, part)
			continue
		}
		addrs, err := net.LookupHost(part)
		if err != nil || len(addrs) == 0 {
			return nil, Error.New("cannot resolve host %q: %v", part, err)
		}
		out = append(out, addrs[0])
	}
	if len(out) == 0 || len(out) > 2 {
		return nil, ErrMalformedLine
	}
	return out, nil
}

// parseLine parses one non-blank, non-comment line of the storage_ids
// table into an Identity: "<id> <group> <host>[:port] [rw=<value>]".
func parseLine(line string) (Identity, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return Identity{}, ErrMalformedLine
	}

	id, err := ParseID(fields[0])
	if err != nil {
		return Identity{}, err
	}

	group := fields[1]

	hostField := fields[2]
	var port uint16
	host := hostField
	if idx := strings.LastIndex(hostField, ":"); idx >= 0 && !strings.Contains(hostField, "]") {
		// only treat as host:port when it's not a bare bracket-less IPv6
		if maybePort, perr := strconv.ParseUint(hostField[idx+1:], 10, 16); perr == nil {
			host = hostField[:idx]
			port = uint16(maybePort)
		}
	} else if strings.HasSuffix(hostField, "]") {
		// "[ipv6]" with no port, or "[ipv6]:port"
		host = hostField
	} else if idx := strings.LastIndex(hostField, "]:"); idx >= 0 {
		host = hostField[:idx+1]
		if maybePort, perr := strconv.ParseUint(hostField[idx+2:], 10, 16); perr == nil {
			port = uint16(maybePort)
		}
	}

	ipStrs, err := splitHostAddrs(host)
	if err != nil {
		return Identity{}, err
	}

	rw := RWBoth
	for _, f := range fields[3:] {
		if strings.HasPrefix(f, "rw=") {
			rw, err = parseRWMode(strings.TrimPrefix(f, "rw="))
			if err != nil {
				return Identity{}, err
			}
		}
	}

	addrs := make([]Address, 0, len(ipStrs))
	for _, ip := range ipStrs {
		addrs = append(addrs, Address{IP: ip, Class: classify(ip)})
	}
	// Reorder so inner is index 0 when both classes appear, per §4.1.
	if len(addrs) == 2 && addrs[0].Class == ClassOuter && addrs[1].Class == ClassInner {
		addrs[0], addrs[1] = addrs[1], addrs[0]
	}

	return Identity{
		ID:     id,
		IDText: FormatID(id),
		Group:  group,
		Addrs:  addrs,
		Port:   port,
		RW:     rw,
	}, nil
}

// parseIdentities splits text into lines and parses each non-blank,
// non-comment line into an Identity, per spec.md §4.1.
func parseIdentities(text string) ([]Identity, error) {
	var out []Identity
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		id, err := parseLine(trimmed)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
