// Package scope implements the target validator (C1): deciding whether a
// target string denotes a host or network the gateway is permitted to
// point external scanning tools at.
//
// Grounded on original_source/mcp_server/base_tool.py's _is_private_or_lab
// (RFC1918 + loopback + ".lab.internal" suffix, combined via is_private on
// a parsed ipaddress.ip_network) and mcp_server_v2/tools/nmap_tool.py's
// CIDR-size checks.
package scope

import (
	"fmt"
	"net"
	"strings"
)

const labInternalSuffix = ".lab.internal"

var privateV4Blocks = func() []*net.IPNet {
	blocks := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
	}
	nets := make([]*net.IPNet, 0, len(blocks))
	for _, b := range blocks {
		_, n, err := net.ParseCIDR(b)
		if err != nil {
			panic(err) // unreachable: literals are well-formed
		}
		nets = append(nets, n)
	}
	return nets
}()

// IsLabHostname reports whether v, trimmed, ends with ".lab.internal".
func IsLabHostname(v string) bool {
	return strings.HasSuffix(strings.TrimSpace(v), labInternalSuffix)
}

// IsPrivateIPv4 reports whether ip is an RFC1918 or loopback IPv4 address.
func IsPrivateIPv4(ip net.IP) bool {
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	for _, n := range privateV4Blocks {
		if n.Contains(v4) {
			return true
		}
	}
	return false
}

// ValidateTarget accepts v iff it is a ".lab.internal" hostname, a private
// or loopback IPv4 address, or a private/loopback IPv4 CIDR network. It
// returns a human-readable rejection reason when it fails.
func ValidateTarget(v string) (bool, string) {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return false, "target is empty"
	}
	if IsLabHostname(trimmed) {
		return true, ""
	}
	if ip := net.ParseIP(trimmed); ip != nil {
		if IsPrivateIPv4(ip) {
			return true, ""
		}
		return false, fmt.Sprintf("target %q is not an RFC1918/loopback address or .lab.internal hostname", trimmed)
	}
	if strings.Contains(trimmed, "/") {
		ip, network, err := net.ParseCIDR(trimmed)
		if err != nil {
			return false, fmt.Sprintf("target %q is not a valid CIDR network: %v", trimmed, err)
		}
		if ip.To4() == nil {
			return false, fmt.Sprintf("target %q is not an IPv4 network", trimmed)
		}
		v4 := network.IP.To4()
		last := make(net.IP, len(v4))
		for i := range v4 {
			last[i] = v4[i] | ^network.Mask[i]
		}
		if !IsPrivateIPv4(network.IP) || !IsPrivateIPv4(last) {
			return false, fmt.Sprintf("network %q is not entirely private/loopback", trimmed)
		}
		return true, ""
	}
	return false, fmt.Sprintf("target %q is not an RFC1918/loopback address, private CIDR, or .lab.internal hostname", trimmed)
}

// ValidateHostFromURL extracts the host portion of a URL-shaped target
// (used by gobuster's dir/vhost modes and sqlmap) and applies
// ValidateTarget to it.
func ValidateHostFromURL(rawHost string) (bool, string) {
	host := rawHost
	if idx := strings.IndexByte(host, ':'); idx >= 0 {
		host = host[:idx]
	}
	return ValidateTarget(host)
}

// NetworkSize returns the number of addresses in an IPv4 CIDR network
// string, or an error if it does not parse as one.
func NetworkSize(cidr string) (int64, error) {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return 0, err
	}
	ones, bits := network.Mask.Size()
	if bits != 32 {
		return 0, fmt.Errorf("not an IPv4 network: %s", cidr)
	}
	return int64(1) << uint(32-ones), nil
}

// SuggestPrefixForSize returns the smallest IPv4 prefix length (largest
// network) whose address count is <= maxSize, for use in "suggest a CIDR
// that fits" error metadata (spec.md S7).
func SuggestPrefixForSize(maxSize int64) int {
	prefix := 32
	for size := int64(1); size <= maxSize && prefix > 0; size *= 2 {
		prefix--
	}
	if prefix < 0 {
		prefix = 0
	}
	return prefix + 1
}
