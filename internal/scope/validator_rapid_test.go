package scope

import (
	"fmt"
	"net"
	"testing"

	"pgregory.net/rapid"
)

// TestIsPrivateIPv4MatchesEveryOctetInBlock property-tests IsPrivateIPv4
// against generated addresses inside each RFC1918/loopback block, matching
// base_tool.py's _is_private_or_lab's intent: any address in 10/8,
// 172.16/12, 192.168/16, or 127/8 must be accepted.
func TestIsPrivateIPv4MatchesEveryOctetInBlock(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		block := rapid.SampledFrom([]string{"10", "172.16", "192.168", "127"}).Draw(t, "block")
		a := rapid.IntRange(0, 255).Draw(t, "a")
		b := rapid.IntRange(0, 255).Draw(t, "b")

		var addr string
		switch block {
		case "10":
			addr = fmt.Sprintf("10.%d.%d.%d", a, b, a)
		case "172.16":
			addr = fmt.Sprintf("172.16.%d.%d", a, b)
		case "192.168":
			addr = fmt.Sprintf("192.168.%d.%d", a, b)
		case "127":
			addr = fmt.Sprintf("127.%d.%d.%d", a, b, a)
		}

		ip := net.ParseIP(addr)
		if ip == nil {
			t.Fatalf("generated an unparseable address: %s", addr)
		}
		if !IsPrivateIPv4(ip) {
			t.Fatalf("expected %s to be private, IsPrivateIPv4 said no", addr)
		}
	})
}

// TestValidateTargetNeverAcceptsPublicIPv4 property-tests that addresses
// outside every private/loopback block are always rejected, covering the
// complement of the accept-path invariant above.
func TestValidateTargetNeverAcceptsPublicIPv4(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.IntRange(1, 223).
			Filter(func(v int) bool { return v != 10 && v != 127 }).
			Draw(t, "a")
		b := rapid.IntRange(0, 255).Draw(t, "b")
		c := rapid.IntRange(0, 255).Draw(t, "c")
		d := rapid.IntRange(1, 254).Draw(t, "d")

		if a == 172 && b >= 16 && b <= 31 {
			t.Skip("landed inside 172.16.0.0/12")
		}
		if a == 192 && b == 168 {
			t.Skip("landed inside 192.168.0.0/16")
		}

		addr := fmt.Sprintf("%d.%d.%d.%d", a, b, c, d)
		ok, reason := ValidateTarget(addr)
		if ok {
			t.Fatalf("expected %s to be rejected as public, got accepted", addr)
		}
		if reason == "" {
			t.Fatal("expected a non-empty rejection reason")
		}
	})
}

func TestNetworkSizeMatchesPrefixArithmetic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		prefix := rapid.IntRange(0, 32).Draw(t, "prefix")
		cidr := fmt.Sprintf("10.0.0.0/%d", prefix)

		size, err := NetworkSize(cidr)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", cidr, err)
		}
		want := int64(1) << uint(32-prefix)
		if size != want {
			t.Fatalf("NetworkSize(%s) = %d, want %d", cidr, size, want)
		}
	})
}
