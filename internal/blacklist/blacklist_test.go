package blacklist

import (
	"net/netip"
	"testing"
)

func TestDefaultSubnetsAlwaysApply(t *testing.T) {
	t.Parallel()
	l := New()
	tests := []string{"0.1.2.3", "::", "2001::dead:beef", "2002::1"}
	for _, ip := range tests {
		addr := netip.MustParseAddr(ip)
		if !l.Contains(addr) {
			t.Errorf("expected %s to be blacklisted by default", ip)
		}
	}
}

func TestCustomSubnet(t *testing.T) {
	t.Parallel()
	l := New(netip.MustParsePrefix("10.0.0.0/8"))
	if !l.Contains(netip.MustParseAddr("10.1.2.3")) {
		t.Error("expected 10.1.2.3 to be blacklisted")
	}
	if l.Contains(netip.MustParseAddr("192.168.1.1")) {
		t.Error("did not expect 192.168.1.1 to be blacklisted")
	}
}

func TestIPv4MappedIPv6PromotesToV4Subnet(t *testing.T) {
	t.Parallel()
	l := New(netip.MustParsePrefix("10.0.0.0/8"))
	mapped := netip.MustParseAddr("::ffff:10.1.2.3")
	if !l.Contains(mapped) {
		t.Error("expected IPv4-mapped address to match the IPv4 subnet")
	}
}

func TestUnrelatedFamiliesDoNotMatch(t *testing.T) {
	t.Parallel()
	l := New(netip.MustParsePrefix("10.0.0.0/8"))
	if l.Contains(netip.MustParseAddr("2001:db8::1")) {
		t.Error("did not expect native IPv6 address to match an IPv4 subnet")
	}
}

func TestContainsAny(t *testing.T) {
	t.Parallel()
	l := New(netip.MustParsePrefix("10.0.0.0/8"))
	good := netip.MustParseAddr("192.168.1.1")
	bad := netip.MustParseAddr("10.1.1.1")
	if !l.ContainsAny([]netip.Addr{good, bad}) {
		t.Error("expected ContainsAny to find the blacklisted address")
	}
	if l.ContainsAny([]netip.Addr{good}) {
		t.Error("did not expect ContainsAny to match a clean list")
	}
}
