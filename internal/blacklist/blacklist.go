// Package blacklist implements the CIDR-based peer/client address policy
// described in spec §4.6: subnet matching with IPv4/IPv6 and
// IPv4-mapped-IPv6 normalization.
package blacklist

import "net/netip"

// defaultSubnets is always merged into every List, per spec §3.1: these
// ranges are nonsensical relay targets regardless of operator configuration.
var defaultSubnets = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("::/128"),
	netip.MustParsePrefix("2001::/32"), // Teredo
	netip.MustParsePrefix("2002::/16"), // 6to4
}

// List is an ordered set of blacklisted subnets, always including the fixed
// defaults regardless of what the operator configures.
type List struct {
	subnets []netip.Prefix
}

// New builds a List from operator-supplied CIDR subnets, merging in the
// fixed defaults.
func New(subnets ...netip.Prefix) *List {
	l := &List{}
	l.subnets = append(l.subnets, defaultSubnets...)
	l.subnets = append(l.subnets, subnets...)
	return l
}

// Contains reports whether addr matches any subnet in the list, applying
// the IPv4/IPv6 promotion rules of spec §4.6.
func (l *List) Contains(addr netip.Addr) bool {
	for _, subnet := range l.subnets {
		if matches(addr, subnet) {
			return true
		}
	}
	return false
}

// ContainsAny reports whether any of addrs matches the list.
func (l *List) ContainsAny(addrs []netip.Addr) bool {
	for _, a := range addrs {
		if l.Contains(a) {
			return true
		}
	}
	return false
}

func matches(addr netip.Addr, subnet netip.Prefix) bool {
	network := subnet.Addr()

	switch {
	case addr.Is4() && network.Is4():
		return subnet.Contains(addr)
	case addr.Is6() && !addr.Is4In6() && network.Is6() && !network.Is4In6():
		return subnet.Contains(addr)
	case (addr.Is4() || addr.Is4In6()) && network.Is6() && !network.Is4In6():
		// Promote the v4 address into IPv4-mapped-IPv6 form and compare
		// against the v6 network as-is.
		mapped := netip.AddrFrom16(addr.Unmap().As16())
		return subnet.Contains(mapped)
	case addr.Is6() && addr.Is4In6() && network.Is4():
		// Strip the ::ffff: prefix and compare as v4.
		return subnet.Contains(addr.Unmap())
	default:
		return false
	}
}
