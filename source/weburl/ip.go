package weburl

import "net/netip"

// addrRule names a blocked address block.
type addrRule struct {
	name   string
	prefix netip.Prefix
}

// blockedRanges lists private and reserved address space. Order matters: the
// first matching rule names the rejection, so narrow blocks precede the
// catch-all reserved ranges that contain them.
var blockedRanges = []addrRule{
	{"loopback", netip.MustParsePrefix("127.0.0.0/8")},
	{"loopback", netip.MustParsePrefix("::1/128")},
	{"unspecified", netip.MustParsePrefix("0.0.0.0/8")},
	{"unspecified", netip.MustParsePrefix("::/128")},
	{"private", netip.MustParsePrefix("10.0.0.0/8")},
	{"private", netip.MustParsePrefix("172.16.0.0/12")},
	{"private", netip.MustParsePrefix("192.168.0.0/16")},
	{"unique-local", netip.MustParsePrefix("fc00::/7")},
	{"link-local", netip.MustParsePrefix("169.254.0.0/16")},
	{"link-local", netip.MustParsePrefix("fe80::/10")},
	{"shared-address-space", netip.MustParsePrefix("100.64.0.0/10")},
	{"multicast", netip.MustParsePrefix("224.0.0.0/4")},
	{"multicast", netip.MustParsePrefix("ff00::/8")},
	{"ietf-protocol-assignment", netip.MustParsePrefix("192.0.0.0/24")},
	{"documentation", netip.MustParsePrefix("192.0.2.0/24")},
	{"documentation", netip.MustParsePrefix("198.51.100.0/24")},
	{"documentation", netip.MustParsePrefix("203.0.113.0/24")},
	{"documentation", netip.MustParsePrefix("2001:db8::/32")},
	{"benchmarking", netip.MustParsePrefix("198.18.0.0/15")},
	{"6to4-relay", netip.MustParsePrefix("192.88.99.0/24")},
	{"reserved", netip.MustParsePrefix("240.0.0.0/4")},
	{"discard-only", netip.MustParsePrefix("100::/64")},
	{"ietf-protocol-assignment", netip.MustParsePrefix("2001::/23")},
	{"ipv4-compatible", netip.MustParsePrefix("::/96")},
}

// nat64 is the well-known NAT64 prefix; the low 32 bits embed an IPv4 address.
var nat64 = netip.MustParsePrefix("64:ff9b::/96")

// BlockedAddrRule returns the name of the rule that blocks addr, or "" when
// addr is publicly routable. IPv4-mapped and NAT64 addresses are judged by
// the IPv4 address they embed.
func BlockedAddrRule(addr netip.Addr) string {
	if !addr.IsValid() {
		return "invalid"
	}
	addr = addr.WithZone("").Unmap()

	if addr.Is6() && nat64.Contains(addr) {
		b := addr.As16()
		embedded := netip.AddrFrom4([4]byte{b[12], b[13], b[14], b[15]})
		if rule := BlockedAddrRule(embedded); rule != "" {
			return "nat64-" + rule
		}
		return ""
	}

	for _, r := range blockedRanges {
		if r.prefix.Contains(addr) {
			return r.name
		}
	}
	return ""
}
