package httpapi

import "net/netip"

// collapseNAT64 implements SPEC_FULL.md §3.3's NAT64 log collapse: if addr
// is an IPv6 address inside prefix, the logged address becomes the
// embedded IPv4 address (the low 32 bits); otherwise addr is returned
// unchanged. prefix is typically "64:ff9b::/96" (RFC 6052's well-known
// prefix); an empty prefix disables the collapse.
func collapseNAT64(addr, prefix string) string {
	if prefix == "" || addr == "" {
		return addr
	}
	network, err := netip.ParsePrefix(prefix)
	if err != nil || network.Bits() != 96 {
		return addr
	}
	ip, err := netip.ParseAddr(addr)
	if err != nil || !ip.Is6() {
		return addr
	}
	if !network.Contains(ip) {
		return addr
	}
	b := ip.As16()
	v4 := netip.AddrFrom4([4]byte{b[12], b[13], b[14], b[15]})
	return v4.String()
}
