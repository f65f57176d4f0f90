// Package addr classifies address literals and validates CIDR prefixes.
//
// The original flowchain.py implementation matched addresses against two
// hand-written regexes and left IPv4 octet bounds unenforced. We reimplement
// strictly on top of net/netip, which rejects octets above 255 and enforces
// RFC 4291 v6 forms (including embedded-v4 and zone-id suffixes) natively.
package addr

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/upa-network/flowchaind/internal/flowerr"
)

// Version identifies the address family of a literal.
type Version int

const (
	// Invalid marks a literal that is neither a valid IPv4 nor IPv6 address.
	Invalid Version = iota
	// V4 marks a dotted-quad IPv4 address.
	V4
	// V6 marks an RFC 4291 IPv6 address.
	V6
)

// IPVersion classifies addr as v4, v6, or invalid.
func IPVersion(address string) Version {
	a, err := netip.ParseAddr(strings.TrimSpace(address))
	if err != nil {
		return Invalid
	}
	if a.Is4() {
		return V4
	}
	return V6
}

// ValidatePrefix checks that p is a well-formed CIDR: an address part that
// classifies as v4 or v6, and a mask length within [0, 32] for v4 or
// [0, 128] for v6.
func ValidatePrefix(p string) error {
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return flowerr.New(flowerr.InvalidPrefix, fmt.Sprintf("prefix %q has no mask length", p))
	}

	addrPart, lenPart := p[:idx], p[idx+1:]

	version := IPVersion(addrPart)
	if version == Invalid {
		return flowerr.New(flowerr.InvalidPrefix, fmt.Sprintf("invalid address %q in prefix %q", addrPart, p))
	}

	length, err := strconv.Atoi(lenPart)
	if err != nil || length < 0 {
		return flowerr.New(flowerr.InvalidPrefix, fmt.Sprintf("invalid mask length %q in prefix %q", lenPart, p))
	}

	switch version {
	case V4:
		if length > 32 {
			return flowerr.New(flowerr.InvalidPrefix, fmt.Sprintf("invalid IPv4 prefix %q", p))
		}
	case V6:
		if length > 128 {
			return flowerr.New(flowerr.InvalidPrefix, fmt.Sprintf("invalid IPv6 prefix %q", p))
		}
	}

	return nil
}
