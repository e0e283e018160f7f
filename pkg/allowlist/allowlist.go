package allowlist

import (
	"fmt"
	"net/netip"
	"strings"
)

// Allowlist restricts which client addresses may reach guarded endpoints.
type Allowlist struct {
	allowAll bool
	prefixes []netip.Prefix
}

// Parse builds an allowlist from a comma-separated list of IPs or CIDRs.
// An empty value allows every address.
func Parse(value string) (Allowlist, error) {
	if strings.TrimSpace(value) == "" {
		return Allowlist{allowAll: true}, nil
	}
	var prefixes []netip.Prefix
	for _, part := range strings.Split(value, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		if strings.Contains(trimmed, "/") {
			prefix, err := netip.ParsePrefix(trimmed)
			if err != nil {
				return Allowlist{}, fmt.Errorf("parse allowlist entry %q: %w", trimmed, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(trimmed)
		if err != nil {
			return Allowlist{}, fmt.Errorf("parse allowlist entry %q: %w", trimmed, err)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return Allowlist{prefixes: prefixes}, nil
}

// Allows reports whether the address may pass.
func (a Allowlist) Allows(addr netip.Addr) bool {
	if a.allowAll {
		return true
	}
	if !addr.IsValid() {
		return false
	}
	unmapped := addr.Unmap()
	for _, prefix := range a.prefixes {
		if prefix.Contains(unmapped) {
			return true
		}
	}
	return false
}

// AllowsString parses a textual address and checks it. Unparseable input is
// denied unless the list allows everything.
func (a Allowlist) AllowsString(value string) bool {
	if a.allowAll {
		return true
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(value))
	if err != nil {
		return false
	}
	return a.Allows(addr)
}
