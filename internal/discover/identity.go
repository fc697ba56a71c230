package discover

import (
	"context"
	"net"
	"regexp"
	"strings"

	"github.com/pilyon3/netdisco/internal/domain"
)

// IdentityStrategy attempts to resolve a neighbor's self-reported
// identity string to a known device's canonical IP. Strategies run in
// a fixed order until one succeeds, which keeps each heuristic
// auditable and testable on its own.
type IdentityStrategy struct {
	Name    string
	Resolve func(ctx context.Context, identity string, store Store) (string, bool)
}

// defaultIdentityStrategies is the recovery chain applied when a raw
// neighbor address cannot be trusted.
func defaultIdentityStrategies() []IdentityStrategy {
	return []IdentityStrategy{
		{Name: "exact-name", Resolve: resolveByName},
		{Name: "mac-token", Resolve: resolveByMACToken},
		{Name: "paren-mac", Resolve: resolveByParenMAC},
		{Name: "short-name", Resolve: resolveByShortName},
	}
}

// recoverIdentity runs the strategy chain. It returns the canonical IP
// and the name of the strategy that produced it.
func recoverIdentity(ctx context.Context, identity string, store Store, strategies []IdentityStrategy) (string, string, bool) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", "", false
	}
	for _, s := range strategies {
		if ip, ok := s.Resolve(ctx, identity, store); ok {
			return ip, s.Name, true
		}
	}
	return "", "", false
}

func resolveByName(ctx context.Context, identity string, store Store) (string, bool) {
	d, err := store.GetDeviceByName(ctx, identity)
	if err != nil || d == nil {
		return "", false
	}
	return d.IP, true
}

// resolveByMACToken handles identity strings that are themselves a MAC
// address, in any of the usual separator conventions.
func resolveByMACToken(ctx context.Context, identity string, store Store) (string, bool) {
	hw, err := net.ParseMAC(identity)
	if err != nil || len(hw) != 6 {
		return "", false
	}
	d, err := store.GetDeviceByMAC(ctx, hw.String())
	if err != nil || d == nil {
		return "", false
	}
	return d.IP, true
}

// parenMACRe matches the vendor convention of a hostname followed by
// two 6-hex-digit groups in parentheses that concatenate to a MAC,
// e.g. "switch(0123ab-cdef45)".
var parenMACRe = regexp.MustCompile(`\(([0-9a-fA-F]{6})[-. ]?([0-9a-fA-F]{6})\)`)

func resolveByParenMAC(ctx context.Context, identity string, store Store) (string, bool) {
	m := parenMACRe.FindStringSubmatch(identity)
	if m == nil {
		return "", false
	}
	hex := strings.ToLower(m[1] + m[2])
	mac := strings.Join([]string{
		hex[0:2], hex[2:4], hex[4:6], hex[6:8], hex[8:10], hex[10:12],
	}, ":")
	d, err := store.GetDeviceByMAC(ctx, mac)
	if err != nil || d == nil {
		return "", false
	}
	return d.IP, true
}

// resolveByShortName matches the identity truncated at the first dot
// against known device names, case-insensitively, requiring a unique
// match.
func resolveByShortName(ctx context.Context, identity string, store Store) (string, bool) {
	short := domain.ShortName(identity)
	if short == "" {
		return "", false
	}
	d, err := store.GetDeviceByShortName(ctx, short)
	if err != nil || d == nil {
		return "", false
	}
	return d.IP, true
}
