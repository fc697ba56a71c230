package config

import (
	"net/netip"
	"regexp"
	"strings"

	"github.com/pilyon3/netdisco/internal/domain"
)

// MatchACL checks a device against an access control list. Supported
// entry forms:
//
//	"any"            matches every device
//	"10.0.0.0/8"     CIDR containing the device's canonical IP
//	"10.1.2.3"       exact IP
//	"name:regex"     case-insensitive match on DNS name (or sysName)
//	"vendor:regex"   case-insensitive match on vendor string
//	"model:regex"    case-insensitive match on model string
//	"os:regex"       case-insensitive match on OS string
//	"!entry"         negation; a matching device fails the whole ACL
//
// The ACL passes when any positive entry matches and no negated entry
// does. An ACL made up entirely of negations acts as a deny list:
// passing it requires only that no negation matches.
func MatchACL(d *domain.Device, acl []string) bool {
	if d == nil {
		return false
	}

	sawPositive := false
	matched := false

	for _, entry := range acl {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		negate := strings.HasPrefix(entry, "!")
		if negate {
			entry = strings.TrimSpace(entry[1:])
		} else {
			sawPositive = true
		}

		hit := matchEntry(d, entry)

		if negate && hit {
			return false
		}
		if !negate && hit {
			matched = true
		}
	}

	if !sawPositive {
		return true
	}
	return matched
}

func matchEntry(d *domain.Device, entry string) bool {
	if strings.EqualFold(entry, "any") {
		return true
	}

	if prop, pattern, ok := strings.Cut(entry, ":"); ok {
		var value string
		switch strings.ToLower(prop) {
		case "name":
			value = d.DNS
			if value == "" {
				value = d.Name
			}
		case "vendor":
			value = d.Vendor
		case "model":
			value = d.Model
		case "os":
			value = d.OS
		default:
			// Not a property form; could be a bare IPv6 literal.
			return matchAddr(d.IP, entry)
		}
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return false
		}
		return re.MatchString(value)
	}

	return matchAddr(d.IP, entry)
}

func matchAddr(deviceIP, entry string) bool {
	addr, err := netip.ParseAddr(deviceIP)
	if err != nil {
		return false
	}

	if prefix, err := netip.ParsePrefix(entry); err == nil {
		return prefix.Contains(addr)
	}
	if other, err := netip.ParseAddr(entry); err == nil {
		return other == addr
	}
	return false
}
