package config

import (
	"testing"

	"github.com/pilyon3/netdisco/internal/domain"
)

func testDevice() *domain.Device {
	d := domain.NewDevice("10.1.2.3")
	d.DNS = "core1.example.com"
	d.Vendor = "cisco"
	d.Model = "WS-C3850"
	d.OS = "ios"
	return d
}

func TestMatchACL(t *testing.T) {
	d := testDevice()

	tests := []struct {
		name string
		acl  []string
		want bool
	}{
		{"empty ACL passes", nil, true},
		{"any matches", []string{"any"}, true},
		{"exact IP", []string{"10.1.2.3"}, true},
		{"wrong IP", []string{"10.9.9.9"}, false},
		{"containing CIDR", []string{"10.0.0.0/8"}, true},
		{"non-containing CIDR", []string{"192.168.0.0/16"}, false},
		{"vendor match", []string{"vendor:cisco"}, true},
		{"vendor case-insensitive", []string{"vendor:CISCO"}, true},
		{"vendor mismatch", []string{"vendor:juniper"}, false},
		{"name regex", []string{"name:^core"}, true},
		{"model regex", []string{"model:3850"}, true},
		{"os match", []string{"os:ios"}, true},
		{"first of several suffices", []string{"192.168.0.0/16", "vendor:cisco"}, true},
		{"negation vetoes", []string{"10.0.0.0/8", "!vendor:cisco"}, false},
		{"pure deny list passes when unmatched", []string{"!vendor:juniper"}, true},
		{"pure deny list fails when matched", []string{"!10.0.0.0/8"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchACL(d, tt.acl); got != tt.want {
				t.Errorf("MatchACL(%v) = %v, want %v", tt.acl, got, tt.want)
			}
		})
	}

	t.Run("nil device never matches", func(t *testing.T) {
		if MatchACL(nil, []string{"any"}) {
			t.Error("expected nil device to fail ACL")
		}
	})
}
