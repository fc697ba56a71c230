package config

import "time"

// Config is the process-wide netdisco configuration. The credential
// list is deliberately mutable at runtime: the worker dispatcher swaps
// in a reduced stanza set for the duration of a single worker run and
// restores the original afterwards.
type Config struct {
	Version  int            `yaml:"version,omitempty"`
	Database DatabaseConfig `yaml:"database,omitempty"`

	// Credentials are the authentication stanzas tried against devices,
	// in order. Each stanza may be restricted to a driver and to an ACL
	// of devices.
	Credentials []Credential `yaml:"credentials,omitempty"`

	Discover DiscoverConfig `yaml:"discover,omitempty"`
	Expire   ExpireConfig   `yaml:"expire,omitempty"`
}

// DatabaseConfig locates the backing store.
type DatabaseConfig struct {
	Path string `yaml:"path,omitempty"`
}

// Credential is one authentication stanza. Community fields apply to
// the snmp driver, Username/Password to the cli driver.
type Credential struct {
	Tag    string `yaml:"tag,omitempty"`
	Driver string `yaml:"driver,omitempty"` // "snmp", "cli"; empty matches any

	// Only and No restrict which devices this stanza may be tried
	// against. Entries use the ACL forms understood by MatchACL.
	Only []string `yaml:"only,omitempty"`
	No   []string `yaml:"no,omitempty"`

	Community string `yaml:"community,omitempty"`
	Username  string `yaml:"username,omitempty"`
	Password  string `yaml:"password,omitempty"`
	Port      int    `yaml:"port,omitempty"`
}

// DiscoverConfig tunes the discover action.
type DiscoverConfig struct {
	// No and Only gate which discovered neighbors may be queued for
	// their own discovery.
	No   []string `yaml:"no,omitempty"`
	Only []string `yaml:"only,omitempty"`

	// NoTypes lists platform-string patterns (case-insensitive
	// regexp) that must never be queued, e.g. IP phones.
	NoTypes []string `yaml:"no_types,omitempty"`

	// LocalNets lists CIDRs whose addresses cannot be trusted as
	// remote management addresses (link-local ranges, NAT pools).
	// Neighbor entries reporting such an address fall back to
	// identity-based recovery.
	LocalNets []string `yaml:"local_nets,omitempty"`

	// WrapWindow bounds the heuristic that corrects interface
	// last-change readings across a 32-bit uptime counter wrap. The
	// window is a best-effort guess and deliberately tunable.
	WrapWindow *Duration `yaml:"wrap_window,omitempty"`

	// SeedScan lists CIDR ranges swept with nmap to seed the queue.
	SeedScan []string `yaml:"seed_scan,omitempty"`
}

// ExpireConfig tunes the expire action.
type ExpireConfig struct {
	// DeviceAge is how long a device may go unseen before removal.
	DeviceAge *Duration `yaml:"device_age,omitempty"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML parses duration strings like "5m" or "30s"
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML serializes as a duration string
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the wrapped value.
func (d *Duration) Duration() time.Duration {
	if d == nil {
		return 0
	}
	return time.Duration(*d)
}

// WrapWindowOrDefault returns the configured wrap window, defaulting
// to five minutes.
func (c DiscoverConfig) WrapWindowOrDefault() time.Duration {
	if c.WrapWindow == nil {
		return 5 * time.Minute
	}
	return c.WrapWindow.Duration()
}

// DeviceAgeOrDefault returns the configured expiry age, defaulting to
// 60 days.
func (c ExpireConfig) DeviceAgeOrDefault() time.Duration {
	if c.DeviceAge == nil {
		return 60 * 24 * time.Hour
	}
	return c.DeviceAge.Duration()
}
