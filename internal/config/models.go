package config

import (
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/muurk/wizlight/internal/discovery"
	"github.com/muurk/wizlight/internal/push"
	"github.com/muurk/wizlight/internal/wiz"
)

// CurrentVersion is the config file format version
const CurrentVersion = 1

// Registry represents the entire user configuration file.
type Registry struct {
	Version int              `yaml:"version"`
	Network *Network         `yaml:"network,omitempty"`
	Tuning  *Tuning          `yaml:"tuning,omitempty"`
	Bulbs   map[string]*Bulb `yaml:"bulbs,omitempty"` // Keyed by MAC address
}

// Network holds addressing settings
type Network struct {
	Port             int    `yaml:"port,omitempty"`              // Bulb command port
	BroadcastAddress string `yaml:"broadcast_address,omitempty"` // Discovery target
	PushPort         int    `yaml:"push_port,omitempty"`         // Local port for pushed updates
}

// Tuning overrides the retry and discovery timing. Zero values keep the defaults.
type Tuning struct {
	QueryTimeout     Duration `yaml:"query_timeout,omitempty"`
	CommandTimeout   Duration `yaml:"command_timeout,omitempty"`
	SendInterval     Duration `yaml:"send_interval,omitempty"`
	MaxSendInterval  Duration `yaml:"max_send_interval,omitempty"`
	BackoffFactor    float64  `yaml:"backoff_factor,omitempty"`
	MaxAttempts      int      `yaml:"max_attempts,omitempty"`
	AnnounceInterval Duration `yaml:"announce_interval,omitempty"`
}

// Bulb represents user-defined metadata for a single bulb
type Bulb struct {
	Nickname   string    `yaml:"nickname,omitempty"`    // User-friendly name
	LastIP     string    `yaml:"last_ip,omitempty"`     // Last known IP address
	LastSeen   time.Time `yaml:"last_seen,omitempty"`   // Last discovery time
	ModuleName string    `yaml:"module_name,omitempty"` // From getSystemConfig
}

// Duration is a time.Duration stored as a Go duration string ("500ms", "13s")
type Duration time.Duration

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, s, err)
	}
	*d = Duration(parsed)
	return nil
}

// IsZero lets omitempty drop unset durations
func (d Duration) IsZero() bool {
	return d == 0
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version: CurrentVersion,
		Network: &Network{},
		Tuning:  &Tuning{},
		Bulbs:   make(map[string]*Bulb),
	}
}

// GetBulb retrieves bulb metadata by MAC.
// Returns nil if the bulb doesn't exist in the registry.
func (r *Registry) GetBulb(mac string) *Bulb {
	return r.Bulbs[mac]
}

// EnsureBulb returns the entry for mac, creating it when missing
func (r *Registry) EnsureBulb(mac string) *Bulb {
	if r.Bulbs == nil {
		r.Bulbs = make(map[string]*Bulb)
	}
	if b, exists := r.Bulbs[mac]; exists {
		return b
	}
	b := &Bulb{}
	r.Bulbs[mac] = b
	return b
}

// SetBulbNickname sets a user-friendly nickname for a bulb.
func (r *Registry) SetBulbNickname(mac, nickname string) {
	r.EnsureBulb(mac).Nickname = nickname
}

// RecordDiscovery stores the address of every discovered bulb.
// Devices without a MAC are skipped. Returns the number of new bulbs.
func (r *Registry) RecordDiscovery(devices []*discovery.Device) int {
	added := 0
	for _, d := range devices {
		if d.MAC == "" {
			continue
		}
		if r.GetBulb(d.MAC) == nil {
			added++
		}
		b := r.EnsureBulb(d.MAC)
		b.LastIP = d.IP
		b.LastSeen = d.DiscoveredAt
		if b.LastSeen.IsZero() {
			b.LastSeen = time.Now()
		}
	}
	return added
}

// Resolve maps a nickname or MAC to the last known IP.
// Anything else is returned unchanged so plain hosts keep working.
func (r *Registry) Resolve(target string) string {
	if b := r.GetBulb(target); b != nil && b.LastIP != "" {
		return b.LastIP
	}
	for _, mac := range r.MACs() {
		b := r.Bulbs[mac]
		if b.Nickname != "" && b.Nickname == target && b.LastIP != "" {
			return b.LastIP
		}
	}
	return target
}

// MACs returns the registered MACs in sorted order
func (r *Registry) MACs() []string {
	macs := make([]string, 0, len(r.Bulbs))
	for mac := range r.Bulbs {
		macs = append(macs, mac)
	}
	sort.Strings(macs)
	return macs
}

// WizConfig applies the network and tuning overrides to wiz.DefaultConfig
func (r *Registry) WizConfig() wiz.Config {
	cfg := wiz.DefaultConfig()
	if n := r.Network; n != nil && n.Port != 0 {
		cfg.Port = n.Port
	}
	t := r.Tuning
	if t == nil {
		return cfg
	}
	if t.QueryTimeout != 0 {
		cfg.QueryTimeout = time.Duration(t.QueryTimeout)
	}
	if t.CommandTimeout != 0 {
		cfg.CommandTimeout = time.Duration(t.CommandTimeout)
	}
	if t.SendInterval != 0 {
		cfg.SendInterval = time.Duration(t.SendInterval)
	}
	if t.MaxSendInterval != 0 {
		cfg.MaxSendInterval = time.Duration(t.MaxSendInterval)
	}
	if t.BackoffFactor != 0 {
		cfg.BackoffFactor = t.BackoffFactor
	}
	if t.MaxAttempts != 0 {
		cfg.MaxAttempts = t.MaxAttempts
	}
	return cfg
}

// DiscoveryConfig applies the network and tuning overrides to discovery.DefaultConfig
func (r *Registry) DiscoveryConfig() discovery.Config {
	cfg := discovery.DefaultConfig()
	if n := r.Network; n != nil {
		if n.Port != 0 {
			cfg.Port = n.Port
		}
		if n.BroadcastAddress != "" {
			cfg.BroadcastAddress = n.BroadcastAddress
		}
	}
	if t := r.Tuning; t != nil && t.AnnounceInterval != 0 {
		cfg.AnnounceInterval = time.Duration(t.AnnounceInterval)
	}
	return cfg
}

// PushListenAddress returns the local address for the push listener
func (r *Registry) PushListenAddress() string {
	port := push.DefaultListenPort
	if n := r.Network; n != nil && n.PushPort != 0 {
		port = n.PushPort
	}
	return fmt.Sprintf(":%d", port)
}
