// Package config holds the process-wide and per-host configuration
// structures named in spec §6, decoded from YAML (gopkg.in/yaml.v2, as in
// the teacher's go.mod) and published to the owning service tasks via
// atomic.Value swap-on-reload, per Design Note "Global configuration
// tables."
package config

import (
	"sync/atomic"
	"time"

	yaml "gopkg.in/yaml.v2"
)

// AddressFamily selects IPv4-first, IPv6-first, or a single family when
// resolving A/AAAA records (spec §4.1 step 3).
type AddressFamily int

const (
	FamilyIPv4First AddressFamily = iota
	FamilyIPv6First
	FamilyIPv4Only
	FamilyIPv6Only
)

// DNSOptions configures the resolver's SRV/A/AAAA lookups (spec §6,
// s2s_dns_options).
type DNSOptions struct {
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
}

// OutgoingS2SOptions configures address family preference and timeout for
// outgoing connection attempts (spec §6, outgoing_s2s_options).
type OutgoingS2SOptions struct {
	Families []AddressFamily `yaml:"families"`
	Timeout  time.Duration   `yaml:"timeout"`
}

// S2S is the process-wide outgoing-S2S configuration.
type S2S struct {
	UseStartTLS          bool              `yaml:"s2s_use_starttls"`
	CertFile             string            `yaml:"s2s_certfile"`
	DomainCertFile       map[string]string `yaml:"domain_certfile"`
	OutgoingLocalAddress string            `yaml:"outgoing_s2s_local_address"`
	OutgoingPort         int               `yaml:"outgoing_s2s_port"`
	OutgoingOptions      OutgoingS2SOptions `yaml:"outgoing_s2s_options"`
	OutgoingTimeout      time.Duration     `yaml:"outgoing_s2s_timeout"`
	DNSOptions           DNSOptions        `yaml:"s2s_dns_options"`
	MaxRetryDelay        time.Duration     `yaml:"s2s_max_retry_delay"`
	MaxFSMQueue          int               `yaml:"max_fsm_queue"`
}

// DefaultS2S returns the defaults named throughout spec §4 and §6.
func DefaultS2S() S2S {
	return S2S{
		UseStartTLS:     true,
		OutgoingPort:    5269,
		OutgoingOptions: OutgoingS2SOptions{Families: []AddressFamily{FamilyIPv4First, FamilyIPv6First}, Timeout: 10 * time.Second},
		OutgoingTimeout: 10 * time.Second,
		DNSOptions:      DNSOptions{Timeout: 10 * time.Second, Retries: 2},
		MaxRetryDelay:   300 * time.Second,
		MaxFSMQueue:     1024,
	}
}

// SendLastPublishedItem values, spec §6.
type SendLastPublishedItem string

const (
	SendLastNever              SendLastPublishedItem = "never"
	SendLastOnSub              SendLastPublishedItem = "on_sub"
	SendLastOnSubAndPresence    SendLastPublishedItem = "on_sub_and_presence"
)

// PubSub is the process-wide Pub/Sub configuration (spec §6).
type PubSub struct {
	AccessCreateNode               string   `yaml:"access_createnode"`
	IgnorePEPFromOffline           bool     `yaml:"ignore_pep_from_offline"`
	LastItemCache                  bool     `yaml:"last_item_cache"`
	MaxItemsNode                   int      `yaml:"max_items_node"`
	PEPMapping                     map[string]string `yaml:"pep_mapping"`
	Plugins                        []string `yaml:"plugins"`
	NodeTree                       string   `yaml:"nodetree"`
	CompatDialbackSubsriptionTypo  bool     `yaml:"compat_dialback_subsription_typo"`
}

// DefaultPubSub returns the defaults named in spec §6.
func DefaultPubSub() PubSub {
	return PubSub{
		MaxItemsNode: 10,
		Plugins:      []string{"flat", "pep", "hometree"},
		NodeTree:     "flat",
	}
}

// Host is the per-host configuration bundle, owned by its service task and
// published through atomic.Value so readers never take a lock.
type Host struct {
	Domain string
	S2S    S2S
	PubSub PubSub
}

// HostStore publishes a Host configuration with atomic swap-on-reload
// semantics.
type HostStore struct {
	v atomic.Value
}

// NewHostStore returns a store initialized with cfg.
func NewHostStore(cfg Host) *HostStore {
	s := &HostStore{}
	s.v.Store(cfg)
	return s
}

// Load returns the current configuration.
func (s *HostStore) Load() Host { return s.v.Load().(Host) }

// Swap atomically replaces the configuration (e.g. on SIGHUP reload).
func (s *HostStore) Swap(cfg Host) { s.v.Store(cfg) }

// yamlHost mirrors Host for decoding: Domain plus the two yaml-tagged
// sub-structs. Host itself isn't yaml-tagged since it also holds runtime
// state in larger embeddings elsewhere in the pack's config style.
type yamlHost struct {
	Domain string `yaml:"domain"`
	S2S    S2S    `yaml:"s2s"`
	PubSub PubSub `yaml:"pubsub"`
}

// LoadHost decodes a per-host configuration document (gopkg.in/yaml.v2, as
// named in spec §6 and the teacher's own go.mod), starting from the §4/§6
// defaults so a host file only needs to override what it changes.
func LoadHost(data []byte) (Host, error) {
	h := yamlHost{S2S: DefaultS2S(), PubSub: DefaultPubSub()}
	if err := yaml.Unmarshal(data, &h); err != nil {
		return Host{}, err
	}
	return Host{Domain: h.Domain, S2S: h.S2S, PubSub: h.PubSub}, nil
}
