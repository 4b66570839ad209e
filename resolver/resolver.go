// Package resolver implements the address resolver of spec §4.1: it turns a
// remote domain into an ordered list of (host, port) candidates via SRV
// discovery with A/AAAA fallback.
package resolver

import (
	"context"
	"math/rand"
	"net"
	"sort"
	"time"

	"golang.org/x/net/idna"

	"github.com/xmppfed/fedcore/config"
	fcerrors "github.com/xmppfed/fedcore/errors"
)

// DefaultPort is the fallback S2S port when no SRV record exists (spec
// §4.1 step 3).
const DefaultPort = 5269

// Target is one candidate (ip, port) tuple in resolution order.
type Target struct {
	IP   net.IP
	Port uint16
}

// SRVRecord mirrors net.SRV; it's redeclared here so the weighted-sort unit
// test in resolver_test.go can build literal inputs without depending on
// net.LookupSRV's exact type identity.
type SRVRecord struct {
	Target   string
	Port     uint16
	Priority uint16
	Weight   uint16
}

// srvLookupFunc matches net.Resolver.LookupSRV's signature so it can be
// swapped out in tests.
type srvLookupFunc func(ctx context.Context, service, proto, name string) (cname string, addrs []*net.SRV, err error)

// hostLookupFunc matches net.Resolver.LookupIPAddr's signature.
type hostLookupFunc func(ctx context.Context, host string) ([]net.IPAddr, error)

// Resolver resolves a remote domain to an ordered connection-candidate
// list, per spec §4.1.
type Resolver struct {
	Options config.DNSOptions

	// Rand supplies the weighted-SRV-sort randomness. If nil, SortWeighted
	// seeds a new source from the current time on each call. Tests set this
	// to a seeded
	// *rand.Rand for the deterministic ordering required by spec §8.
	Rand *rand.Rand

	lookupSRV  srvLookupFunc
	lookupHost hostLookupFunc
}

// New returns a Resolver using net.DefaultResolver for lookups.
func New(opts config.DNSOptions) *Resolver {
	var r net.Resolver
	return &Resolver{
		Options:    opts,
		lookupSRV:  r.LookupSRV,
		lookupHost: r.LookupIPAddr,
	}
}

// Resolve implements spec §4.1: IDNA-encode, SRV lookup with
// _xmpp-server._tcp then _jabber._tcp fallback, single-tuple fallback to
// (domain, default_port) if no SRV record exists, then A/AAAA resolution of
// each resulting host in family order.
func (r *Resolver) Resolve(ctx context.Context, domain string, families []config.AddressFamily) ([]Target, error) {
	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		// Malformed domain: no candidates, the caller enters
		// retry-backoff per spec §4.1 "Failure".
		return nil, nil
	}

	hosts, err := r.resolveSRV(ctx, ascii)
	if err != nil || len(hosts) == 0 {
		hosts = []hostPort{{host: ascii, port: DefaultPort}}
	}

	var out []Target
	for _, hp := range hosts {
		addrs, err := r.resolveHost(ctx, hp.host, families)
		if err != nil {
			continue
		}
		for _, ip := range addrs {
			out = append(out, Target{IP: ip, Port: hp.port})
		}
	}
	return out, nil
}

type hostPort struct {
	host string
	port uint16
}

func (r *Resolver) resolveSRV(ctx context.Context, domain string) ([]hostPort, error) {
	timeout := r.Options.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	retries := r.Options.Retries
	if retries == 0 {
		retries = 2
	}

	for _, service := range []string{"xmpp-server", "jabber"} {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		var recs []*net.SRV
		var err error
		for attempt := 0; attempt <= retries; attempt++ {
			_, recs, err = r.lookupSRV(ctx, service, "tcp", domain)
			if err == nil {
				break
			}
		}
		cancel()
		if err != nil || len(recs) == 0 {
			continue
		}
		sorted := SortWeighted(toSRVRecords(recs), r.Rand)
		hosts := make([]hostPort, 0, len(sorted))
		for _, s := range sorted {
			hosts = append(hosts, hostPort{host: trimDot(s.Target), port: s.Port})
		}
		return hosts, nil
	}
	return nil, fcerrors.New("resolver: no SRV record found")
}

func toSRVRecords(recs []*net.SRV) []SRVRecord {
	out := make([]SRVRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, SRVRecord{Target: r.Target, Port: r.Port, Priority: r.Priority, Weight: r.Weight})
	}
	return out
}

func trimDot(s string) string {
	if len(s) > 0 && s[len(s)-1] == '.' {
		return s[:len(s)-1]
	}
	return s
}

// SortWeighted orders SRV records by priority ascending, and within a
// priority by the weighted-random key described in spec §4.1:
//
//	key = priority*65536 - (weight+1)*U,  U uniform in [0,1)
//
// with zero-weight entries keyed as priority*65536. The input slice is not
// mutated; a new sorted slice is returned.
func SortWeighted(recs []SRVRecord, rnd *rand.Rand) []SRVRecord {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	out := make([]SRVRecord, len(recs))
	copy(out, recs)
	keys := make([]float64, len(out))
	for i, rec := range out {
		base := float64(rec.Priority) * 65536
		if rec.Weight == 0 {
			keys[i] = base
			continue
		}
		u := rnd.Float64()
		keys[i] = base - float64(rec.Weight+1)*u
	}
	sort.SliceStable(out, func(i, j int) bool { return keys[i] < keys[j] })
	return out
}

func (r *Resolver) resolveHost(ctx context.Context, host string, families []config.AddressFamily) ([]net.IP, error) {
	if len(families) == 0 {
		families = []config.AddressFamily{config.FamilyIPv4First, config.FamilyIPv6First}
	}
	addrs, err := r.lookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	var v4, v6 []net.IP
	for _, a := range addrs {
		if ip4 := a.IP.To4(); ip4 != nil {
			v4 = append(v4, ip4)
		} else {
			v6 = append(v6, a.IP)
		}
	}
	var out []net.IP
	for _, fam := range families {
		switch fam {
		case config.FamilyIPv4First, config.FamilyIPv4Only:
			out = append(out, v4...)
			if fam == config.FamilyIPv4Only {
				return out, nil
			}
		case config.FamilyIPv6First, config.FamilyIPv6Only:
			out = append(out, v6...)
			if fam == config.FamilyIPv6Only {
				return out, nil
			}
		}
	}
	return out, nil
}
