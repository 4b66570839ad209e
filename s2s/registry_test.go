package s2s

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xmppfed/fedcore/config"
	"github.com/xmppfed/fedcore/resolver"
	"github.com/xmppfed/fedcore/router"
)

func testRegistry() *Registry {
	cfg := Config{S2S: config.DefaultS2S(), DialbackSecret: "s3cr3t"}
	return NewRegistry(cfg, router.Discard, resolver.New(config.DNSOptions{}))
}

// TestRegistryTryRegisterFirstWins exercises the compare-and-set half of
// spec §4.4 "at most one registered outgoing session per pair": the first
// session to register a pair owns the slot, a second session for the same
// pair is refused.
func TestRegistryTryRegisterFirstWins(t *testing.T) {
	reg := testRegistry()
	s1 := NewSession(reg.cfg, "local.example", "remote.example", RoleNew{Key: "k1"}, reg, router.Discard, reg.res)
	s2 := NewSession(reg.cfg, "local.example", "remote.example", RoleNew{Key: "k2"}, reg, router.Discard, reg.res)

	ok, tok := reg.tryRegister("local.example", "remote.example", s1)
	require.True(t, ok)
	require.Equal(t, s1, tok)

	ok, _ = reg.tryRegister("local.example", "remote.example", s2)
	require.False(t, ok)

	conns := reg.GetConnections("local.example")
	require.Len(t, conns, 1)
	require.Same(t, s1, conns[0])
}

// TestRegistryRemoveConnectionStaleIsNoop covers spec §4.4 "remove_connection:
// only the session that currently owns the slot can clear it" — a stale
// terminate from a session that already lost the slot must not evict the
// session that currently holds it.
func TestRegistryRemoveConnectionStaleIsNoop(t *testing.T) {
	reg := testRegistry()
	s1 := NewSession(reg.cfg, "local.example", "remote.example", RoleNew{Key: "k1"}, reg, router.Discard, reg.res)
	s2 := NewSession(reg.cfg, "local.example", "remote.example", RoleNew{Key: "k2"}, reg, router.Discard, reg.res)

	ok, tok1 := reg.tryRegister("local.example", "remote.example", s1)
	require.True(t, ok)

	reg.removeConnection("local.example", "remote.example", s1, tok1)
	require.Empty(t, reg.GetConnections("local.example"))

	ok, _ = reg.tryRegister("local.example", "remote.example", s2)
	require.True(t, ok)

	// s1 believes it still owns the slot (stale token) but s2 has since
	// taken it; s1's removeConnection must be a no-op.
	reg.removeConnection("local.example", "remote.example", s1, tok1)
	conns := reg.GetConnections("local.example")
	require.Len(t, conns, 1)
	require.Same(t, s2, conns[0])
}

// TestRegistryRemoveConnectionNilTokenIsNoop covers the "lost the race,
// never registered" path: a candidate session discarded by getOrCreate
// carries no token and must never be able to evict the winner.
func TestRegistryRemoveConnectionNilTokenIsNoop(t *testing.T) {
	reg := testRegistry()
	s1 := NewSession(reg.cfg, "local.example", "remote.example", RoleNew{Key: "k1"}, reg, router.Discard, reg.res)
	ok, _ := reg.tryRegister("local.example", "remote.example", s1)
	require.True(t, ok)

	discarded := NewSession(reg.cfg, "local.example", "remote.example", RoleNew{Key: "k2"}, reg, router.Discard, reg.res)
	reg.removeConnection("local.example", "remote.example", discarded, nil)

	conns := reg.GetConnections("local.example")
	require.Len(t, conns, 1)
	require.Same(t, s1, conns[0])
}

// TestRegistryGetConnectionsFiltersByLocal ensures GetConnections only
// returns sessions whose local domain matches, since a process may host
// several local domains sharing one registry.
func TestRegistryGetConnectionsFiltersByLocal(t *testing.T) {
	reg := testRegistry()
	sA := NewSession(reg.cfg, "a.example", "remote.example", RoleNew{Key: "ka"}, reg, router.Discard, reg.res)
	sB := NewSession(reg.cfg, "b.example", "remote.example", RoleNew{Key: "kb"}, reg, router.Discard, reg.res)
	_, _ = reg.tryRegister("a.example", "remote.example", sA)
	_, _ = reg.tryRegister("b.example", "remote.example", sB)

	require.Len(t, reg.GetConnections("a.example"), 1)
	require.Len(t, reg.GetConnections("b.example"), 1)
	require.Empty(t, reg.GetConnections("c.example"))
}
