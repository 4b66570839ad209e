package s2s

import (
	"crypto/tls"
	"time"

	"github.com/xmppfed/fedcore/config"
)

// Config bundles the process-wide S2S configuration (spec §6) with the
// pieces the session manager needs that aren't purely declarative (the
// dialback secret, TLS material).
type Config struct {
	config.S2S

	// DialbackSecret seeds KeyGenerator; every outgoing session for this
	// process shares it.
	DialbackSecret string

	// TLSConfig is the TLS client config used for STARTTLS with every
	// remote domain; tlsConfigFor clones it and sets ServerName.
	// config.S2S.DomainCertFile entries do not change it.
	TLSConfig *tls.Config
}

const (
	baseTimeout             = 30 * time.Second
	waitForValidationFactor = 6
	idleWatchdogDefault     = 600 * time.Second
	minRetryDelay           = 1000 * time.Millisecond
	maxRetryDelayDefault    = 15000 * time.Millisecond
)

// timeoutFor returns the per-state deadline of spec §4.3: 6x base for
// wait_for_validation, infinite for stream_established (the idle watchdog
// covers that case instead), base otherwise.
func (c Config) timeoutFor(s state) time.Duration {
	switch s {
	case waitForValidation:
		return waitForValidationFactor * baseTimeout
	case streamEstablished:
		return 0
	default:
		return baseTimeout
	}
}

func (c Config) idleTimeout() time.Duration {
	return idleWatchdogDefault
}

func (c Config) maxRetryDelay() time.Duration {
	if c.MaxRetryDelay > 0 {
		return c.MaxRetryDelay
	}
	return 300 * time.Second
}

// tlsConfigFor returns a clone of the process-wide TLSConfig (or of an empty
// config) with ServerName set to remoteDomain. A domain_certfile entry for
// remoteDomain (spec §6) is looked up, but no certificate is loaded from it,
// so every domain gets the same certificate material.
func (c Config) tlsConfigFor(remoteDomain string) *tls.Config {
	base := c.TLSConfig
	if base == nil {
		base = &tls.Config{}
	}
	cfg := base.Clone()
	cfg.ServerName = remoteDomain
	if _, ok := c.DomainCertFile[remoteDomain]; ok {
		// The named cert file is not read; only ServerName, set above
		// for every domain, differs per remote domain.
	}
	return cfg
}
