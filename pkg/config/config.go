// Package config implements the builder/data split the original's
// toad/src/config.rs uses: a Config collects overrides, Build() folds
// them over the defaults into an immutable Data the rest of the engine
// reads from.
package config

import "time"

// Strategy describes the exponential con-retry knob exposed to callers.
// It is distinct from (and currently unwired to) package retry's internal
// Timer strategy — see DESIGN.md for why the engine's ad-hoc confirmable
// retries don't yet consult this value.
type Strategy struct {
	InitialMin time.Duration
	InitialMax time.Duration
}

// Exponential builds a Strategy bounded by [min, max) for the first retry
// delay.
func Exponential(min, max time.Duration) Strategy {
	return Strategy{InitialMin: min, InitialMax: max}
}

// Data is the resolved, immutable configuration the engine consults.
type Data struct {
	TokenSeed              uint16
	ConRetryStrategy       Strategy
	DefaultLeisure         time.Duration
	MaxRetransmitAttempts  uint16
	NStart                 uint8
	ProbingRateBytesPerSec uint16
}

// maxLatencyMillis and expectedProcessingDelayMillis are the two fixed
// constants the rest of ConfigData's derived timings are built from,
// straight out of toad/src/config.rs.
const (
	maxLatencyMillis               = 100_000
	expectedProcessingDelayMillis  = 200
)

// MaxTransmitSpanMillis is the maximum time from first transmission of a
// confirmable message to its last retransmission.
func (d Data) MaxTransmitSpanMillis() uint64 {
	return uint64(d.ConRetryStrategy.InitialMax.Milliseconds()) * uint64(d.MaxRetransmitAttempts)
}

// MaxTransmitWaitMillis is the maximum time from first transmission to
// the point a sender gives up waiting for an ACK.
func (d Data) MaxTransmitWaitMillis() uint64 {
	return uint64(d.ConRetryStrategy.InitialMax.Milliseconds()) * (uint64(d.MaxRetransmitAttempts) + 1)
}

// MaxLatencyMillis is the maximum time a datagram may take to travel
// from sender to recipient.
func (d Data) MaxLatencyMillis() uint64 {
	return maxLatencyMillis
}

// ExpectedProcessingDelayMillis is the time a recipient is expected to
// take to respond to a confirmable message it has already acknowledged.
func (d Data) ExpectedProcessingDelayMillis() uint64 {
	return expectedProcessingDelayMillis
}

// ExchangeLifetimeMillis is the time during which a message's Id is
// still considered "in flight" for deduplication purposes.
func (d Data) ExchangeLifetimeMillis() uint64 {
	return d.MaxTransmitSpanMillis() + (2 * d.MaxLatencyMillis()) + expectedProcessingDelayMillis
}

// Config accumulates overrides to apply on top of the defaults. The zero
// value is a usable, empty builder.
type Config struct {
	tokenSeed             *uint16
	conRetryStrategy      *Strategy
	defaultLeisure        *time.Duration
	maxRetransmitAttempts *uint16
	nstart                *uint8
	probingRate           *uint16
}

// New returns an empty Config builder.
func New() *Config {
	return &Config{}
}

// TokenSeed overrides the recorded token seed. The Token Allocator in
// package peerstate does not read it: token derivation is unseeded.
func (c *Config) TokenSeed(v uint16) *Config {
	c.tokenSeed = &v
	return c
}

// ConRetryStrategy overrides the confirmable retry backoff bounds.
func (c *Config) ConRetryStrategy(s Strategy) *Config {
	c.conRetryStrategy = &s
	return c
}

// DefaultLeisure overrides the default multicast response leisure window.
func (c *Config) DefaultLeisure(d time.Duration) *Config {
	c.defaultLeisure = &d
	return c
}

// MaxConRequestRetries overrides the confirmable retransmission ceiling.
func (c *Config) MaxConRequestRetries(n uint16) *Config {
	c.maxRetransmitAttempts = &n
	return c
}

// MaxConcurrentRequests overrides NSTART, the number of simultaneous
// outstanding requests to a single peer.
func (c *Config) MaxConcurrentRequests(n uint8) *Config {
	c.nstart = &n
	return c
}

// ProbingRate overrides the non-confirmable probing rate in bytes/sec.
func (c *Config) ProbingRate(bytesPerSec uint16) *Config {
	c.probingRate = &bytesPerSec
	return c
}

// Build folds the recorded overrides over the defaults, exactly as
// toad's From<Config> for ConfigData does.
func (c *Config) Build() Data {
	d := Data{
		TokenSeed:              0,
		ConRetryStrategy:       Exponential(2*time.Second, 3*time.Second),
		DefaultLeisure:         5 * time.Second,
		MaxRetransmitAttempts:  4,
		NStart:                 1,
		ProbingRateBytesPerSec: 1000,
	}
	if c.tokenSeed != nil {
		d.TokenSeed = *c.tokenSeed
	}
	if c.conRetryStrategy != nil {
		d.ConRetryStrategy = *c.conRetryStrategy
	}
	if c.defaultLeisure != nil {
		d.DefaultLeisure = *c.defaultLeisure
	}
	if c.maxRetransmitAttempts != nil {
		d.MaxRetransmitAttempts = *c.maxRetransmitAttempts
	}
	if c.nstart != nil {
		d.NStart = *c.nstart
	}
	if c.probingRate != nil {
		d.ProbingRateBytesPerSec = *c.probingRate
	}
	return d
}
