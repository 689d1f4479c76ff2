// Package gateway implements the shared-gateway subsystem of spec.md
// §4.8: shared-gateway configuration and validation, internet health
// checking, the bridge-election state machine, bridge-status tracking,
// the sendToInternet relay path, and the gateway-side handler with
// deduplication. It is grounded on
// original_source/src/painlessmesh/gateway.hpp for the configuration
// shape. The offline queue (message_queue.{hpp,cpp}) lives in
// pkg/mesh/queue; this package neither contains nor imports it.
package gateway

import (
	"fmt"
	"time"
)

// Config is the shared-gateway configuration of spec.md §4.8.
type Config struct {
	Enabled bool

	RouterSSID     string
	RouterPassword string

	CheckInterval time.Duration // internet health probe cadence, default 30s
	DNSHost       string        // default 8.8.8.8
	DNSPort       int           // default 53

	HeartbeatInterval time.Duration // default 15s
	FailureTimeout    time.Duration // default 45s, must be >= 2x heartbeat

	ParticipateInElection bool
	MinimumRSSI           int32 // default -80 dBm, valid range [-100, -30]
	ElectionTimeout       time.Duration
	RoleChangeThrottle    time.Duration

	RetryCount int // default 3

	DedupWindow   time.Duration // default 60s
	DedupCapacity int           // default 500

	SendToInternetEnabled bool
	RequestTimeout        time.Duration // default 30s
	RetryDelay            time.Duration // base for exponential backoff
	MaxRetries            int           // default 3
}

// DefaultConfig returns a Config with every spec.md §4.8 default filled
// in, enabled=false.
func DefaultConfig() Config {
	return Config{
		CheckInterval:         30 * time.Second,
		DNSHost:               "8.8.8.8",
		DNSPort:               53,
		HeartbeatInterval:     15 * time.Second,
		FailureTimeout:        45 * time.Second,
		MinimumRSSI:           -80,
		ElectionTimeout:       5 * time.Second,
		RoleChangeThrottle:    60 * time.Second,
		RetryCount:            3,
		DedupWindow:           60 * time.Second,
		DedupCapacity:         500,
		RequestTimeout:        30 * time.Second,
		RetryDelay:            1 * time.Second,
		MaxRetries:            3,
	}
}

// ValidationResult is the outcome of Config.Validate: either ok, or a
// textual reason the config is unusable (spec.md §4.8).
type ValidationResult struct {
	OK     bool
	Reason string
}

// Validate checks c against the constraints spec.md §4.8 names.
func (c Config) Validate() ValidationResult {
	if !c.Enabled {
		return ValidationResult{OK: true}
	}
	if c.RouterSSID == "" {
		return ValidationResult{Reason: "gateway enabled with empty router SSID"}
	}
	if len(c.RouterSSID) > 32 {
		return ValidationResult{Reason: "router SSID exceeds 32 characters"}
	}
	if len(c.RouterPassword) > 63 {
		return ValidationResult{Reason: "router password exceeds 63 characters"}
	}
	if c.RequestTimeout >= c.CheckInterval && c.CheckInterval > 0 {
		return ValidationResult{Reason: "request timeout must be less than the internet check interval"}
	}
	if c.FailureTimeout < 2*c.HeartbeatInterval {
		return ValidationResult{Reason: "failure timeout must be at least 2x the heartbeat interval"}
	}
	if c.CheckInterval < time.Second {
		return ValidationResult{Reason: "check interval below sensible floor (1s)"}
	}
	if c.HeartbeatInterval < time.Second {
		return ValidationResult{Reason: "heartbeat interval below sensible floor (1s)"}
	}
	if c.MinimumRSSI < -100 || c.MinimumRSSI > -30 {
		return ValidationResult{Reason: fmt.Sprintf("minimum RSSI %d out of range [-100, -30]", c.MinimumRSSI)}
	}
	return ValidationResult{OK: true}
}
