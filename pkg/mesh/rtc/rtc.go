// Package rtc implements the abstract real-time-clock adapter of
// spec.md §4.7/§9: a pluggable time source a node can enable to become a
// time-authority candidate, with a fallback in-memory implementation for
// nodes and tests that have no hardware RTC (grounded on
// original_source/src/painlessmesh/rtc.hpp's RTCInterface/RTCManager).
package rtc

import "github.com/pkg/errors"

// ErrNotEnabled is returned by operations that require an RTC adapter
// when none has been enabled.
var ErrNotEnabled = errors.New("rtc: no adapter enabled")

// Source is the interface a caller-supplied RTC implementation must
// satisfy (spec.md §4.7 "enableRTC(adapter)"). The teacher's C++
// equivalent is RTCInterface; here it is a Go interface so test code and
// real hardware backends both satisfy it without subclassing.
type Source interface {
	// Initialized reports whether the underlying hardware/backing store
	// is present and responding.
	Initialized() bool
	// Time returns the current Unix timestamp, valid only when
	// Initialized reports true.
	Time() uint32
	// SyncFromNTP sets the clock to ts, returning false if the write
	// failed.
	SyncFromNTP(ts uint32) bool
}

// Manager wraps an optional Source with the enable/disable/sync
// lifecycle of spec.md §4.7, mirroring RTCManager.
type Manager struct {
	source       Source
	enabled      bool
	lastSyncTime uint32
}

// NewManager returns a Manager with no RTC enabled.
func NewManager() *Manager {
	return &Manager{}
}

// Enable adopts source as the manager's time authority, failing if
// source is nil or not yet initialized.
func (m *Manager) Enable(source Source) error {
	if source == nil {
		return errors.New("rtc: enable called with nil source")
	}
	if !source.Initialized() {
		return errors.New("rtc: source not initialized")
	}
	m.source = source
	m.enabled = true
	return nil
}

// Disable drops the current RTC adapter, if any.
func (m *Manager) Disable() {
	m.source = nil
	m.enabled = false
}

// HasRTC reports whether a usable RTC adapter is active, the basis for
// Candidate.HasTimeAuthority in pkg/mesh/timesync.
func (m *Manager) HasRTC() bool {
	return m.enabled && m.source != nil && m.source.Initialized()
}

// Time returns the current Unix time from the active RTC, or
// ErrNotEnabled if none is active.
func (m *Manager) Time() (uint32, error) {
	if !m.HasRTC() {
		return 0, ErrNotEnabled
	}
	return m.source.Time(), nil
}

// SyncFromNTP pushes an externally-obtained Unix timestamp into the
// active RTC (spec.md §4.7 "syncRTCFromNTP").
func (m *Manager) SyncFromNTP(unixTS uint32, nowMillis uint32) error {
	if !m.HasRTC() {
		return ErrNotEnabled
	}
	if unixTS == 0 {
		return errors.New("rtc: refusing to sync to unix timestamp 0")
	}
	if !m.source.SyncFromNTP(unixTS) {
		return errors.New("rtc: source rejected sync")
	}
	m.lastSyncTime = nowMillis
	return nil
}

// TimeSinceLastSync returns how many milliseconds have passed since the
// last successful SyncFromNTP, or 0 if it has never succeeded.
func (m *Manager) TimeSinceLastSync(nowMillis uint32) uint32 {
	if m.lastSyncTime == 0 {
		return 0
	}
	return nowMillis - m.lastSyncTime
}

// InMemorySource is a trivial Source useful for tests and for nodes that
// want a stable-but-not-hardware-backed clock.
type InMemorySource struct {
	ready bool
	now   uint32
}

// NewInMemorySource returns a Source seeded at initial, ready immediately.
func NewInMemorySource(initial uint32) *InMemorySource {
	return &InMemorySource{ready: true, now: initial}
}

func (s *InMemorySource) Initialized() bool { return s.ready }
func (s *InMemorySource) Time() uint32      { return s.now }
func (s *InMemorySource) SyncFromNTP(ts uint32) bool {
	s.now = ts
	return true
}
