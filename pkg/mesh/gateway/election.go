package gateway

import "time"

// ElectionState is the bridge-election state machine's current phase
// (spec.md §4.8: IDLE → SCANNING → COLLECTING → (evaluate) → IDLE).
type ElectionState int

const (
	Idle ElectionState = iota
	Scanning
	Collecting
)

// Candidate is one node's bid in a bridge election (spec.md §4.8 step 2,
// the BridgeElection wire fields minus the envelope).
type Candidate struct {
	NodeID     uint32
	RouterRSSI int32
	Uptime     uint32
	FreeMemory uint32
}

// Trigger identifies why an election started, used only for logging.
type Trigger int

const (
	TriggerHeartbeatExpired Trigger = iota
	TriggerInternetLostNoBackup
)

// Election drives one run of the state machine described in spec.md
// §4.8. It does not own a scheduler itself; the caller (the gateway
// session glue) calls Start/Collect/Evaluate at the right times.
type Election struct {
	state ElectionState

	self          Candidate
	minimumRSSI   int32
	timeout       time.Duration
	lastRoleChange time.Time
	throttle      time.Duration

	candidates []Candidate
}

// NewElection returns an Election ready to run, parameterized by this
// node's election policy (spec.md §4.8).
func NewElection(minimumRSSI int32, timeout, throttle time.Duration) *Election {
	return &Election{minimumRSSI: minimumRSSI, timeout: timeout, throttle: throttle, state: Idle}
}

// CanStart reports whether an election may begin: not within the
// role-change throttle window of the previous one (spec.md §4.8 step 7).
func (e *Election) CanStart(now time.Time) bool {
	if e.state != Idle {
		return false
	}
	return e.lastRoleChange.IsZero() || now.Sub(e.lastRoleChange) >= e.throttle
}

// Start transitions Idle -> Collecting with this node's own scan result
// as the first candidate; the scan itself is done by the caller, so the
// Scanning state is never entered. visible=false means the router's
// RSSI could not be read at all, which aborts the election immediately
// (spec.md §4.8 step 1).
func (e *Election) Start(self Candidate, visible bool) bool {
	if !visible {
		return false
	}
	e.self = self
	e.candidates = []Candidate{self}
	e.state = Collecting
	return true
}

// State returns the current phase.
func (e *Election) State() ElectionState {
	return e.state
}

// Collect records a competing BridgeElection/BridgeCoordination
// candidate received while in the Collecting phase.
func (e *Election) Collect(c Candidate) {
	if e.state != Collecting {
		return
	}
	e.candidates = append(e.candidates, c)
}

// Evaluate picks the winner per spec.md §4.8 step 4's tie-break order
// (highest RSSI, then higher uptime, then more free memory, then lower
// node ID), applies step 5's single-candidate-below-threshold veto, and
// returns to Idle.
func (e *Election) Evaluate(now time.Time) (winner Candidate, rejected bool) {
	defer func() {
		e.state = Idle
		e.candidates = nil
	}()

	if len(e.candidates) == 0 {
		return Candidate{}, true
	}

	best := e.candidates[0]
	for _, c := range e.candidates[1:] {
		if better(c, best) {
			best = c
		}
	}

	if len(e.candidates) == 1 && best.RouterRSSI < e.minimumRSSI {
		return Candidate{}, true
	}

	e.lastRoleChange = now
	return best, false
}

// better reports whether a should win over b under the tie-break order
// of spec.md §4.8 step 4.
func better(a, b Candidate) bool {
	if a.RouterRSSI != b.RouterRSSI {
		return a.RouterRSSI > b.RouterRSSI
	}
	if a.Uptime != b.Uptime {
		return a.Uptime > b.Uptime
	}
	if a.FreeMemory != b.FreeMemory {
		return a.FreeMemory > b.FreeMemory
	}
	return a.NodeID < b.NodeID
}
