package planner

import (
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ChangeListener is called with the new snapshot after every applied change
type ChangeListener func(sessionID string, snap Snapshot)

// Session owns the planning state for one collaborator. All operations are
// serialized, so concurrent callers only ever observe whole steps. Inputs
// that cannot be applied are ignored and reported with a false result.
//
// Listeners are notified in the order changes were applied. A listener may
// read the session but must not mutate it.
type Session struct {
	mu        sync.Mutex
	id        string
	state     State
	listeners []ChangeListener
	seq       uint64

	notifyMu  sync.Mutex
	notified  *sync.Cond
	delivered uint64
}

// NewSession creates a session with the configured profile and start pose
func NewSession(config *Config) *Session {
	if config == nil {
		config = DefaultConfig()
	}
	state := NewState(config.Robot, config.Scale())
	s := &Session{
		id:    uuid.New().String(),
		state: state.SetStartPose(config.StartPose()),
	}
	s.notified = sync.NewCond(&s.notifyMu)
	return s
}

// OnChange registers a listener for applied changes
func (s *Session) OnChange(listener ChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// ID returns the identifier of the current planning session. A new id is
// issued every time a start pose is committed.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// State returns a copy of the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Snapshot returns the drawable view of the current state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Snapshot()
}

// Current returns the session id together with the snapshot it belongs to
func (s *Session) Current() (string, Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.state.Snapshot()
}

// update applies fn under the lock and notifies listeners when it reports a change
func (s *Session) update(newSession bool, fn func(State) (State, bool)) bool {
	s.mu.Lock()
	next, ok := fn(s.state)
	if !ok || !next.finite() {
		s.mu.Unlock()
		return false
	}
	s.state = next
	if newSession {
		s.id = uuid.New().String()
	}
	s.seq++
	seq := s.seq
	id := s.id
	snap := next.Snapshot()
	listeners := append([]ChangeListener(nil), s.listeners...)
	s.mu.Unlock()

	s.notify(seq, id, snap, listeners)
	return true
}

// notify runs listeners for change seq once every earlier change has been
// delivered, so the last snapshot a listener sees is the newest one.
func (s *Session) notify(seq uint64, id string, snap Snapshot, listeners []ChangeListener) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	for s.delivered != seq-1 {
		s.notified.Wait()
	}
	for _, l := range listeners {
		l(id, snap)
	}
	s.delivered = seq
	s.notified.Broadcast()
}

// SetStartPose commits a start pose given in user units and degrees
func (s *Session) SetStartPose(xUnits, yUnits, angleDegrees float64) bool {
	if !isFinite(xUnits, yUnits, angleDegrees) {
		return false
	}
	return s.update(true, func(st State) (State, bool) {
		return st.SetStartPose(ResolveStartPose(xUnits, yUnits, angleDegrees, st.Scale)), true
	})
}

// SetStartPoseInput parses raw form input; non-numeric input is ignored
func (s *Session) SetStartPoseInput(x, y, angle string) bool {
	vals, ok := parseInputs(x, y, angle)
	if !ok {
		return false
	}
	return s.SetStartPose(vals[0], vals[1], vals[2])
}

// UpdateProfile replaces the robot profile. Length and width must be positive.
func (s *Session) UpdateProfile(profile RobotProfile) bool {
	if !isFinite(profile.Length, profile.Width, profile.OffsetX, profile.OffsetY) ||
		profile.Length <= 0 || profile.Width <= 0 {
		return false
	}
	return s.update(false, func(st State) (State, bool) {
		return st.WithProfile(profile), true
	})
}

// UpdateProfileInput parses raw form input; non-numeric input is ignored
func (s *Session) UpdateProfileInput(length, width, offsetX, offsetY string) bool {
	vals, ok := parseInputs(length, width, offsetX, offsetY)
	if !ok {
		return false
	}
	return s.UpdateProfile(RobotProfile{Length: vals[0], Width: vals[1], OffsetX: vals[2], OffsetY: vals[3]})
}

// Click records a field space click
func (s *Session) Click(fieldX, fieldY float64) bool {
	if !isFinite(fieldX, fieldY) {
		return false
	}
	return s.update(false, func(st State) (State, bool) {
		return st.RecordClick(Point{X: fieldX, Y: fieldY})
	})
}

// BeginTurn makes the next click a turn target
func (s *Session) BeginTurn() bool {
	return s.update(false, func(st State) (State, bool) {
		if st.PendingTurn {
			return st, false
		}
		return st.BeginTurnStep(), true
	})
}

// AddMarker drops a marker at the current pose
func (s *Session) AddMarker() bool {
	return s.update(false, func(st State) (State, bool) {
		return st.AddMarker()
	})
}

// Undo removes the last step
func (s *Session) Undo() bool {
	return s.update(false, func(st State) (State, bool) {
		return st.UndoLast()
	})
}

// Reset discards the path and returns to the start pose
func (s *Session) Reset() bool {
	return s.update(true, func(st State) (State, bool) {
		return st.Reset()
	})
}

// LoadTelemetry replaces the path with the steps decoded from text,
// replayed from the start pose. It starts a new planning session.
func (s *Session) LoadTelemetry(text string) (bool, []SkippedLine) {
	return s.regenerate(true, text)
}

// RegenerateFromText replays edited telemetry from the start pose
func (s *Session) RegenerateFromText(text string) (bool, []SkippedLine) {
	return s.regenerate(false, text)
}

func (s *Session) regenerate(newSession bool, text string) (bool, []SkippedLine) {
	var skipped []SkippedLine
	applied := s.update(newSession, func(st State) (State, bool) {
		var steps []Step
		steps, skipped = DecodeTelemetry(text, st.Scale)
		return st.Regenerate(steps)
	})
	for _, sl := range skipped {
		log.Printf("Skipping telemetry %s", sl)
	}
	return applied, skipped
}

// parseInputs parses every value as a finite float
func parseInputs(values ...string) ([]float64, bool) {
	out := make([]float64, len(values))
	for i, v := range values {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || !isFinite(f) {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}
