package planner

import "slices"

// State is the planning state of one session. It is a value: every
// operation returns a new State and leaves the receiver untouched. The
// boolean result of a mutating operation is false when the input was
// ignored, in which case the returned State equals the receiver.
type State struct {
	StartPose    Pose
	CurrentPose  Pose
	HasPose      bool
	Path         []Step
	PendingTurn  bool
	NextMarkerID int
	Profile      RobotProfile
	Scale        float64 // field pixels per user length unit
}

// NewState creates an empty state with no start pose
func NewState(profile RobotProfile, scale float64) State {
	if scale <= 0 {
		scale = DefaultPixelsPerUnit
	}
	return State{
		NextMarkerID: 1,
		Profile:      profile,
		Scale:        scale,
	}
}

// clone returns a copy whose Path can be appended to without aliasing s
func (s State) clone() State {
	s.Path = slices.Clone(s.Path)
	return s
}

// SetStartPose commits a new start pose and discards the path
func (s State) SetStartPose(p Pose) State {
	p.Heading = NormalizeAngle(p.Heading)
	s.StartPose = p
	s.CurrentPose = p
	s.HasPose = true
	s.Path = nil
	s.PendingTurn = false
	s.NextMarkerID = 1
	return s
}

// Reset re-commits the current start pose
func (s State) Reset() (State, bool) {
	if !s.HasPose {
		return s, false
	}
	return s.SetStartPose(s.StartPose), true
}

// WithProfile replaces the robot profile; the path is unaffected
func (s State) WithProfile(profile RobotProfile) State {
	s.Profile = profile
	return s
}

// BeginTurnStep arms the one-shot latch that makes the next click a turn target
func (s State) BeginTurnStep() State {
	s.PendingTurn = true
	return s
}

// RecordClick interprets a field space click. With the turn latch armed the
// robot rotates in place to face the target; otherwise it turns to face the
// target and drives to it.
func (s State) RecordClick(target Point) (State, bool) {
	if !s.HasPose {
		return s, false
	}
	cur := s.CurrentPose
	dist := Distance(cur.Point(), target)
	if dist == 0 {
		return s, false
	}

	desired := AngleTo(cur, target)
	turn := ShortestTurn(cur.Heading, desired)

	next := s.clone()
	if s.PendingTurn {
		next.CurrentPose.Heading = NormalizeAngle(cur.Heading + turn)
		next.Path = append(next.Path, Turn{Delta: turn})
		next.PendingTurn = false
		return next, true
	}

	end := Pose{X: target.X, Y: target.Y, Heading: desired}
	next.Path = append(next.Path, Move{
		TurnAngle: turn,
		Distance:  dist / s.Scale,
		Heading:   desired,
		Start:     cur,
		End:       end,
	})
	next.CurrentPose = end
	if !next.finite() {
		return s, false
	}
	return next, true
}

// AddMarker records a marker at the current pose
func (s State) AddMarker() (State, bool) {
	if !s.HasPose {
		return s, false
	}
	next := s.clone()
	next.Path = append(next.Path, Marker{ID: s.NextMarkerID, Pose: s.CurrentPose})
	next.NextMarkerID++
	return next, true
}

// UndoLast drops the last step and rebuilds the state by replaying the
// remaining steps from the start pose.
func (s State) UndoLast() (State, bool) {
	if len(s.Path) == 0 {
		return s, false
	}
	return s.Regenerate(s.Path[:len(s.Path)-1])
}

// Regenerate resets to the start pose and replays steps in order,
// recomputing every intermediate pose.
func (s State) Regenerate(steps []Step) (State, bool) {
	if !s.HasPose {
		return s, false
	}
	pose, path, nextID := Replay(s.StartPose, steps, s.Scale)
	next := s
	next.CurrentPose = pose
	next.Path = path
	next.NextMarkerID = nextID
	next.PendingTurn = false
	if !next.finite() {
		return s, false
	}
	return next, true
}

// finite reports whether every pose, footprint corner and length derived
// from the state can be represented. Overflowing plans cannot be encoded.
func (s State) finite() bool {
	if !s.HasPose {
		return true
	}
	p := s.CurrentPose
	if !isFinite(p.X, p.Y, p.Heading) {
		return false
	}
	for _, c := range FootprintCorners(p, s.Profile.Scaled(s.Scale)) {
		if !isFinite(c.X, c.Y) {
			return false
		}
	}
	segments := make([]Segment, 0, len(s.Path))
	for _, step := range s.Path {
		switch st := step.(type) {
		case Move:
			if !isFinite(st.Distance, st.End.X, st.End.Y) {
				return false
			}
			segments = append(segments, Segment{From: st.Start.Point(), To: st.End.Point()})
		case Marker:
			if !isFinite(st.Pose.X, st.Pose.Y) {
				return false
			}
		}
	}
	return isFinite(pathLength(segments) / s.Scale)
}

// Replay folds steps over a start pose and returns the final pose, fresh
// steps carrying recomputed poses, and the next free marker id. Turn and
// Move angles are applied as relative deltas; Move distances are in user
// units and scaled to field pixels. Markers keep their recorded position,
// take the current heading and never move the robot.
func Replay(start Pose, steps []Step, scale float64) (Pose, []Step, int) {
	pose := start
	pose.Heading = NormalizeAngle(pose.Heading)
	out := make([]Step, 0, len(steps))
	nextID := 1

	for _, step := range steps {
		switch st := step.(type) {
		case Turn:
			pose.Heading = NormalizeAngle(pose.Heading + st.Delta)
			out = append(out, Turn{Delta: st.Delta})
		case Move:
			heading := NormalizeAngle(pose.Heading + st.TurnAngle)
			end := advance(pose, heading, st.Distance*scale)
			out = append(out, Move{
				TurnAngle: st.TurnAngle,
				Distance:  st.Distance,
				Heading:   heading,
				Start:     pose,
				End:       end,
			})
			pose = end
		case Marker:
			out = append(out, Marker{
				ID:   st.ID,
				Pose: Pose{X: st.Pose.X, Y: st.Pose.Y, Heading: pose.Heading},
			})
			if st.ID+1 > nextID {
				nextID = st.ID + 1
			}
		}
	}
	return pose, out, nextID
}
