package planner

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Segment is a drawable drive segment in field space
type Segment struct {
	From Point `json:"from"`
	To   Point `json:"to"`
}

// MarkerView is a drawable marker in field space
type MarkerView struct {
	ID       int   `json:"id"`
	Position Point `json:"position"`
}

// Snapshot is everything a collaborator needs to redraw the plan from scratch
type Snapshot struct {
	HasPose          bool         `json:"hasPose"`
	Pose             Pose         `json:"pose"`
	UserAngle        float64      `json:"userAngle"`
	Footprint        []Point      `json:"footprint"`
	HeadingIndicator []Point      `json:"headingIndicator"`
	Segments         []Segment    `json:"segments"`
	Markers          []MarkerView `json:"markers"`
	Telemetry        string       `json:"telemetry"`
	PendingTurn      bool         `json:"pendingTurn"`
	NextMarkerID     int          `json:"nextMarkerId"`
	StepCount        int          `json:"stepCount"`
	PathLength       float64      `json:"pathLength"` // user units
}

// Snapshot derives the drawable view of the state
func (s State) Snapshot() Snapshot {
	snap := Snapshot{
		HasPose:      s.HasPose,
		Pose:         s.CurrentPose,
		PendingTurn:  s.PendingTurn,
		NextMarkerID: s.NextMarkerID,
		StepCount:    len(s.Path),
		Segments:     make([]Segment, 0),
		Markers:      make([]MarkerView, 0),
		Telemetry:    EncodeTelemetry(s.Path, s.Scale),
	}
	if !s.HasPose {
		return snap
	}

	snap.UserAngle = UserAngle(s.CurrentPose.Heading)
	corners := FootprintCorners(s.CurrentPose, s.Profile.Scaled(s.Scale))
	snap.Footprint = corners[:]
	tri := HeadingIndicator(s.CurrentPose, HeadingIndicatorSize)
	snap.HeadingIndicator = tri[:]

	for _, step := range s.Path {
		switch st := step.(type) {
		case Move:
			snap.Segments = append(snap.Segments, Segment{From: st.Start.Point(), To: st.End.Point()})
		case Marker:
			snap.Markers = append(snap.Markers, MarkerView{ID: st.ID, Position: st.Pose.Point()})
		}
	}
	snap.PathLength = pathLength(snap.Segments) / s.Scale

	return snap
}

// pathLength sums the planar length of the drive segments in field pixels
func pathLength(segments []Segment) float64 {
	total := 0.0
	for _, seg := range segments {
		total += planar.Length(orb.LineString{toOrb(seg.From), toOrb(seg.To)})
	}
	return total
}

func toOrb(p Point) orb.Point {
	return orb.Point{p.X, p.Y}
}
