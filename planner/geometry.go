package planner

import "math"

const (
	// DefaultPixelsPerUnit is the field scale used when none is configured
	DefaultPixelsPerUnit = 16.0

	// HeadingIndicatorSize is the tip distance of the heading triangle in field pixels
	HeadingIndicatorSize = 10.0

	// headingIndicatorSpread is the angle between the tip and each base point
	headingIndicatorSpread = 140.0
)

// ResolveStartPose converts a user-facing start specification into a field
// space pose. A user angle of 0 faces field "up" (+Y) and positive user angles
// turn clockwise, so the stored heading is -angle + 90. Previously authored
// telemetry depends on this convention.
func ResolveStartPose(xUnits, yUnits, angleDegrees, scale float64) Pose {
	return Pose{
		X:       xUnits * scale,
		Y:       yUnits * scale,
		Heading: NormalizeAngle(-angleDegrees + 90),
	}
}

// UserAngle converts a field heading back to the user-facing angle convention
func UserAngle(heading float64) float64 {
	return NormalizeAngle(90 - heading)
}

// AngleTo returns the absolute heading from a pose to a target point, in [0, 360)
func AngleTo(from Pose, to Point) float64 {
	return NormalizeAngle(degrees(math.Atan2(to.Y-from.Y, to.X-from.X)))
}

// ShortestTurn returns the signed rotation from one heading to another in
// (-180, 180]. A half turn resolves to +180.
func ShortestTurn(fromHeading, toHeading float64) float64 {
	turn := NormalizeAngle(toHeading - fromHeading)
	if turn > 180 {
		turn -= 360
	}
	return turn
}

// FootprintCorners returns the robot rectangle in field space for a profile
// already scaled to field pixels. Corner order is rear-right, front-right,
// front-left, rear-left.
func FootprintCorners(pose Pose, profile RobotProfile) [4]Point {
	halfL := profile.Length / 2
	halfW := profile.Width / 2
	local := []Point{
		{X: profile.OffsetX - halfL, Y: profile.OffsetY - halfW},
		{X: profile.OffsetX + halfL, Y: profile.OffsetY - halfW},
		{X: profile.OffsetX + halfL, Y: profile.OffsetY + halfW},
		{X: profile.OffsetX - halfL, Y: profile.OffsetY + halfW},
	}
	world := TransformPoints(local, CreateRotationTranslation(pose.Heading, pose.X, pose.Y))

	var corners [4]Point
	copy(corners[:], world)
	return corners
}

// HeadingIndicator returns the heading triangle: a tip size units ahead of
// the pose and two base points at heading ±140°.
func HeadingIndicator(pose Pose, size float64) [3]Point {
	at := func(deg float64) Point {
		rad := radians(deg)
		return Point{X: pose.X + size*math.Cos(rad), Y: pose.Y + size*math.Sin(rad)}
	}
	return [3]Point{
		at(pose.Heading),
		at(pose.Heading + headingIndicatorSpread),
		at(pose.Heading - headingIndicatorSpread),
	}
}

// advance moves a pose forward along a heading by a distance in field pixels
func advance(p Pose, heading, distance float64) Pose {
	rad := radians(heading)
	return Pose{
		X:       p.X + distance*math.Cos(rad),
		Y:       p.Y + distance*math.Sin(rad),
		Heading: heading,
	}
}

func isFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
