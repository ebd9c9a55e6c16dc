package planner

// Point represents a 2D coordinate in field space
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pose is a robot position plus heading in field space.
// Heading is in degrees, 0 = +X, counter-clockwise, wrapped to [0, 360).
type Pose struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
}

// Point returns the position component of the pose
func (p Pose) Point() Point {
	return Point{X: p.X, Y: p.Y}
}

// RobotProfile describes the robot footprint in user length units.
// The footprint rectangle is centered on (OffsetX, OffsetY) in the robot's
// local frame (+X forward, +Y left) and rotates with the heading.
type RobotProfile struct {
	Length  float64 `yaml:"length" json:"length"`
	Width   float64 `yaml:"width" json:"width"`
	OffsetX float64 `yaml:"offsetX" json:"offsetX"`
	OffsetY float64 `yaml:"offsetY" json:"offsetY"`
}

// DefaultRobotProfile returns the stock 2.0 x 1.5 unit footprint
func DefaultRobotProfile() RobotProfile {
	return RobotProfile{Length: 2.0, Width: 1.5}
}

// Scaled converts the profile from user units to field pixels
func (rp RobotProfile) Scaled(scale float64) RobotProfile {
	return RobotProfile{
		Length:  rp.Length * scale,
		Width:   rp.Width * scale,
		OffsetX: rp.OffsetX * scale,
		OffsetY: rp.OffsetY * scale,
	}
}

// StepKind identifies the variant of a Step
type StepKind string

const (
	StepMove   StepKind = "move"
	StepTurn   StepKind = "turn"
	StepMarker StepKind = "marker"
)

// Step is one recorded instruction in a path: a Move, a Turn or a Marker.
type Step interface {
	Kind() StepKind
}

// Move rotates the robot to face its travel direction and then drives.
// Distance is in user length units; poses are in field space.
type Move struct {
	TurnAngle float64 `json:"turnAngle"`
	Distance  float64 `json:"distance"`
	Heading   float64 `json:"heading"` // heading at arrival
	Start     Pose    `json:"start"`
	End       Pose    `json:"end"`
}

// Turn rotates the robot in place by a signed delta in degrees
type Turn struct {
	Delta float64 `json:"delta"`
}

// Marker drops a numbered marker at a pose. Markers never move the robot.
type Marker struct {
	ID   int  `json:"id"`
	Pose Pose `json:"pose"`
}

func (Move) Kind() StepKind   { return StepMove }
func (Turn) Kind() StepKind   { return StepTurn }
func (Marker) Kind() StepKind { return StepMarker }

// FieldConfig describes the playing field and its scale
type FieldConfig struct {
	Image         string  `yaml:"image,omitempty" json:"image,omitempty"` // Optional background image for raster previews
	PixelsPerUnit float64 `yaml:"pixelsPerUnit" json:"pixelsPerUnit"`
	Width         float64 `yaml:"width" json:"width"`                                 // Field width in user units
	Height        float64 `yaml:"height" json:"height"`                               // Field height in user units
	GridSpacing   float64 `yaml:"gridSpacing,omitempty" json:"gridSpacing,omitempty"` // Preview grid spacing in user units (0 disables)
}

// StartConfig is the user-facing start specification (units and degrees)
type StartConfig struct {
	X     float64 `yaml:"x" json:"x"`
	Y     float64 `yaml:"y" json:"y"`
	Angle float64 `yaml:"angle" json:"angle"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker,omitempty" json:"broker,omitempty"`
	PublishPrefix string `yaml:"publishPrefix,omitempty" json:"publishPrefix,omitempty"`
	ClientID      string `yaml:"clientId,omitempty" json:"clientId,omitempty"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// Config represents the full configuration file
type Config struct {
	Field    FieldConfig  `yaml:"field" json:"field"`
	Robot    RobotProfile `yaml:"robot" json:"robot"`
	Start    StartConfig  `yaml:"start" json:"start"`
	MQTT     MQTTConfig   `yaml:"mqtt" json:"mqtt"`
	HTTPPort int          `yaml:"httpPort,omitempty" json:"httpPort,omitempty"`
}

// Scale returns the number of field pixels per user length unit
func (c *Config) Scale() float64 {
	if c.Field.PixelsPerUnit <= 0 {
		return DefaultPixelsPerUnit
	}
	return c.Field.PixelsPerUnit
}

// StartPose resolves the configured start specification into field space
func (c *Config) StartPose() Pose {
	return ResolveStartPose(c.Start.X, c.Start.Y, c.Start.Angle, c.Scale())
}

// FieldSize returns the field dimensions in field pixels
func (c *Config) FieldSize() (width, height float64) {
	return c.Field.Width * c.Scale(), c.Field.Height * c.Scale()
}
