package planner

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

const (
	rotatePrefix = "Rotate"
	drivePrefix  = "Drive"
	markerPrefix = "MARKER"
	degreeSign   = "°"
)

// SkippedLine reports a recognised telemetry line that could not be parsed
type SkippedLine struct {
	Line   int    `json:"line"` // 1-based line number in the input
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

func (s SkippedLine) String() string {
	return fmt.Sprintf("line %d %q: %s", s.Line, s.Text, s.Reason)
}

// EncodeTelemetry renders steps as telemetry text, one instruction per line
func EncodeTelemetry(steps []Step, scale float64) string {
	return strings.Join(EncodeLines(steps, scale), "\n")
}

// EncodeLines renders steps as telemetry lines in path order. A Move
// produces a Rotate line followed by a Drive line.
func EncodeLines(steps []Step, scale float64) []string {
	if scale <= 0 {
		scale = DefaultPixelsPerUnit
	}
	lines := make([]string, 0, len(steps)*2)
	for _, step := range steps {
		switch st := step.(type) {
		case Turn:
			lines = append(lines, formatRotate(st.Delta))
		case Move:
			lines = append(lines, formatRotate(st.TurnAngle), formatDrive(st.Distance))
		case Marker:
			lines = append(lines, fmt.Sprintf("%s %d at (%s, %s)", markerPrefix, st.ID,
				formatFixed(st.Pose.X/scale, 2), formatFixed(st.Pose.Y/scale, 2)))
		}
	}
	return lines
}

func formatRotate(deg float64) string {
	return fmt.Sprintf("%s %s%s", rotatePrefix, formatFixed(deg, 1), degreeSign)
}

func formatDrive(distance float64) string {
	return fmt.Sprintf("%s %s\"", drivePrefix, formatFixed(distance, 2))
}

// formatFixed formats v with the given number of decimals, printing values
// that round to zero as positive zero.
func formatFixed(v float64, decimals int) string {
	if math.Abs(v) < 0.5*math.Pow(10, -float64(decimals)) {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', decimals, 64)
}

// DecodeTelemetry parses telemetry text into steps. Lines are dispatched on
// their Rotate, Drive or MARKER prefix; other lines are ignored. A Rotate
// is held until the next line: a following Drive consumes it into a Move,
// anything else turns it into a standalone Turn. Malformed recognised lines
// are skipped and reported without affecting the surrounding lines.
// Decoded steps carry no computed poses; pass them through Replay.
func DecodeTelemetry(text string, scale float64) ([]Step, []SkippedLine) {
	if scale <= 0 {
		scale = DefaultPixelsPerUnit
	}

	var (
		steps      []Step
		skipped    []SkippedLine
		pending    float64
		hasPending bool
	)
	flush := func() {
		if hasPending {
			steps = append(steps, Turn{Delta: pending})
			hasPending = false
		}
	}
	skip := func(n int, line string, err error) {
		skipped = append(skipped, SkippedLine{Line: n, Text: line, Reason: err.Error()})
	}

	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, rotatePrefix):
			deg, err := parseInstructionValue(line, degreeSign)
			if err != nil {
				skip(i+1, line, err)
				continue
			}
			flush()
			pending, hasPending = deg, true

		case strings.HasPrefix(line, drivePrefix):
			dist, err := parseInstructionValue(line, "\"")
			if err != nil {
				skip(i+1, line, err)
				continue
			}
			if !isFinite(dist * scale) {
				skip(i+1, line, fmt.Errorf("distance %g overflows field space", dist))
				continue
			}
			turn := 0.0
			if hasPending {
				turn, hasPending = pending, false
			}
			steps = append(steps, Move{TurnAngle: turn, Distance: dist})

		case strings.HasPrefix(line, markerPrefix):
			marker, err := parseMarker(line, scale)
			if err != nil {
				skip(i+1, line, err)
				continue
			}
			flush()
			steps = append(steps, marker)
		}
	}
	flush()

	return steps, skipped
}

// parseInstructionValue reads the second whitespace separated field of a
// Rotate or Drive line with its unit suffix removed.
func parseInstructionValue(line, unit string) (float64, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, fmt.Errorf("missing value")
	}
	return parseFinite(strings.TrimSuffix(fields[1], unit))
}

// parseMarker parses "MARKER <id> at (<x>, <y>)" with coordinates in user units
func parseMarker(line string, scale float64) (Marker, error) {
	head, tail, ok := strings.Cut(strings.TrimPrefix(line, markerPrefix), "at")
	if !ok {
		return Marker{}, fmt.Errorf("missing \"at\"")
	}

	idFields := strings.Fields(head)
	if len(idFields) != 1 {
		return Marker{}, fmt.Errorf("missing marker id")
	}
	id, err := strconv.Atoi(idFields[0])
	if err != nil {
		return Marker{}, fmt.Errorf("parsing marker id: %w", err)
	}

	coords := strings.Split(strings.Trim(tail, " ()"), ",")
	if len(coords) != 2 {
		return Marker{}, fmt.Errorf("expected 2 coordinates, got %d", len(coords))
	}
	x, err := parseFinite(strings.TrimSpace(coords[0]))
	if err != nil {
		return Marker{}, fmt.Errorf("parsing x: %w", err)
	}
	y, err := parseFinite(strings.TrimSpace(coords[1]))
	if err != nil {
		return Marker{}, fmt.Errorf("parsing y: %w", err)
	}

	if !isFinite(x*scale, y*scale) {
		return Marker{}, fmt.Errorf("position (%g, %g) overflows field space", x, y)
	}
	return Marker{ID: id, Pose: Pose{X: x * scale, Y: y * scale}}, nil
}

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if !isFinite(v) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}

// ReadTelemetryFile reads a telemetry text file
func ReadTelemetryFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading telemetry file: %w", err)
	}
	return string(data), nil
}

// WriteTelemetryFile writes telemetry text with a trailing newline
func WriteTelemetryFile(path, text string) error {
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("writing telemetry file: %w", err)
	}
	return nil
}
