package planner

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfig returns the configuration used when no file is present:
// a 93 x 45 inch field at 16 pixels per inch with the stock robot profile.
func DefaultConfig() *Config {
	return &Config{
		Field: FieldConfig{
			PixelsPerUnit: DefaultPixelsPerUnit,
			Width:         93,
			Height:        45,
			GridSpacing:   12,
		},
		Robot:    DefaultRobotProfile(),
		Start:    StartConfig{X: 5, Y: 5, Angle: 0},
		MQTT:     MQTTConfig{PublishPrefix: "fllplanner", ClientID: "fllplanner"},
		HTTPPort: 8080,
	}
}

// LoadConfig loads the configuration from a YAML file. Fields missing from
// the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks that the configuration describes a usable field and robot
func (c *Config) Validate() error {
	if c.Field.PixelsPerUnit <= 0 {
		return fmt.Errorf("field.pixelsPerUnit must be positive")
	}
	if c.Field.Width <= 0 || c.Field.Height <= 0 {
		return fmt.Errorf("field.width and field.height must be positive")
	}
	if c.Field.GridSpacing < 0 {
		return fmt.Errorf("field.gridSpacing must not be negative")
	}
	if c.Robot.Length <= 0 || c.Robot.Width <= 0 {
		return fmt.Errorf("robot.length and robot.width must be positive")
	}
	if !isFinite(c.Start.X, c.Start.Y, c.Start.Angle, c.Robot.OffsetX, c.Robot.OffsetY) {
		return fmt.Errorf("start pose and robot offsets must be finite")
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
