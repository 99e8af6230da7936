package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/pixelgrid/internal/grid"
)

// Scenario is a scripted session against one engine.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Size is the grid side length. Default: 4.
	Size int `yaml:"size,omitempty"`

	// DefaultColor is the color of unpainted cells. Default: #FFFFFF.
	DefaultColor string `yaml:"default_color,omitempty"`

	// Seed rows exist in the gateway before the engine starts.
	Seed []Cell `yaml:"seed,omitempty"`

	// Faults are active from the start.
	Faults Faults `yaml:"faults,omitempty"`

	Steps []Step `yaml:"steps"`

	Expect Expect `yaml:"expect"`
}

// Point is a grid coordinate.
type Point struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

// Cell is a coordinate with a color.
type Cell struct {
	X     int    `yaml:"x"`
	Y     int    `yaml:"y"`
	Color string `yaml:"color"`
}

// Faults selects which gateway operations fail.
type Faults struct {
	FailFetch  bool `yaml:"fail_fetch,omitempty"`
	FailUpsert bool `yaml:"fail_upsert,omitempty"`
	FailDelete bool `yaml:"fail_delete,omitempty"`
}

// ClearStep answers the clear confirmation prompt.
type ClearStep struct {
	Confirm bool `yaml:"confirm"`
}

// Step is one action. Exactly one field is set.
type Step struct {
	Select      string     `yaml:"select,omitempty"`
	Paint       *int       `yaml:"paint,omitempty"`
	PaintAt     *Point     `yaml:"paint_at,omitempty"`
	Remote      *Cell      `yaml:"remote,omitempty"`
	RemoteClear bool       `yaml:"remote_clear,omitempty"`
	Clear       *ClearStep `yaml:"clear,omitempty"`
	Reload      bool       `yaml:"reload,omitempty"`
	Faults      *Faults    `yaml:"faults,omitempty"`
}

// Expect lists the checks applied to the final state. Empty fields are not
// checked.
type Expect struct {
	State      string   `yaml:"state,omitempty"`
	Cells      []Cell   `yaml:"cells,omitempty"`
	RemoteRows *int     `yaml:"remote_rows,omitempty"`
	Errors     []string `yaml:"errors,omitempty"`
}

const defaultScenarioSize = 4

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "step:" vs "steps:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Size == 0 {
		scenario.Size = defaultScenarioSize
	}
	if scenario.DefaultColor == "" {
		scenario.DefaultColor = string(grid.DefaultColor)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Size < 0 {
		return fmt.Errorf("size must be positive")
	}
	if !grid.Color(s.DefaultColor).Valid() {
		return fmt.Errorf("default_color %q must be canonical #RRGGBB", s.DefaultColor)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, c := range s.Seed {
		if _, err := grid.ParseColor(c.Color); err != nil {
			return fmt.Errorf("seed[%d]: %w", i, err)
		}
	}

	for i, step := range s.Steps {
		if n := step.actions(); n != 1 {
			return fmt.Errorf("steps[%d]: exactly one action is required, got %d", i, n)
		}
		if step.Remote != nil {
			if _, err := grid.ParseColor(step.Remote.Color); err != nil {
				return fmt.Errorf("steps[%d].remote: %w", i, err)
			}
		}
	}

	for i, c := range s.Expect.Cells {
		if c.X < 0 || c.Y < 0 || c.X >= s.Size || c.Y >= s.Size {
			return fmt.Errorf("expect.cells[%d]: (%d, %d) outside %dx%d grid", i, c.X, c.Y, s.Size, s.Size)
		}
	}
	return nil
}

func (s Step) actions() int {
	n := 0
	for _, set := range []bool{
		s.Select != "",
		s.Paint != nil,
		s.PaintAt != nil,
		s.Remote != nil,
		s.RemoteClear,
		s.Clear != nil,
		s.Reload,
		s.Faults != nil,
	} {
		if set {
			n++
		}
	}
	return n
}
