// Package grade maps achieved percentages to German school grades.
package grade

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pavelanni/korrekturpilot/internal/model"
)

// Threshold assigns Label to every percentage >= Min.
type Threshold struct {
	Min   float64 `mapstructure:"min" json:"min"`
	Label string  `mapstructure:"label" json:"label"`
}

// Band is the threshold table for a range of grade levels. Thresholds are
// ordered from the best grade down; the last entry is the fallback label
// and its Min is ignored.
type Band struct {
	Name       string      `mapstructure:"name" json:"name"`
	MinLevel   int         `mapstructure:"min_level" json:"min_level"`
	MaxLevel   int         `mapstructure:"max_level" json:"max_level"`
	Thresholds []Threshold `mapstructure:"thresholds" json:"thresholds"`
}

// Table is a set of bands plus the name of the band used when the grade
// level is missing, unparseable, or not covered by any band.
type Table struct {
	Bands   []Band `mapstructure:"bands" json:"bands"`
	Default string `mapstructure:"default" json:"default"`
}

// DefaultTable returns the built-in primary, secondary and upper-school bands.
func DefaultTable() Table {
	return Table{
		Default: "secondary",
		Bands: []Band{
			{
				Name: "primary", MinLevel: 1, MaxLevel: 4,
				Thresholds: []Threshold{
					{95, "1"}, {80, "2"}, {65, "3"}, {50, "4"}, {25, "5"}, {0, "6"},
				},
			},
			{
				Name: "secondary", MinLevel: 5, MaxLevel: 10,
				Thresholds: []Threshold{
					{92, "1"}, {81, "2"}, {67, "3"}, {50, "4"}, {30, "5"}, {0, "6"},
				},
			},
			{
				Name: "upper", MinLevel: 11, MaxLevel: 13,
				Thresholds: []Threshold{
					{95, "1+"}, {90, "1"}, {85, "1-"},
					{80, "2+"}, {75, "2"}, {70, "2-"},
					{65, "3+"}, {60, "3"}, {55, "3-"},
					{50, "4+"}, {45, "4"}, {40, "4-"},
					{33, "5+"}, {27, "5"}, {20, "5-"},
					{0, "6"},
				},
			},
		},
	}
}

// Validate checks that every band has thresholds in strictly decreasing
// order and that the default band exists.
func (t Table) Validate() error {
	foundDefault := false
	for _, b := range t.Bands {
		if b.Name == t.Default {
			foundDefault = true
		}
		if len(b.Thresholds) == 0 {
			return fmt.Errorf("band %q has no thresholds", b.Name)
		}
		if b.MinLevel > b.MaxLevel {
			return fmt.Errorf("band %q: min_level %d > max_level %d", b.Name, b.MinLevel, b.MaxLevel)
		}
		for i := 1; i < len(b.Thresholds)-1; i++ {
			if b.Thresholds[i].Min >= b.Thresholds[i-1].Min {
				return fmt.Errorf("band %q: thresholds must decrease (%v after %v)",
					b.Name, b.Thresholds[i].Min, b.Thresholds[i-1].Min)
			}
		}
	}
	if !foundDefault {
		return fmt.Errorf("default band %q not defined", t.Default)
	}
	return nil
}

// Calculator computes grades from a validated table.
type Calculator struct {
	table Table
}

// NewCalculator validates table and returns a Calculator for it.
func NewCalculator(table Table) (*Calculator, error) {
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("grade table: %w", err)
	}
	return &Calculator{table: table}, nil
}

// Default returns a Calculator over DefaultTable.
func Default() *Calculator {
	return &Calculator{table: DefaultTable()}
}

// Band returns the band that applies to gradeLevel.
func (c *Calculator) Band(gradeLevel string) Band {
	var fallback Band
	level, err := strconv.Atoi(strings.TrimSpace(gradeLevel))
	for _, b := range c.table.Bands {
		if err == nil && level >= b.MinLevel && level <= b.MaxLevel {
			return b
		}
		if b.Name == c.table.Default {
			fallback = b
		}
	}
	return fallback
}

// Grade returns the grade for percentage within the band selected by
// gradeLevel. A percentage exactly on a threshold receives the better grade.
// Out-of-range percentages fall to the first or last label.
func (c *Calculator) Grade(percentage float64, gradeLevel string) model.GradeInfo {
	band := c.Band(gradeLevel)
	label := band.Thresholds[len(band.Thresholds)-1].Label
	for _, th := range band.Thresholds {
		if percentage >= th.Min {
			label = th.Label
			break
		}
	}
	return Info(label)
}

// Info builds the GradeInfo for label. The tier depends only on the label.
func Info(label string) model.GradeInfo {
	tier := Tier(label)
	return model.GradeInfo{
		Label: label,
		Tier:  tier,
		Class: "grade-" + string(tier),
	}
}

// Tier classifies a label by its leading digit: 1 and 2 are good, 3 and 4
// medium, everything else poor.
func Tier(label string) model.GradeTier {
	label = strings.TrimSpace(label)
	if label == "" {
		return model.TierPoor
	}
	switch label[0] {
	case '1', '2':
		return model.TierGood
	case '3', '4':
		return model.TierMedium
	default:
		return model.TierPoor
	}
}
