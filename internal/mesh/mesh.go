// Package mesh maps accepted measurement sets onto the bounded
// deformation parameters of a reference body mesh.
package mesh

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/bodymorph/bodymorph/internal/measure"
)

// NeutralParam is the baseline value for axes no measurement drives.
const NeutralParam = 0.5

// Axis describes one deformation axis of the reference mesh: the
// measurement that drives it and the physical range the mesh supports.
type Axis struct {
	Name        string  `yaml:"name" json:"name"`
	Measurement string  `yaml:"measurement" json:"measurement"`
	MinCm       float64 `yaml:"min_cm" json:"min_cm"`
	MaxCm       float64 `yaml:"max_cm" json:"max_cm"`
}

// Metadata is the reference mesh description, supplied by static
// configuration alongside the measurement plan.
type Metadata struct {
	Axes []Axis `yaml:"axes"`
}

// ParseMetadata decodes and validates YAML mesh metadata.
func ParseMetadata(data []byte) (*Metadata, error) {
	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing mesh metadata: %w", err)
	}
	if len(meta.Axes) == 0 {
		return nil, fmt.Errorf("mesh metadata has no axes")
	}
	seen := make(map[string]struct{}, len(meta.Axes))
	for _, axis := range meta.Axes {
		if axis.Name == "" {
			return nil, fmt.Errorf("mesh axis without a name")
		}
		if _, dup := seen[axis.Name]; dup {
			return nil, fmt.Errorf("duplicate mesh axis %q", axis.Name)
		}
		seen[axis.Name] = struct{}{}
		if axis.MaxCm <= axis.MinCm {
			return nil, fmt.Errorf("mesh axis %q has empty range [%g, %g]", axis.Name, axis.MinCm, axis.MaxCm)
		}
	}
	return &meta, nil
}

// Parameters maps axis names to normalized deformation values in [0, 1].
type Parameters map[string]float64

// RangeWarning reports a measured value outside the mesh's supported
// range for an axis. The value is still clamped and used; the warning
// lets the UI indicate the rendered shape is an approximation.
type RangeWarning struct {
	Axis        string  `json:"axis"`
	Measurement string  `json:"measurement"`
	ValueCm     float64 `json:"value_cm"`
	MinCm       float64 `json:"min_cm"`
	MaxCm       float64 `json:"max_cm"`
}

func (w RangeWarning) String() string {
	return fmt.Sprintf("axis %s: measured %.1fcm outside supported range [%.1f, %.1f]",
		w.Axis, w.ValueCm, w.MinCm, w.MaxCm)
}

// Parametrize maps an accepted measurement set onto the mesh axes.
// Measurements without an axis are ignored; axes without a measurement
// keep the neutral default. One warning is raised per out-of-range axis.
// It is a pure function of its inputs.
func Parametrize(set *measure.Set, meta *Metadata) (Parameters, []RangeWarning) {
	params := make(Parameters, len(meta.Axes))
	var warnings []RangeWarning

	for _, axis := range meta.Axes {
		v, ok := set.Values[axis.Measurement]
		if !ok {
			params[axis.Name] = NeutralParam
			continue
		}

		if v.Centimeters < axis.MinCm || v.Centimeters > axis.MaxCm {
			warnings = append(warnings, RangeWarning{
				Axis:        axis.Name,
				Measurement: axis.Measurement,
				ValueCm:     v.Centimeters,
				MinCm:       axis.MinCm,
				MaxCm:       axis.MaxCm,
			})
		}

		params[axis.Name] = clamp((v.Centimeters - axis.MinCm) / (axis.MaxCm - axis.MinCm))
	}

	return params, warnings
}

func clamp(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
