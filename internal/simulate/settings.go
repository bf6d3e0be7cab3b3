package simulate

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Settings is the per-model YAML settings file kept beside the spec CSV.
type Settings struct {
	// Spec is the spec table file name, relative to the configs directory.
	Spec string `yaml:"spec"`

	// Purpose selects the size-term coefficient rows (e.g. work, school).
	Purpose string `yaml:"purpose"`

	SampleSize int   `yaml:"sample_size"`
	Seed       int64 `yaml:"seed"`

	Segments []SegmentSetting `yaml:"segments"`

	// Constants are model constants expressions may reference.
	Constants map[string]float64 `yaml:"constants"`
}

// SegmentSetting binds a spec coefficient column to the chooser flag field
// that marks segment membership.
type SegmentSetting struct {
	Name        string `yaml:"name"`
	ChooserFlag string `yaml:"chooser_flag"`
}

// LoadSettings reads and validates a model settings file.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "simulate: read settings %s", path)
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrapf(err, "simulate: parse settings %s", path)
	}
	if err := s.Validate(); err != nil {
		return nil, eris.Wrapf(err, "simulate: settings %s", path)
	}
	return &s, nil
}

// Validate checks the fields a segmented run depends on.
func (s *Settings) Validate() error {
	if s.Spec == "" {
		return eris.New("spec file required")
	}
	if s.Purpose == "" {
		return eris.New("purpose required")
	}
	if len(s.Segments) == 0 {
		return eris.New("at least one segment required")
	}
	seen := make(map[string]bool)
	for _, seg := range s.Segments {
		if seg.Name == "" || seg.ChooserFlag == "" {
			return eris.New("segment needs name and chooser_flag")
		}
		if seen[seg.Name] {
			return eris.Errorf("duplicate segment %q", seg.Name)
		}
		seen[seg.Name] = true
	}
	if s.SampleSize < 0 {
		return eris.New("sample_size cannot be negative")
	}
	return nil
}
