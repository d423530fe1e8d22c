package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// RunHeader identifies a run and carries its configuration and summary.
type RunHeader struct {
	RunID        string      `yaml:"run_id"`
	LearningType string      `yaml:"learning_type"`
	Seed         int64       `yaml:"seed"`
	Dataset      string      `yaml:"dataset,omitempty"`
	Config       any         `yaml:"config"`
	Summary      *RunSummary `yaml:"summary,omitempty"`
}

// NewRunHeader creates a header with a fresh random run id.
func NewRunHeader(learningType string, seed int64, dataset string, config any) *RunHeader {
	return &RunHeader{
		RunID:        uuid.NewString(),
		LearningType: learningType,
		Seed:         seed,
		Dataset:      dataset,
		Config:       config,
	}
}

// WriteFile writes the header as YAML, creating parent directories.
func (h *RunHeader) WriteFile(path string) error {
	data, err := yaml.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshaling run header: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing run header: %w", err)
	}
	return nil
}
