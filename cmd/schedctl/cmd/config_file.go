package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/sma-schedule-engine/internal/dto"
)

// loadRunConfig decodes a YAML run configuration. Unknown keys are rejected so typos in
// constraint or budget names do not silently fall back to defaults.
func loadRunConfig(path string) (dto.CreateScheduleRunRequest, error) {
	var req dto.CreateScheduleRunRequest
	if path == "" {
		return req, fmt.Errorf("a configuration file is required (-f)")
	}
	f, err := os.Open(path)
	if err != nil {
		return req, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("decode %s: %w", path, err)
	}
	return req, nil
}
