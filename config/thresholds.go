package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"competitive-insights/models"
)

// LoadThresholds reads anomaly thresholds from a YAML file.
// An empty path yields the defaults.
func LoadThresholds(path string) (models.AnomalyThresholds, error) {
	if path == "" {
		return models.DefaultThresholds(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return models.AnomalyThresholds{}, fmt.Errorf("failed to read thresholds file: %w", err)
	}
	return ParseThresholdsYAML(data)
}

// ParseThresholdsYAML decodes thresholds, rejecting unknown keys.
// Missing keys keep their default value.
func ParseThresholdsYAML(data []byte) (models.AnomalyThresholds, error) {
	t := models.DefaultThresholds()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return models.AnomalyThresholds{}, models.NewValidationError("thresholds", fmt.Sprintf("invalid document: %v", err))
	}
	if err := t.Validate(); err != nil {
		return models.AnomalyThresholds{}, err
	}
	return t, nil
}
