package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/utils"
)

// LoadExportSettings reads the YAML export settings at path over the defaults. A missing
// file yields the defaults.
func LoadExportSettings(path string) (models.ExportSettings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ValidateExportSettings(models.DefaultExportSettings())
	}
	if err != nil {
		return models.ExportSettings{}, fmt.Errorf("failed to read export settings: %w", err)
	}
	return ParseExportSettings(data)
}

// ParseExportSettings decodes YAML export settings over the defaults and validates them
func ParseExportSettings(data []byte) (models.ExportSettings, error) {
	settings := models.DefaultExportSettings()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&settings); err != nil && !errors.Is(err, io.EOF) {
		return models.ExportSettings{}, fmt.Errorf("failed to parse export settings: %w", err)
	}

	return ValidateExportSettings(settings)
}

// ValidateExportSettings checks struct rules and the cross-field rules the struct tags cannot express
func ValidateExportSettings(settings models.ExportSettings) (models.ExportSettings, error) {
	if _, err := utils.Validate(settings); err != nil {
		return models.ExportSettings{}, fmt.Errorf("invalid export settings: %w", err)
	}
	if _, ok := settings.Languages[settings.DefaultLanguage]; !ok {
		return models.ExportSettings{}, fmt.Errorf("invalid export settings: default_language %q is not one of languages", settings.DefaultLanguage)
	}
	if !settings.EndDate.IsZero() && settings.EndDate.Before(settings.StartDate) {
		return models.ExportSettings{}, fmt.Errorf("invalid export settings: end_date is before start_date")
	}
	return settings, nil
}
