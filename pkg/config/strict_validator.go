package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
	"github.com/mitchellh/mapstructure"
)

// StrictValidationResult contains validation errors from strict unmarshaling.
type StrictValidationResult struct {
	UnknownFields []string
	TypeErrors    []string
}

// Valid returns true if there are no validation errors.
func (r *StrictValidationResult) Valid() bool {
	return len(r.UnknownFields) == 0 && len(r.TypeErrors) == 0
}

// FormatErrors returns a human-readable error message.
func (r *StrictValidationResult) FormatErrors() string {
	if r.Valid() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("configuration validation errors:\n")

	if len(r.UnknownFields) > 0 {
		sb.WriteString("\nunknown fields (not recognized):\n")
		for _, field := range r.UnknownFields {
			sb.WriteString(fmt.Sprintf("  - %s\n", field))
		}
		sb.WriteString("\ncheck for typos and incorrect nesting; 'harvest schema' prints the accepted structure\n")
	}

	if len(r.TypeErrors) > 0 {
		sb.WriteString("\ntype errors:\n")
		for _, err := range r.TypeErrors {
			sb.WriteString(fmt.Sprintf("  - %s\n", err))
		}
	}

	return sb.String()
}

// ValidateConfigStructure performs strict validation on raw config data.
// It catches typos, unknown fields and wrong value types before the config
// is processed, so a misspelled key fails loudly instead of silently
// falling back to a default.
func ValidateConfigStructure(k *koanf.Koanf) (*StrictValidationResult, error) {
	result := &StrictValidationResult{}

	cfg := &Config{}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      cfg,
		ErrorUnused: true,
		TagName:     "yaml",
		// No weak coercion: "100" stays a string and fails against int fields.
		WeaklyTypedInput: false,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.TextUnmarshallerHookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	rawMap := k.Raw()
	if err := decoder.Decode(rawMap); err != nil {
		errStr := err.Error()

		if strings.Contains(errStr, "unused key") || strings.Contains(errStr, "has invalid keys:") {
			result.UnknownFields = extractUnknownFields(errStr)
		} else {
			result.TypeErrors = append(result.TypeErrors, errStr)
		}
	}

	return result, nil
}

// extractUnknownFields parses mapstructure error messages to pull out the
// offending key names.
func extractUnknownFields(errMsg string) []string {
	var fields []string

	// mapstructure error format: "...has invalid keys: key1, key2, key3"
	if idx := strings.Index(errMsg, "has invalid keys:"); idx != -1 {
		keysStr := errMsg[idx+len("has invalid keys:"):]
		keysStr = strings.TrimSpace(keysStr)
		for _, key := range strings.Split(keysStr, ",") {
			key = strings.TrimSpace(key)
			if key != "" {
				fields = append(fields, key)
			}
		}
	}

	if len(fields) == 0 {
		fields = []string{errMsg}
	}

	return fields
}

// ValidateConfigBytes runs strict validation on a raw YAML document without
// going through a loader. Used by the validate subcommand.
func ValidateConfigBytes(data []byte) (*StrictValidationResult, error) {
	parsed, err := yaml.Parser().Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config document: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(parsed, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load config document: %w", err)
	}

	return ValidateConfigStructure(k)
}
