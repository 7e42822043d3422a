package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var (
	envVarPatterns = struct {
		withDefault *regexp.Regexp
		braced      *regexp.Regexp
		simple      *regexp.Regexp
	}{
		withDefault: regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`),
		braced:      regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`),
		simple:      regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`),
	}
)

// expandEnvVars substitutes ${VAR:-default}, ${VAR} and $VAR references in a
// config string with values from the process environment.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	s = envVarPatterns.withDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.withDefault.FindStringSubmatch(match)
		if len(parts) == 3 {
			if val := os.Getenv(parts[1]); val != "" {
				return val
			}
			return parts[2]
		}
		return match
	})

	s = envVarPatterns.braced.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.braced.FindStringSubmatch(match)
		if len(parts) == 2 {
			return os.Getenv(parts[1])
		}
		return match
	})

	s = envVarPatterns.simple.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.simple.FindStringSubmatch(match)
		if len(parts) == 2 {
			return os.Getenv(parts[1])
		}
		return match
	})

	return s
}

// parseValue coerces an expanded string into a bool, int or float when it
// reads as one, so substituted values keep their natural YAML type.
func parseValue(value string) interface{} {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}

	if intVal, err := strconv.Atoi(value); err == nil {
		return intVal
	}

	if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
		return floatVal
	}

	return value
}

// ExpandEnvVarsInData walks an unmarshaled config tree and expands
// environment references inside every string value.
func ExpandEnvVarsInData(data interface{}) interface{} {
	switch v := data.(type) {
	case string:
		expanded := expandEnvVars(v)
		if expanded != v {
			return parseValue(expanded)
		}
		return expanded

	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, value := range v {
			result[key] = ExpandEnvVarsInData(value)
		}
		return result

	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = ExpandEnvVarsInData(item)
		}
		return result

	default:
		return v
	}
}

// LoadEnvFiles loads .env.local then .env from the working directory.
// Missing files are fine; already-set variables are never overwritten.
func LoadEnvFiles() error {
	envFiles := []string{".env.local", ".env"}

	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	return nil
}

// GetProviderAPIKey returns the conventional API key environment variable
// for a provider. Gemini accepts GOOGLE_API_KEY as a fallback since both
// names are in common use.
func GetProviderAPIKey(providerType string) string {
	switch providerType {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "gemini":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	default:
		return ""
	}
}

// envOverrides maps HARVEST_* environment variables to config key paths.
// The mapping is explicit because several keys contain underscores that a
// mechanical name-to-path conversion would split incorrectly.
var envOverrides = map[string]string{
	"HARVEST_LLM_PROVIDER": "llm.provider",
	"HARVEST_LLM_MODEL":    "llm.model",

	"HARVEST_OPENAI_API_KEY":     "llm.providers.openai.api_key",
	"HARVEST_OPENAI_MODEL":       "llm.providers.openai.model",
	"HARVEST_OPENAI_BASE_URL":    "llm.providers.openai.base_url",
	"HARVEST_OPENAI_TIMEOUT":     "llm.providers.openai.timeout",
	"HARVEST_OPENAI_MAX_RETRIES": "llm.providers.openai.max_retries",

	"HARVEST_GEMINI_API_KEY":     "llm.providers.gemini.api_key",
	"HARVEST_GEMINI_MODEL":       "llm.providers.gemini.model",
	"HARVEST_GEMINI_BASE_URL":    "llm.providers.gemini.base_url",
	"HARVEST_GEMINI_TIMEOUT":     "llm.providers.gemini.timeout",
	"HARVEST_GEMINI_MAX_RETRIES": "llm.providers.gemini.max_retries",

	"HARVEST_SESSION_MAX_SESSIONS":                "session.max_sessions",
	"HARVEST_SESSION_TIMEOUT_MINUTES":             "session.timeout_minutes",
	"HARVEST_SESSION_CLEANUP_INTERVAL_MINUTES":    "session.cleanup_interval_minutes",
	"HARVEST_SESSION_COMPLETED_CACHE_TTL_MINUTES": "session.completed_session_cache_ttl_minutes",

	"HARVEST_SHARED_DIR":      "paths.shared_dir",
	"HARVEST_OUTPUT_DIR":      "paths.output_dir",
	"HARVEST_TEMP_DIR":        "paths.temp_dir",
	"HARVEST_COOKIES_DIR":     "paths.cookies_dir",
	"HARVEST_SCREENSHOTS_DIR": "paths.screenshots_dir",
	"HARVEST_HAR_DIR":         "paths.har_dir",

	"HARVEST_LOG_LEVEL":  "logging.level",
	"HARVEST_LOG_FILE":   "logging.file",
	"HARVEST_LOG_FORMAT": "logging.format",

	"HARVEST_MEMORY_MONITORING_ENABLED":   "memory.monitoring_enabled",
	"HARVEST_MEMORY_MAX_HEAP_SIZE_MB":     "memory.max_heap_size_mb",
	"HARVEST_MEMORY_WARNING_THRESHOLD_MB": "memory.warning_threshold_mb",
	"HARVEST_MEMORY_SNAPSHOT_INTERVAL_MS": "memory.snapshot_interval_ms",

	"HARVEST_SERVER_HOST": "server.host",
	"HARVEST_SERVER_PORT": "server.port",
}

// EnvOverrides collects the config keys currently overridden through
// HARVEST_* environment variables, with values coerced the same way as
// expanded YAML strings. The result layers over file-sourced config.
func EnvOverrides() map[string]interface{} {
	out := make(map[string]interface{})
	for envVar, key := range envOverrides {
		if val, ok := os.LookupEnv(envVar); ok && val != "" {
			out[key] = parseValue(val)
		}
	}
	return out
}
