package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LogLevelFromString converts string to LogLevel
func LogLevelFromString(level string) LogLevel {
	switch strings.ToLower(level) {
	case "trace":
		return TRACE
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

// FileConfig represents logging configuration as loaded from YAML.
type FileConfig struct {
	Level         string `yaml:"level"`
	EnableConsole bool   `yaml:"enable_console"`
	EnableFile    bool   `yaml:"enable_file"`
	LogFile       string `yaml:"log_file"`
	BufferSize    int    `yaml:"buffer_size"`
	LogDir        string `yaml:"log_dir"`
}

// InitializeFromConfig builds a Logger from a FileConfig, creating the log
// directory if one is configured.
func InitializeFromConfig(instanceID string, fc FileConfig) (*Logger, error) {
	if fc.LogDir != "" {
		if err := os.MkdirAll(fc.LogDir, 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}

	logFile := fc.LogFile
	if logFile == "" && fc.EnableFile {
		if fc.LogDir != "" {
			logFile = filepath.Join(fc.LogDir, fmt.Sprintf("%s.log", instanceID))
		} else {
			logFile = fmt.Sprintf("%s.log", instanceID)
		}
	}

	return NewLogger(Config{
		Level:         LogLevelFromString(fc.Level),
		InstanceID:    instanceID,
		LogFile:       logFile,
		EnableConsole: fc.EnableConsole,
		EnableFile:    fc.EnableFile,
		BufferSize:    fc.BufferSize,
	}), nil
}

// Component names used in structured log fields throughout this module.
const (
	ComponentCoordinator = "coordinator"
	ComponentStore       = "store"
	ComponentMemory      = "memory"
	ComponentEviction    = "eviction"
	ComponentMain        = "main"
)

// Action names used in structured log fields throughout this module.
const (
	ActionEvict          = "evict"
	ActionExpire         = "expire"
	ActionSchemaMismatch = "schema_mismatch"
	ActionDecodeFailure  = "decode_failure"
	ActionPromote        = "promote"
	ActionCascade        = "cascade"
	ActionStart          = "start"
	ActionStop           = "stop"
	ActionCleanup        = "cleanup"
)
