// Package validation provides cluster configuration validation
package validation

import (
	"fmt"
	"os"
	"strings"

	"github.com/clusterrunner/clusterrunner/pkg/types"
)

// ConfigValidator validates cluster configurations before a build
type ConfigValidator struct{}

// NewConfigValidator creates a new config validator
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
	Level   ValidationLevel
}

// ValidationLevel represents error severity
type ValidationLevel string

const (
	ValidationLevelError   ValidationLevel = "error"
	ValidationLevelWarning ValidationLevel = "warning"
	ValidationLevelInfo    ValidationLevel = "info"
)

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Level, e.Field, e.Message)
}

// ValidationResult contains validation results
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// AddError adds an error to the validation result
func (r *ValidationResult) AddError(field, message string, level ValidationLevel) {
	r.Errors = append(r.Errors, ValidationError{
		Field:   field,
		Message: message,
		Level:   level,
	})
	if level == ValidationLevelError {
		r.Valid = false
	}
}

// Warnings returns only the warning-level entries.
func (r *ValidationResult) Warnings() []ValidationError {
	var out []ValidationError
	for _, e := range r.Errors {
		if e.Level == ValidationLevelWarning {
			out = append(out, e)
		}
	}
	return out
}

// Validate validates a cluster configuration
func (v *ConfigValidator) Validate(cfg *types.ClusterConfig) *ValidationResult {
	result := &ValidationResult{Valid: true}

	v.validateBasicFields(cfg, result)
	v.validatePorts(cfg, result)
	v.validatePaths(cfg, result)
	v.validateTypes(cfg, result)

	return result
}

func (v *ConfigValidator) validateBasicFields(cfg *types.ClusterConfig, result *ValidationResult) {
	if cfg.NumOfNode < 1 {
		result.AddError("numOfNode", "must be at least 1", ValidationLevelError)
	}
	if cfg.NumOfNode > 100 {
		result.AddError("numOfNode", "suspiciously large node count", ValidationLevelWarning)
	}

	if cfg.ClusterName == "" {
		result.AddError("clusterName", "must not be empty", ValidationLevelError)
	} else if strings.ContainsAny(cfg.ClusterName, "/\\") {
		result.AddError("clusterName", "must not contain path separators", ValidationLevelError)
	}
}

func (v *ConfigValidator) validatePorts(cfg *types.ClusterConfig, result *ValidationResult) {
	if cfg.BaseHTTPPort < 0 || cfg.BaseHTTPPort > 65535 {
		result.AddError("baseHttpPort", "outside the valid port range", ValidationLevelError)
	} else if cfg.BaseHTTPPort > 0 && cfg.BaseHTTPPort < 1024 {
		result.AddError("baseHttpPort", "ports below 1024 usually require elevated privileges", ValidationLevelWarning)
	}
}

func (v *ConfigValidator) validatePaths(cfg *types.ClusterConfig, result *ValidationResult) {
	for field, path := range map[string]string{
		"confPath": cfg.ConfPath,
		"dataPath": cfg.DataPath,
		"logsPath": cfg.LogsPath,
	} {
		if path == "" {
			continue
		}
		parent := path
		if info, err := os.Stat(parent); err == nil && !info.IsDir() {
			result.AddError(field, fmt.Sprintf("%s exists but is not a directory", path), ValidationLevelError)
		}
	}
}

func (v *ConfigValidator) validateTypes(cfg *types.ClusterConfig, result *ValidationResult) {
	for _, moduleType := range cfg.ModuleTypes {
		if strings.TrimSpace(moduleType) == "" {
			result.AddError("moduleTypes", "contains an empty module name", ValidationLevelWarning)
		}
	}
	for _, pluginType := range cfg.PluginTypes {
		if strings.TrimSpace(pluginType) == "" {
			result.AddError("pluginTypes", "contains an empty plugin name", ValidationLevelWarning)
		}
	}
}
