package config

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/go-playground/validator/v10"
)

// Validator validates configuration values using go-playground/validator
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	v := validator.New()

	// Register custom validation functions
	v.RegisterValidation("vendor", validateVendor)
	v.RegisterValidation("log_level", validateLogLevel)
	v.RegisterValidation("backoff", validateBackoff)

	return &Validator{
		validate: v,
	}
}

// Validate validates a complete configuration
func (v *Validator) Validate(config *Config) error {
	// Set default version if empty
	if config.Version == "" {
		config.Version = "1.0"
	}

	// Use go-playground/validator for struct validation
	if err := v.validate.Struct(config); err != nil {
		return convertError(err)
	}

	names := make([]string, 0, len(config.Apps))
	for name := range config.Apps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := v.ValidateApp(config, config.Apps[name]); err != nil {
			return fmt.Errorf("app %s: %w", name, err)
		}
	}

	if config.DefaultApp != "" {
		if _, ok := config.Apps[config.DefaultApp]; !ok {
			return ValidationError{
				Field:   "DefaultApp",
				Message: fmt.Sprintf("default app %q is not defined", config.DefaultApp),
				Value:   config.DefaultApp,
			}
		}
	}

	return nil
}

// ValidateApp checks an app against its struct tags and the configured
// vendors.
func (v *Validator) ValidateApp(config *Config, app AppConfig) error {
	if err := v.validate.Struct(app); err != nil {
		return convertError(err)
	}
	if app.Vendor == "" {
		return ValidationError{Field: "Vendor", Message: "vendor is required"}
	}
	if _, ok := config.Vendors[app.Vendor]; !ok {
		return ValidationError{
			Field:   "Vendor",
			Message: fmt.Sprintf("vendor %q is not configured", app.Vendor),
			Value:   app.Vendor,
		}
	}
	if app.Model == "" {
		return ValidationError{Field: "Model", Message: "model is required"}
	}
	if len(app.ContextSchema) > 0 && !app.Strict {
		return ValidationError{Field: "ContextSchema", Message: "context_schema requires strict mode"}
	}
	if app.Strict && !app.Monadic {
		return ValidationError{Field: "Strict", Message: "strict requires monadic mode"}
	}
	return nil
}

func convertError(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		// Convert validator errors to our custom format
		for _, e := range validationErrors {
			return ValidationError{
				Field:   e.Namespace(),
				Message: fmt.Sprintf("%s: validation failed on tag '%s' with value '%v'", e.Namespace(), e.Tag(), e.Value()),
				Value:   e.Value(),
			}
		}
	}
	return err
}

// Custom validation functions for go-playground/validator

// validateVendor validates vendor adapter types
func validateVendor(fl validator.FieldLevel) bool {
	return slices.Contains([]string{VendorOpenAI, VendorAnthropic, VendorOllama}, fl.Field().String())
}

// validateLogLevel validates log level values
func validateLogLevel(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return slices.Contains([]string{"debug", "info", "warn", "error"}, value)
}

// validateBackoff validates retry backoff values
func validateBackoff(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return slices.Contains([]string{"fixed", "exponential"}, value)
}
