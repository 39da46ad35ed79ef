package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator is a wrapper around go-playground/validator
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new validator instance with the cross-field rules
// tags cannot express
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterStructValidation(validateSandbox, SandboxConfig{})
	v.RegisterStructValidation(validateSecrets, SecretsConfig{})

	return &Validator{
		validate: v,
	}
}

// Validate validates a struct using validation tags
func (v *Validator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return v.formatValidationError(err)
	}
	return nil
}

// formatValidationError converts validator errors into readable messages
func (v *Validator) formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		var messages []string
		for _, e := range validationErrs {
			messages = append(messages, fmt.Sprintf(
				"field '%s' failed validation: %s (value: '%v')",
				e.Namespace(),
				e.Tag(),
				e.Value(),
			))
		}
		return fmt.Errorf("validation failed:\n  %s", strings.Join(messages, "\n  "))
	}
	return err
}

func validateSandbox(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(SandboxConfig)
	if cfg.Mode != "lambda" {
		return
	}
	if cfg.Lambda.RoleARN == "" {
		sl.ReportError(cfg.Lambda.RoleARN, "Lambda.RoleARN", "role_arn", "required_for_lambda", "")
	}
	if cfg.Lambda.Region == "" {
		sl.ReportError(cfg.Lambda.Region, "Lambda.Region", "region", "required_for_lambda", "")
	}
}

func validateSecrets(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(SecretsConfig)
	if cfg.Identity != "" && cfg.IdentityFile != "" {
		sl.ReportError(cfg.IdentityFile, "IdentityFile", "identity_file", "excluded_with_identity", "")
	}
}

// ValidateConfig validates the entire configuration
func ValidateConfig(cfg *Config) error {
	v := NewValidator()
	return v.Validate(cfg)
}
