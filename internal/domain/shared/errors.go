package shared

import "fmt"

// DomainError is the base error type for all domain errors
type DomainError struct {
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func NewDomainError(message string) *DomainError {
	return &DomainError{Message: message}
}

// Validation error

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Lookup errors

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// NotImplementedError reports a feature variant this build has no
// implementation for, such as an unknown game type.
type NotImplementedError struct {
	Feature string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("not implemented: %s", e.Feature)
}

func NewNotImplementedError(feature string) *NotImplementedError {
	return &NotImplementedError{Feature: feature}
}

// Sandbox errors

// UnresolvedDependencyError is returned when user code imports anything
// other than the platform helper module.
type UnresolvedDependencyError struct {
	Specifier string
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("Unable to resolve dependency: %s", e.Specifier)
}

func NewUnresolvedDependencyError(specifier string) *UnresolvedDependencyError {
	return &UnresolvedDependencyError{Specifier: specifier}
}

// NotProvisionedError marks a remote compute target that does not exist yet.
type NotProvisionedError struct {
	Function string
	Cause    error
}

func (e *NotProvisionedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("function %s not provisioned: %v", e.Function, e.Cause)
	}
	return fmt.Sprintf("function %s not provisioned", e.Function)
}

func (e *NotProvisionedError) Unwrap() error {
	return e.Cause
}

func NewNotProvisionedError(function string, cause error) *NotProvisionedError {
	return &NotProvisionedError{Function: function, Cause: cause}
}
