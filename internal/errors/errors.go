// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInvalidStrategy  = errors.New("invalid strategy geometry")
	ErrRiskLimit        = errors.New("risk limit exceeded")
	ErrInvalidHedge     = errors.New("invalid hedge")
	ErrUnknownScenario  = errors.New("unknown stress scenario")
	ErrUnknownKind      = errors.New("unknown instrument kind")
	ErrPositionNotFound = errors.New("position not found")
	ErrSymbolNotFound   = errors.New("symbol not found")
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrDataNotFound     = errors.New("data not found")
	ErrDatabaseError    = errors.New("database error")
	ErrInputValidation  = errors.New("input validation failed")
)

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// StrategyError reports a strategy that cannot be constructed from the supplied legs.
type StrategyError struct {
	Strategy string
	Field    string
	Value    float64
	Message  string
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy error [%s] %s=%.4f: %s", e.Strategy, e.Field, e.Value, e.Message)
}

func (e *StrategyError) Unwrap() error {
	return ErrInvalidStrategy
}

// NewStrategyError creates a new StrategyError.
func NewStrategyError(strategy, field string, value float64, message string) *StrategyError {
	return &StrategyError{
		Strategy: strategy,
		Field:    field,
		Value:    value,
		Message:  message,
	}
}

// HedgeError represents a hedge proposal that failed validation.
type HedgeError struct {
	Kind   string
	Reason string
}

func (e *HedgeError) Error() string {
	return fmt.Sprintf("hedge error [%s]: %s", e.Kind, e.Reason)
}

func (e *HedgeError) Unwrap() error {
	return ErrInvalidHedge
}

// NewHedgeError creates a new HedgeError.
func NewHedgeError(kind, reason string) *HedgeError {
	return &HedgeError{Kind: kind, Reason: reason}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// RiskError represents a risk limit breach.
type RiskError struct {
	Rule    string
	Current float64
	Limit   float64
	Message string
}

func (e *RiskError) Error() string {
	return fmt.Sprintf("risk violation [%s]: %s (current: %.2f, limit: %.2f)", e.Rule, e.Message, e.Current, e.Limit)
}

func (e *RiskError) Unwrap() error {
	return ErrRiskLimit
}

// NewRiskError creates a new RiskError.
func NewRiskError(rule string, current, limit float64, message string) *RiskError {
	return &RiskError{
		Rule:    rule,
		Current: current,
		Limit:   limit,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
