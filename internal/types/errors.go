package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for qengine operations.
var (
	// ErrUnknownType indicates a type expression names no known DataType.
	ErrUnknownType = errors.New("unknown data type")

	// ErrMalformedType indicates a type expression has broken bracket syntax.
	ErrMalformedType = errors.New("malformed type expression")

	// ErrCoercionFailed indicates a value could not be coerced to a DataType.
	ErrCoercionFailed = errors.New("type coercion failed")

	// ErrDivideByZero indicates a Divide fold met a zero denominator.
	ErrDivideByZero = errors.New("division by zero")

	// ErrIncompatibleTypes indicates two DataTypes cannot be compared.
	ErrIncompatibleTypes = errors.New("incompatible data types")

	// ErrNotStruct indicates a schema was requested for a non-struct type.
	ErrNotStruct = errors.New("type is not a struct")

	// ErrUnsupportedKey indicates a map field whose key type is not a basic DataType.
	ErrUnsupportedKey = errors.New("map key type is not a basic data type")

	// ErrFieldNotFound indicates a field path could not be resolved against a schema.
	ErrFieldNotFound = errors.New("field not found")

	// ErrMalformedPath indicates a path segment does not follow the path grammar.
	ErrMalformedPath = errors.New("malformed field path")

	// ErrPathTooDeep indicates a field path exceeds MaxPathDepth.
	ErrPathTooDeep = errors.New("field path exceeds maximum depth")

	// ErrContainerNotIndexed indicates a list or map field used mid-path without an index.
	ErrContainerNotIndexed = errors.New("container field must be indexed before descending")

	// ErrNotIndexable indicates an index applied to a field that is not a list, set or map.
	ErrNotIndexable = errors.New("field is not indexable")

	// ErrNotAssignable indicates a write through a path that cannot be set.
	ErrNotAssignable = errors.New("field is not assignable")

	// ErrMissingOperand indicates a condition node has an absent child or operand.
	ErrMissingOperand = errors.New("missing operand")

	// ErrInvalidOperator indicates an unknown operator or one used with the wrong operand shape.
	ErrInvalidOperator = errors.New("invalid operator")

	// ErrUnknownOperand indicates an operand string with an unknown keyword.
	ErrUnknownOperand = errors.New("unknown operand keyword")

	// ErrParameterNotFound indicates a Parameter operand has no supplied value.
	ErrParameterNotFound = errors.New("parameter not found")

	// ErrReferenceNotFound indicates a reference list name is not registered.
	ErrReferenceNotFound = errors.New("reference list not found")

	// ErrValueAbsent indicates an operand resolved to no value under a fail policy.
	ErrValueAbsent = errors.New("operand value absent")

	// ErrAmbiguousValue indicates a collection operand used where one value is required.
	ErrAmbiguousValue = errors.New("operand resolved to more than one value")

	// ErrTypeMismatch indicates an instance whose type differs from the query type.
	ErrTypeMismatch = errors.New("instance type does not match query type")

	// ErrUnknownQueryType indicates a definition names an unregistered type.
	ErrUnknownQueryType = errors.New("query type not registered")

	// ErrTreeTooDeep indicates a condition tree exceeds MaxTreeDepth.
	ErrTreeTooDeep = errors.New("condition tree exceeds maximum depth")

	// ErrTooManyValues indicates a constant collection exceeds MaxCollectionValues.
	ErrTooManyValues = errors.New("constant collection has too many values")

	// ErrConnectionNotFound indicates no loader is registered for a connection name and kind.
	ErrConnectionNotFound = errors.New("data store connection not found")

	// ErrUnknownConnectionKind indicates a connection kind with no loader implementation.
	ErrUnknownConnectionKind = errors.New("unknown connection kind")

	// ErrLoaderClosed indicates a read on a closed loader.
	ErrLoaderClosed = errors.New("loader is closed")
)

// ValidationError reports a structural problem found before any value is resolved.
type ValidationError struct {
	Node    string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	msg := "validation failed"
	if e.Node != "" {
		msg += " at " + e.Node
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// EvaluationError wraps any failure raised while resolving or comparing values.
type EvaluationError struct {
	Message string
	Err     error
}

func (e *EvaluationError) Error() string {
	if e.Err == nil {
		return "evaluation failed: " + e.Message
	}
	if e.Message == "" {
		return "evaluation failed: " + e.Err.Error()
	}
	return fmt.Sprintf("evaluation failed: %s: %v", e.Message, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports a collaborator set up incorrectly, such as an unknown connection.
type ConfigurationError struct {
	Component string
	Message   string
	Err       error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Component != "" {
		msg += " in " + e.Component
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewValidationError builds a ValidationError for the named node.
func NewValidationError(node string, err error, format string, args ...any) *ValidationError {
	return &ValidationError{Node: node, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewEvaluationError wraps err as an EvaluationError. Validation and evaluation
// errors are returned unchanged; a ConfigurationError stays reachable through Unwrap.
func NewEvaluationError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if IsValidation(err) || IsEvaluation(err) {
		return err
	}
	return &EvaluationError{Message: fmt.Sprintf(format, args...), Err: err}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsEvaluation reports whether err carries an EvaluationError.
func IsEvaluation(err error) bool {
	var ee *EvaluationError
	return errors.As(err, &ee)
}

// IsConfiguration reports whether err carries a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
