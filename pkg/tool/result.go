package tool

import (
	"errors"
	"fmt"
)

// Category classifies a failed invocation so callers can decide whether to
// retry, escalate or abort.
type Category string

const (
	CategoryNotFound         Category = "NotFound"
	CategoryPermissionDenied Category = "PermissionDenied"
	CategoryValidation       Category = "ValidationError"
	CategoryTimeout          Category = "Timeout"
	CategoryExecution        Category = "ExecutionError"
	CategoryDeclined         Category = "Declined"
	CategoryCostExceeded     Category = "CostExceeded"
)

// Result is the outcome of a single invocation.
type Result struct {
	Success  bool           `json:"success"`
	Data     any            `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
	Category Category       `json:"category,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// OK builds a successful result carrying data.
func OK(data any) Result {
	return Result{
		Success:  true,
		Data:     data,
		Metadata: map[string]any{},
	}
}

// Fail builds a failed result of the given category.
func Fail(category Category, format string, args ...any) Result {
	return Result{
		Success:  false,
		Error:    fmt.Sprintf(format, args...),
		Category: category,
		Metadata: map[string]any{},
	}
}

// WithMeta sets a metadata key and returns the result for chaining.
func (r Result) WithMeta(key string, value any) Result {
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	r.Metadata[key] = value
	return r
}

// Error is an error tagged with a failure category. Tool bodies may return
// it instead of building a Result by hand.
type Error struct {
	Category Category
	Err      error
}

// NewError wraps err with a category.
func NewError(category Category, err error) *Error {
	return &Error{Category: category, Err: err}
}

// Errorf builds a categorized error from a format string.
func Errorf(category Category, format string, args ...any) *Error {
	return &Error{Category: category, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Category)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CategoryOf returns the category carried by err, or CategoryExecution when
// err is uncategorized.
func CategoryOf(err error) Category {
	var catErr *Error
	if errors.As(err, &catErr) {
		return catErr.Category
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return CategoryValidation
	}
	return CategoryExecution
}

// FromError converts an error into a failed result.
func FromError(err error) Result {
	return Fail(CategoryOf(err), "%s", err.Error()).
		WithMeta("error_type", ErrorType(err))
}

// ErrorType names the concrete type behind err, looking through *Error.
func ErrorType(err error) string {
	var catErr *Error
	if errors.As(err, &catErr) && catErr.Err != nil {
		return fmt.Sprintf("%T", catErr.Err)
	}
	return fmt.Sprintf("%T", err)
}
