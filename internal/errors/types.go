// Package errors defines the storefront render error taxonomy and the
// mapping from error kinds to HTTP status classes.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind represents the category of a render failure.
type Kind string

const (
	KindStoreNotFound    Kind = "store_not_found"
	KindDomainReserved   Kind = "domain_reserved"
	KindStoreInactive    Kind = "store_inactive"
	KindTemplateNotFound Kind = "template_not_found"
	KindTemplateParse    Kind = "template_parse"
	KindUnknownFilter    Kind = "unknown_filter"
	KindContextBuild     Kind = "context_build"
	KindUpstreamTimeout  Kind = "upstream_timeout"
	KindRender           Kind = "render"
)

// Common error codes.
const (
	CodeStoreNotFound    = "STORE_NOT_FOUND"
	CodeDomainReserved   = "DOMAIN_RESERVED"
	CodeStoreInactive    = "STORE_NOT_ACTIVE"
	CodeTemplateNotFound = "TEMPLATE_NOT_FOUND"
	CodeTemplateParse    = "TEMPLATE_PARSE_ERROR"
	CodeUnknownFilter    = "UNKNOWN_FILTER"
	CodeEntityNotFound   = "ENTITY_NOT_FOUND"
	CodeDataUnavailable  = "DATA_UNAVAILABLE"
	CodeUpstreamTimeout  = "UPSTREAM_TIMEOUT"
	CodeRenderFailed     = "RENDER_ERROR"
)

// RenderError is a structured error with a kind, a stable code and context.
type RenderError struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
	Context map[string]interface{}
	// Status is the HTTP status the error maps to.
	Status int
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *RenderError) Unwrap() error {
	return e.Cause
}

// Is matches on kind, and on code when the target carries one.
func (e *RenderError) Is(target error) bool {
	var t *RenderError
	if !errors.As(target, &t) {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}

	return t.Code == "" || e.Code == t.Code
}

// WithContext adds context information to the error.
func (e *RenderError) WithContext(key string, value interface{}) *RenderError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// Sentinels for errors.Is comparisons. They match any error of the same kind.
var (
	ErrStoreNotFound    = &RenderError{Kind: KindStoreNotFound}
	ErrDomainReserved   = &RenderError{Kind: KindDomainReserved}
	ErrStoreInactive    = &RenderError{Kind: KindStoreInactive}
	ErrTemplateNotFound = &RenderError{Kind: KindTemplateNotFound}
	ErrTemplateParse    = &RenderError{Kind: KindTemplateParse}
	ErrUnknownFilter    = &RenderError{Kind: KindUnknownFilter}
	ErrContextBuild     = &RenderError{Kind: KindContextBuild}
	ErrEntityNotFound   = &RenderError{Kind: KindContextBuild, Code: CodeEntityNotFound}
	ErrUpstreamTimeout  = &RenderError{Kind: KindUpstreamTimeout}
	ErrRender           = &RenderError{Kind: KindRender}
)

// NewStoreNotFoundError reports that no store matches a domain.
func NewStoreNotFoundError(domain string) *RenderError {
	return &RenderError{
		Kind:    KindStoreNotFound,
		Code:    CodeStoreNotFound,
		Message: "no store found for domain: " + domain,
		Status:  http.StatusNotFound,
	}
}

// NewDomainReservedError reports a request for the platform's own domain.
func NewDomainReservedError(domain string) *RenderError {
	return &RenderError{
		Kind:    KindDomainReserved,
		Code:    CodeDomainReserved,
		Message: "domain is reserved by the platform: " + domain,
		Status:  http.StatusNotFound,
	}
}

// NewStoreInactiveError reports a store that exists but may not be served.
func NewStoreInactiveError(domain string) *RenderError {
	return &RenderError{
		Kind:    KindStoreInactive,
		Code:    CodeStoreInactive,
		Message: "store is not active for domain: " + domain,
		Status:  http.StatusPaymentRequired,
	}
}

// NewTemplateNotFoundError reports a missing theme file.
func NewTemplateNotFoundError(path string, cause error) *RenderError {
	return &RenderError{
		Kind:    KindTemplateNotFound,
		Code:    CodeTemplateNotFound,
		Message: "template not found: " + path,
		Cause:   cause,
		Status:  http.StatusNotFound,
	}
}

// NewTemplateParseError reports a theme file that could not be parsed or compiled.
func NewTemplateParseError(path string, cause error) *RenderError {
	return &RenderError{
		Kind:    KindTemplateParse,
		Code:    CodeTemplateParse,
		Message: "failed to parse template: " + path,
		Cause:   cause,
		Status:  http.StatusInternalServerError,
	}
}

// NewUnknownFilterError reports a filter name missing from the registry.
func NewUnknownFilterError(name string) *RenderError {
	return &RenderError{
		Kind:    KindUnknownFilter,
		Code:    CodeUnknownFilter,
		Message: "unknown filter: " + name,
		Status:  http.StatusInternalServerError,
	}
}

// NewEntityNotFoundError reports a page entity (product, collection...) that
// the page type requires but the data provider does not have.
func NewEntityNotFoundError(entity, ref string) *RenderError {
	return &RenderError{
		Kind:    KindContextBuild,
		Code:    CodeEntityNotFound,
		Message: fmt.Sprintf("%s not found: %s", entity, ref),
		Status:  http.StatusNotFound,
	}
}

// NewContextBuildError reports a data provider failure while building the
// rendering context.
func NewContextBuildError(message string, cause error) *RenderError {
	return &RenderError{
		Kind:    KindContextBuild,
		Code:    CodeDataUnavailable,
		Message: message,
		Cause:   cause,
		Status:  http.StatusInternalServerError,
	}
}

// NewUpstreamTimeoutError reports an external fetch that exceeded its deadline.
func NewUpstreamTimeoutError(operation string, cause error) *RenderError {
	return &RenderError{
		Kind:    KindUpstreamTimeout,
		Code:    CodeUpstreamTimeout,
		Message: "upstream timed out: " + operation,
		Cause:   cause,
		Status:  http.StatusInternalServerError,
	}
}

// NewRenderError reports a generic engine failure.
func NewRenderError(message string, cause error) *RenderError {
	return &RenderError{
		Kind:    KindRender,
		Code:    CodeRenderFailed,
		Message: message,
		Cause:   cause,
		Status:  http.StatusInternalServerError,
	}
}

// FromUpstream wraps a collaborator error. Deadline and cancellation errors
// become UpstreamTimeoutError; RenderErrors pass through; anything else is
// handed to fallback.
func FromUpstream(operation string, err error, fallback func(error) *RenderError) error {
	if err == nil {
		return nil
	}

	var re *RenderError
	if errors.As(err, &re) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewUpstreamTimeoutError(operation, err)
	}

	return fallback(err)
}

// StatusCode returns the HTTP status for an error. Errors outside the
// taxonomy are internal errors.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var re *RenderError
	if errors.As(err, &re) && re.Status != 0 {
		return re.Status
	}

	return http.StatusInternalServerError
}

// IsNotFound reports whether the error maps to a 404-class response.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// PublicMessage returns the generic message shown to storefront visitors.
// Internal detail never crosses this boundary.
func PublicMessage(status int) string {
	switch status {
	case http.StatusNotFound:
		return "The page you are looking for could not be found."
	case http.StatusPaymentRequired:
		return "This store is currently unavailable."
	default:
		return "Something went wrong while loading this page."
	}
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// ErrorHandler logs render failures at a level matching their class.
type ErrorHandler struct {
	logger Logger
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs an error. 404-class errors are warnings, everything else is an error.
func (h *ErrorHandler) Handle(ctx context.Context, err error, fields ...interface{}) {
	if err == nil || h.logger == nil {
		return
	}

	var re *RenderError
	if errors.As(err, &re) {
		fields = append(fields, "kind", re.Kind, "code", re.Code, "status", StatusCode(err))
		if StatusCode(err) < http.StatusInternalServerError {
			h.logger.Warn(ctx, err, "Render rejected", fields...)
			return
		}
		h.logger.Error(ctx, err, "Render failed", fields...)
		return
	}

	h.logger.Error(ctx, err, "Unhandled error occurred", fields...)
}
