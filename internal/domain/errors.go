package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches sentinel domain errors by code and message so wrapped copies
// still satisfy errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Domain error codes
const (
	ErrCodeInvalidArgument    = "INVALID_ARGUMENT"
	ErrCodeUpstreamService    = "UPSTREAM_SERVICE_ERROR"
	ErrCodeResponseShape      = "RESPONSE_SHAPE_ERROR"
	ErrCodeMalformedResponse  = "MALFORMED_RESPONSE"
	ErrCodeEmbeddingFailure   = "EMBEDDING_FAILURE"
	ErrCodePersistenceFailure = "PERSISTENCE_FAILURE"
	ErrCodeRetrieval          = "RETRIEVAL_ERROR"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeAlreadyExists      = "ALREADY_EXISTS"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// Not found errors
var (
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
	ErrDraftNotFound    = NewDomainError(ErrCodeNotFound, "draft not found")
	ErrOwnerNotFound    = NewDomainError(ErrCodeNotFound, "owner not found")
	ErrAPIKeyNotFound   = NewDomainError(ErrCodeNotFound, "api key not found")
)

// Already exists errors
var (
	ErrOwnerAlreadyExists  = NewDomainError(ErrCodeAlreadyExists, "owner already exists")
	ErrAPIKeyAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "api key already exists")
)

// Authorization errors
var (
	ErrAPIKeyRevoked = NewDomainError(ErrCodeUnauthorized, "api key has been revoked")
	ErrInvalidAPIKey = NewDomainError(ErrCodeUnauthorized, "invalid api key")
)

// InvalidArgument builds a non-retryable caller input error.
func InvalidArgument(format string, args ...any) *DomainError {
	return NewDomainError(ErrCodeInvalidArgument, fmt.Sprintf(format, args...))
}

// HasCode reports whether any DomainError in err's chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		var de *DomainError
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// UpstreamError describes a failed call to the embedding, generation or
// search service.
type UpstreamError struct {
	Service string
	Status  int
	Body    string
	Timeout bool
	Err     error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s service timed out", e.Service)
	case e.Status > 0:
		body := e.Body
		if len(body) > 512 {
			body = body[:512] + "..."
		}
		return fmt.Sprintf("%s service returned %d: %s", e.Service, e.Status, body)
	case e.Err != nil:
		return fmt.Sprintf("%s service call failed: %v", e.Service, e.Err)
	default:
		return fmt.Sprintf("%s service call failed", e.Service)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure may succeed on retry: timeouts,
// network errors, 429 and 5xx.
func (e *UpstreamError) Transient() bool {
	if e.Timeout {
		return true
	}
	if e.Status == 0 {
		return true
	}
	return e.Status == 429 || e.Status >= 500
}

// NewUpstreamServiceError wraps an UpstreamError in the domain taxonomy.
func NewUpstreamServiceError(upstream *UpstreamError) *DomainError {
	return NewDomainErrorWithCause(ErrCodeUpstreamService, upstream.Service+" service failure", upstream)
}

// NewResponseShapeError reports an upstream contract violation.
func NewResponseShapeError(service, detail string) *DomainError {
	return NewDomainError(ErrCodeResponseShape, fmt.Sprintf("%s response shape mismatch: %s", service, detail))
}

// NewMalformedResponse reports an upstream response lacking required fields.
func NewMalformedResponse(service, detail string) *DomainError {
	return NewDomainError(ErrCodeMalformedResponse, fmt.Sprintf("%s returned a malformed response: %s", service, detail))
}

// IsRetryable reports whether err is a transient upstream failure. Shape
// and malformed-response errors are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if HasCode(err, ErrCodeResponseShape) || HasCode(err, ErrCodeMalformedResponse) || HasCode(err, ErrCodeInvalidArgument) {
		return false
	}
	var up *UpstreamError
	if errors.As(err, &up) {
		return up.Transient()
	}
	return false
}
