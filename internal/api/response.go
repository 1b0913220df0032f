package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cloo-solutions/draftdesk/internal/domain"
	"github.com/cloo-solutions/draftdesk/internal/telemetry"
)

// SuccessResponse wraps successful API responses
type SuccessResponse struct {
	Data interface{} `json:"data"`
}

// ErrorResponse represents an error API response
type ErrorResponse struct {
	Error string `json:"error"`
}

// PartialIngestResponse is returned when ingestion failed after the
// document row was created. DocumentID lets the caller inspect what was
// committed.
type PartialIngestResponse struct {
	Error      string `json:"error"`
	DocumentID string `json:"document_id"`
	Sections   int    `json:"sections"`
}

// JSON writes a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Success writes a successful JSON response
func Success(w http.ResponseWriter, status int, data interface{}) {
	JSON(w, status, SuccessResponse{Data: data})
}

// Error writes an error JSON response
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// DomainErrorToHTTP maps domain errors to HTTP status codes
func DomainErrorToHTTP(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		var upstream *domain.UpstreamError
		if errors.As(err, &upstream) {
			return upstreamStatus(upstream)
		}
		return http.StatusInternalServerError
	}

	switch domainErr.Code {
	case domain.ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case domain.ErrCodeUpstreamService:
		var upstream *domain.UpstreamError
		if errors.As(domainErr, &upstream) {
			return upstreamStatus(upstream)
		}
		return http.StatusBadGateway
	case domain.ErrCodeResponseShape, domain.ErrCodeMalformedResponse:
		return http.StatusBadGateway
	case domain.ErrCodeEmbeddingFailure:
		if domainErr.Err == nil {
			return http.StatusBadGateway
		}
		return DomainErrorToHTTP(domainErr.Err)
	case domain.ErrCodePersistenceFailure:
		return http.StatusInternalServerError
	case domain.ErrCodeRetrieval:
		return http.StatusUnprocessableEntity
	case domain.ErrCodeNotFound:
		return http.StatusNotFound
	case domain.ErrCodeAlreadyExists:
		return http.StatusConflict
	case domain.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case domain.ErrCodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func upstreamStatus(err *domain.UpstreamError) int {
	if err.Timeout {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// HandleError writes an appropriate error response based on the error type
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	status := DomainErrorToHTTP(err)
	if status >= http.StatusInternalServerError {
		telemetry.CaptureError(r.Context(), err)
	}
	Error(w, status, err.Error())
}

// HandlePartialIngest writes the error status for err with the id of the
// document that was created before the failure.
func HandlePartialIngest(w http.ResponseWriter, r *http.Request, err error, documentID string, sections int) {
	status := DomainErrorToHTTP(err)
	if status >= http.StatusInternalServerError {
		telemetry.CaptureError(r.Context(), err)
	}
	JSON(w, status, PartialIngestResponse{
		Error:      err.Error(),
		DocumentID: documentID,
		Sections:   sections,
	})
}
