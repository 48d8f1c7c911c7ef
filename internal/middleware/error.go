package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"jam3a/internal/domain"

	"go.uber.org/zap"
)

// ErrorResponse represents a structured error response
type ErrorResponse struct {
	Success   bool                   `json:"success"`
	Code      domain.ErrorCode       `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// DataResponse wraps a successful payload
type DataResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

// PageResponse wraps one page of a listing
type PageResponse struct {
	Success  bool        `json:"success"`
	Data     interface{} `json:"data"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// RespondWithError sends a structured error response
func RespondWithError(w http.ResponseWriter, code domain.ErrorCode, message string) {
	RespondWithErrorDetails(w, code, message, nil)
}

// RespondWithErrorDetails sends a structured error response with additional details
func RespondWithErrorDetails(w http.ResponseWriter, code domain.ErrorCode, message string, details map[string]interface{}) {
	RespondWithJSON(w, code.HTTPStatus(), ErrorResponse{
		Success:   false,
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// RespondWithDomainError maps err onto its code and status. Errors without
// a code are logged and reported as SERVER_ERROR without their text.
func RespondWithDomainError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	var de *domain.Error
	if errors.As(err, &de) {
		RespondWithError(w, de.Code, de.Message)
		return
	}

	logger.Error("Request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	RespondWithError(w, domain.CodeServerError, "internal server error")
}

// RespondWithValidationErrors sends validation error response
func RespondWithValidationErrors(w http.ResponseWriter, errors []ValidationError) {
	details := map[string]interface{}{
		"validation_errors": errors,
	}
	RespondWithErrorDetails(w, domain.CodeValidation, "validation failed", details)
}

// ErrorHandlingMiddleware catches panics and converts them to 500 errors
func ErrorHandlingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("Panic recovered",
						zap.Any("error", err),
						zap.String("path", r.URL.Path),
						zap.String("method", r.Method),
					)

					RespondWithError(w, domain.CodeServerError, "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// RespondWithJSON sends a JSON response
func RespondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// RespondWithData sends a success envelope
func RespondWithData(w http.ResponseWriter, statusCode int, data interface{}) {
	RespondWithJSON(w, statusCode, DataResponse{Success: true, Data: data})
}

// RespondWithPage sends a success envelope with pagination metadata
func RespondWithPage(w http.ResponseWriter, data interface{}, total, page, pageSize int) {
	RespondWithJSON(w, http.StatusOK, PageResponse{
		Success:  true,
		Data:     data,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}
