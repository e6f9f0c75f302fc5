// errors.go - error surface of the annotation API. Every failure a
// handler returns is an *APIError carrying a stable machine code, and
// the Echo error handler converts anything else into one.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
)

// Machine-readable codes returned in the "code" field. Clients branch
// on these, so they are part of the API surface.
const (
	codeBadRequest         = "BAD_REQUEST"
	codeValidation         = "VALIDATION_ERROR"
	codeNotFound           = "NOT_FOUND"
	codeConflict           = "CONFLICT"
	codeInternal           = "INTERNAL_ERROR"
	codeServiceUnavailable = "SERVICE_UNAVAILABLE"
	codeRunNotReady        = "RUN_NOT_READY"
	codeRecordsDropped     = "RECORDS_DROPPED"
	codeUnsupportedFormat  = "UNSUPPORTED_FORMAT"
	codeLogUnreadable      = "LOG_UNREADABLE"
	codeWrongFileKind      = "WRONG_FILE_KIND"
)

// APIError is the JSON body of every failed request.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newAPIError(status int, code, message string, cause error) *APIError {
	e := &APIError{Status: status, Code: code, Message: message}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	return newAPIError(http.StatusBadRequest, codeBadRequest, message, cause)
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return newAPIError(http.StatusBadRequest, codeValidation,
		fmt.Sprintf("validation failed for field: %s", field), nil)
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return newAPIError(http.StatusNotFound, codeNotFound,
		fmt.Sprintf("%s not found: %s", resource, id), nil)
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(message string) *APIError {
	return newAPIError(http.StatusConflict, codeConflict, message, nil)
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	return newAPIError(http.StatusInternalServerError, codeInternal, message, cause)
}

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(message string) *APIError {
	return newAPIError(http.StatusServiceUnavailable, codeServiceUnavailable, message, nil)
}

// NewRunNotReadyError reports a run that exists but has not completed,
// so its results cannot be exported yet.
func NewRunNotReadyError(runID string) *APIError {
	return newAPIError(http.StatusConflict, codeRunNotReady,
		fmt.Sprintf("run %s has not completed", runID), nil)
}

// NewRecordsDroppedError reports that the flight records backing a run
// were released and the requested export can no longer be produced.
func NewRecordsDroppedError(runID string) *APIError {
	return newAPIError(http.StatusConflict, codeRecordsDropped,
		fmt.Sprintf("flight records for run %s were released", runID), nil)
}

// NewExportFormatError rejects an export format the API does not
// produce.
func NewExportFormatError(format string) *APIError {
	return newAPIError(http.StatusBadRequest, codeUnsupportedFormat,
		fmt.Sprintf("unsupported export format: %s", format), nil)
}

// NewLogUnreadableError reports a stored log whose decoded telemetry
// could not be read or summarized.
func NewLogUnreadableError(name string, cause error) *APIError {
	return newAPIError(http.StatusUnprocessableEntity, codeLogUnreadable,
		fmt.Sprintf("could not read telemetry from log %s", name), cause)
}

// NewWrongFileKindError rejects an operation on a stored file of the
// wrong kind, e.g. ingesting an image as a flight log.
func NewWrongFileKindError(id, want string) *APIError {
	return newAPIError(http.StatusBadRequest, codeWrongFileKind,
		fmt.Sprintf("file %s is not a %s", id, want), nil)
}

// ErrorHandler is installed as the Echo HTTPErrorHandler. It passes
// *APIError through, maps Echo's own errors, and hides the text of
// anything unexpected outside development.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &echoErr):
		apiErr = newAPIError(echoErr.Code, "HTTP_ERROR", fmt.Sprintf("%v", echoErr.Message), nil)
	default:
		apiErr = newAPIError(http.StatusInternalServerError, "UNKNOWN_ERROR",
			"An unexpected error occurred", nil)
		if isDevelopment() {
			apiErr.Details = err.Error()
		}
	}

	c.JSON(apiErr.Status, apiErr)
}

// isDevelopment returns true unless APP_ENV marks this a production deployment
func isDevelopment() bool {
	return os.Getenv("APP_ENV") != "production"
}

// RespondWithError writes an APIError without going through the error
// handler.
func RespondWithError(c echo.Context, err *APIError) error {
	return c.JSON(err.Status, err)
}
