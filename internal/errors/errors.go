// Package errors defines the application error type shared by services, the HTTP API
// and the bot, together with retry and circuit breaking helpers.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeValidation   = "E100"
	CodeUnauthorized = "E150"
	CodeForbidden    = "E151"
	CodeDatabase     = "E200"
	CodeExternalAPI  = "E300"
	CodeState        = "E400"
	CodeNotFound     = "E404"
	CodeRateLimit    = "E500"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// statusByCode is the HTTP status for each code; unknown codes are 500.
var statusByCode = map[string]int{
	CodeValidation:   http.StatusBadRequest,
	CodeState:        http.StatusBadRequest,
	CodeUnauthorized: http.StatusUnauthorized,
	CodeForbidden:    http.StatusForbidden,
	CodeNotFound:     http.StatusNotFound,
	CodeRateLimit:    http.StatusTooManyRequests,
	CodeExternalAPI:  http.StatusBadGateway,
	CodeDatabase:     http.StatusInternalServerError,
}

// AppError is an error with a stable code, a text safe to show to users and
// hints for logging and retries. Message is for logs only.
type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func NewValidationError(msg string) *AppError {
	return &AppError{Code: CodeValidation, Message: msg, UserMessage: msg, Severity: SeverityLow}
}

// NewDatabaseError hides cause from the user; it is retryable since most storage
// failures are dropped connections or lock timeouts.
func NewDatabaseError(cause error) *AppError {
	msg := "database error"
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return &AppError{
		Code:        CodeDatabase,
		Message:     msg,
		UserMessage: GenericUserMessage,
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

func NewExternalAPIError(apiName string, cause error) *AppError {
	return &AppError{
		Code:        CodeExternalAPI,
		Message:     fmt.Sprintf("%s api error: %v", apiName, cause),
		UserMessage: "Сервис временно недоступен",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

// NewStateError rejects an operation the current state does not allow, with a generic user text.
func NewStateError(msg string) *AppError {
	return &AppError{Code: CodeState, Message: msg, UserMessage: "Операция невозможна в текущем состоянии", Severity: SeverityMedium}
}

// NewBusinessError is a rule rejection whose message is shown to the user as is,
// e.g. an empty cart or a balance shortfall.
func NewBusinessError(userMessage string) *AppError {
	return &AppError{Code: CodeState, Message: userMessage, UserMessage: userMessage, Severity: SeverityLow}
}

func NewRateLimitError(retryAfterSeconds int) *AppError {
	return &AppError{
		Code:        CodeRateLimit,
		Message:     fmt.Sprintf("rate limit exceeded, retry after %ds", retryAfterSeconds),
		UserMessage: fmt.Sprintf("Слишком много запросов. Попробуйте через %d секунд", retryAfterSeconds),
		Severity:    SeverityLow,
	}
}

func NewUnauthorizedError(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: msg, UserMessage: "Unauthorized", Severity: SeverityLow}
}

func NewForbiddenError(msg string) *AppError {
	return &AppError{Code: CodeForbidden, Message: msg, UserMessage: "Forbidden", Severity: SeverityMedium}
}

// NewNotFoundError reads "<what> not found" for both logs and users.
func NewNotFoundError(what string) *AppError {
	msg := what + " not found"
	return &AppError{Code: CodeNotFound, Message: msg, UserMessage: msg, Severity: SeverityLow}
}

// HTTPStatus maps err to the response status. Errors that are not AppErrors are 500.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		if status, ok := statusByCode[appErr.Code]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}

// IsCode reports whether err carries an AppError with the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr != nil && appErr.Code == code
}
