package app

import (
	"fmt"
	"net/http"
)

// DomainError is the structured failure every operation returns across the
// HTTP boundary. Details is optional diagnostic payload; for gateway
// failures it carries the failure kind and operator suggestion, shown to
// admins only.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func errUnauthenticated(message string) *DomainError {
	if message == "" {
		message = "authentication required"
	}
	return domainError(http.StatusUnauthorized, "UNAUTHENTICATED", message, nil)
}

func errForbidden(message string) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", message, nil)
}

func errInvalidArgument(message string, details any) *DomainError {
	return domainError(http.StatusBadRequest, "INVALID_ARGUMENT", message, details)
}

func errInvalidState(message string) *DomainError {
	return domainError(http.StatusBadRequest, "INVALID_STATE", message, nil)
}

func errNotFound(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func errConflict(message string) *DomainError {
	return domainError(http.StatusConflict, "CONFLICT", message, nil)
}

func errGatewayFailure(message string, details any) *DomainError {
	return domainError(http.StatusBadGateway, "GATEWAY_FAILURE", message, details)
}
