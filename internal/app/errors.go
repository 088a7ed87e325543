package app

import "fmt"

// DomainError carries an HTTP status and a stable machine-readable code
// alongside the user-facing message. mapError unwraps it at the transport
// boundary; everything else propagates plain errors.
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

// validationError rejects a malformed entity payload with 422.
func validationError(message string) *DomainError {
	return domainError(422, "VALIDATION_ERROR", message, nil)
}
