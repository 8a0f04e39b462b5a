package app

import "fmt"

// DomainError is an error that already knows its HTTP representation.
// mapError passes it through to the response envelope untouched, so
// validation failures (invalid dates, malformed month keys, empty uploads)
// reach the client with a stable machine-readable code.
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
