package app

import "fmt"

// DomainError is a business-rule failure that already knows its HTTP shape:
// validation problems, forbidden status transitions, unconfigured adapters.
// mapError passes it through to the response as-is.
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
