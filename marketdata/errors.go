package marketdata

import "fmt"

// NotAvailableError is a 4xx answer for an instrument the provider does not serve.
// It is a valid response, distinct from a transport failure.
type NotAvailableError struct {
	Code       string
	StatusCode int
}

// Error implements the error interface
func (e *NotAvailableError) Error() string {
	return fmt.Sprintf("instrument %s not available upstream (status %d)", e.Code, e.StatusCode)
}

// DataError is a malformed or error-bearing payload.
type DataError struct {
	Code    string
	Message string
}

// Error implements the error interface
func (e *DataError) Error() string {
	return fmt.Sprintf("bad payload for %s: %s", e.Code, e.Message)
}
