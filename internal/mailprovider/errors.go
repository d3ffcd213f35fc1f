package mailprovider

import (
	"errors"
	"net/http"

	"github.com/ashureev/mailpilot/internal/shared"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// nonCircuitError carries client errors through the breaker without counting
// them as failures.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

func (e *nonCircuitError) Unwrap() error {
	return e.err
}

// tripsBreaker reports whether err indicates the API itself is unhealthy.
func tripsBreaker(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return false
		}
	}
	var retrieveErr *oauth2.RetrieveError
	return !errors.As(err, &retrieveErr)
}

// classify maps provider failures onto the shared error kinds. Rejected or
// revoked credentials require a new sign-in.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return shared.AuthRequired(op, err)
		case http.StatusNotFound:
			return shared.E(shared.KindNotFound, op, "not found", err)
		}
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return shared.AuthRequired(op, err)
	}
	return shared.Provider(op, err)
}
