package couch

import (
	"errors"
	"fmt"
	"net/http"
)

// RemoteError is a non-success HTTP response from the store. The body is
// kept as text; CouchDB error bodies are small JSON fragments.
type RemoteError struct {
	Status     int
	StatusText string
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("HTTP %d: %s - %s", e.Status, e.StatusText, e.Body)
}

// TransportError means the request could not be dispatched at all, or was
// cut off by the probe timeout. The connectivity prober classifies these
// into the online/offline signal.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsConflict reports whether err is a 409 from the store, i.e. the revision
// we wrote with is no longer current.
func IsConflict(err error) bool {
	return statusIs(err, http.StatusConflict)
}

// IsNotFound reports whether err is a 404 from the store.
func IsNotFound(err error) bool {
	return statusIs(err, http.StatusNotFound)
}

func statusIs(err error, status int) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Status == status
}
