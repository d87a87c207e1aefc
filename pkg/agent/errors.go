package agent

import (
	"errors"
	"fmt"
)

var (
	ErrNoHost        = errors.New("agent host is empty")
	ErrRootKey       = errors.New("root key bootstrap failed")
	ErrMalformedBody = errors.New("malformed replica response")
	ErrBadProof      = errors.New("request proof is invalid")
)

// RejectError is a replica-side rejection of a query or call.
type RejectError struct {
	Code    uint64
	Message string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("replica rejected request (code %d): %s", e.Code, e.Message)
}

// HTTPError is a non-success HTTP status from the replica or a REST service.
type HTTPError struct {
	Status int
	Body   []byte
}

func (e *HTTPError) Error() string {
	body := string(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("http status %d: %s", e.Status, body)
}
