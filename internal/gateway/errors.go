package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"payment-engine/internal/models"
	"payment-engine/pkg/common"
)

// Error is returned by every adapter call. It matches models.ErrTransientGateway
// or models.ErrPermanentGateway under errors.Is, as well as its cause.
type Error struct {
	Gateway    string
	Op         string
	Permanent  bool
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: %s failure (status %d): %v", e.Gateway, e.Op, kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %s failure: %v", e.Gateway, e.Op, kind, e.Err)
}

func (e *Error) Unwrap() []error {
	class := models.ErrTransientGateway
	if e.Permanent {
		class = models.ErrPermanentGateway
	}
	if e.Err == nil {
		return []error{class}
	}
	return []error{e.Err, class}
}

func transient(gateway, op string, err error) *Error {
	return &Error{Gateway: gateway, Op: op, Err: err}
}

func permanent(gateway, op string, err error) *Error {
	return &Error{Gateway: gateway, Op: op, Permanent: true, Err: err}
}

// fromResponse classifies a non-2xx gateway answer: 429 and 5xx are worth
// retrying, any other status is a rejection.
func fromResponse(gateway, op string, resp *common.HTTPResponse) *Error {
	msg := common.StringAt(resp.Body, "message")
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &Error{
		Gateway:    gateway,
		Op:         op,
		Permanent:  resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500,
		StatusCode: resp.StatusCode,
		Err:        errors.New(msg),
	}
}

// IsPermanent reports whether err is a gateway rejection that must not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, models.ErrPermanentGateway)
}
