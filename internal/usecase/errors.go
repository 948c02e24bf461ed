package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

// エラーの種類。errors.Is で判定する。
var (
	ErrInvalidRequest        = errors.New("invalid request")
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrForbidden             = errors.New("forbidden")
	ErrNotFound              = errors.New("not found")
	ErrPersistence           = errors.New("persistence failure")
	ErrGatewayUnavailable    = errors.New("gateway unavailable")
	ErrGatewayRejected       = errors.New("gateway rejected")
	ErrUnsupportedBank       = errors.New("unsupported bank")
	ErrIncompleteBankDetails = errors.New("incomplete bank details")
	ErrInconsistentState     = errors.New("inconsistent state")
)

var statusByKind = map[error]int{
	ErrInvalidRequest:        http.StatusBadRequest,
	ErrUnauthenticated:       http.StatusUnauthorized,
	ErrForbidden:             http.StatusForbidden,
	ErrNotFound:              http.StatusNotFound,
	ErrPersistence:           http.StatusInternalServerError,
	ErrGatewayUnavailable:    http.StatusBadGateway,
	ErrGatewayRejected:       http.StatusBadRequest,
	ErrUnsupportedBank:       http.StatusBadRequest,
	ErrIncompleteBankDetails: http.StatusBadRequest,
	ErrInconsistentState:     http.StatusConflict,
}

type HTTPError struct {
	Status  int
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

// newError は種類からステータスを決める
func newError(kind error, message string) error {
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &HTTPError{Status: status, Message: message, Err: kind}
}

func dbError() error {
	return newError(ErrPersistence, "db error")
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}
