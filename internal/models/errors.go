package models

import "errors"

var (
	ErrNotFound           = errors.New("transaction not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidState       = errors.New("operation not allowed in current transaction status")
	ErrDuplicateReference = errors.New("duplicate transaction reference")
	ErrTransientGateway   = errors.New("gateway temporarily unavailable")
	ErrPermanentGateway   = errors.New("gateway rejected the request")
	ErrNotRetryable       = errors.New("transaction is not eligible for retry")
	ErrRefundFailed       = errors.New("refund failed")
	ErrGatewayTimeout     = errors.New("gateway call timed out")
)
