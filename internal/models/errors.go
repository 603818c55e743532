package models

import "errors"

var (
	ErrLabelArityMismatch  = errors.New("label arity mismatch")
	ErrInvalidName         = errors.New("invalid metric or label name")
	ErrInvalidLabelValue   = errors.New("label value is not valid UTF-8")
	ErrMalformedPayload    = errors.New("malformed upstream payload")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
