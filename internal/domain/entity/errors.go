package entity

import "errors"

// Failure kinds. Adapters and the job processor wrap these with %w so callers
// can classify a failure with errors.Is.
var (
	ErrConfig           = errors.New("config error")
	ErrLease            = errors.New("lease error")
	ErrDownload         = errors.New("download error")
	ErrDecode           = errors.New("decode error")
	ErrInference        = errors.New("inference error")
	ErrProtection       = errors.New("protection control error")
	ErrPublish          = errors.New("publish error")
	ErrMalformedMessage = errors.New("malformed message")
)
