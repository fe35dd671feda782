package message

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedEnvelope = errors.New("message: malformed envelope")
	ErrSignatureInvalid  = errors.New("message: signature invalid")
	ErrHashMismatch      = errors.New("message: semantic hash mismatch")
	ErrUnknownPayload    = errors.New("message: unknown payload type")
)

// ErrorKind classifies a decode failure for callers that report it.
type ErrorKind string

const (
	KindMalformed ErrorKind = "malformed_envelope"
	KindSignature ErrorKind = "signature_invalid"
	KindIntegrity ErrorKind = "integrity"
	KindPayload   ErrorKind = "unknown_payload"
)

type DecodeError struct {
	Kind ErrorKind
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("message: decode %s: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func malformed(err error) error {
	return &DecodeError{Kind: KindMalformed, Err: fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)}
}
