package types

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when the caller hands zero bytes to the
	// upload pipeline.
	ErrEmptyInput = errors.New("sealbox: empty input")

	// ErrNotFound is returned by a store when no chunk exists under the
	// requested address. It is terminal; retries do not help.
	ErrNotFound = errors.New("sealbox: chunk not found")

	// ErrMalformedMap is returned when a serialized DataMap cannot be
	// decoded or fails structural validation.
	ErrMalformedMap = errors.New("sealbox: malformed data map")

	// ErrMapTooDeep is returned when resolving a DataMap exceeds the
	// recursion depth cap.
	ErrMapTooDeep = errors.New("sealbox: data map recursion too deep")

	// ErrAssemblyIntegrity is returned when the reassembled stream does not
	// match the checksum recorded in the DataMap. Any partial output already
	// emitted must be treated as untrusted.
	ErrAssemblyIntegrity = errors.New("sealbox: reassembled data failed checksum verification")
)

// EncryptionError wraps a cipher-library failure during sealing. It is fatal
// and aborts the upload.
type EncryptionError struct {
	Err error
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("sealbox: encryption failed: %v", e.Err)
}

func (e *EncryptionError) Unwrap() error {
	return e.Err
}

// CorruptChunkError reports that stored bytes do not match their address or
// fail authenticated decryption. It is distinct from ErrNotFound and is never
// silently accepted.
type CorruptChunkError struct {
	Address Hash
	Reason  string
}

func (e *CorruptChunkError) Error() string {
	return fmt.Sprintf("sealbox: corrupt chunk %s: %s", e.Address, e.Reason)
}

// TransientError marks a store failure as retryable (timeout, temporary
// unavailability). The network client retries these with backoff; everything
// else surfaces immediately.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("sealbox: transient store failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
