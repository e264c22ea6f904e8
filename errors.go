package kvstore

import (
	"errors"

	"github.com/meshkv/kvstore/internal/kverrors"
)

// ErrorKind classifies a StoreError by how the caller is expected to
// react: TransientRPC and Overflow are self-healing, ProtocolViolation
// and Configuration indicate a caller or peer mistake, Fatal means the
// owning area's event loop has aborted.
type ErrorKind = kverrors.Kind

const (
	TransientRPC      = kverrors.TransientRPC
	ProtocolViolation = kverrors.ProtocolViolation
	Overflow          = kverrors.Overflow
	Configuration     = kverrors.Configuration
	Fatal             = kverrors.Fatal
)

// StoreError is the error type every exported KVStore method returns for
// failures internal to the store, alongside plain context errors from a
// canceled or expired ctx. Use errors.As to recover its Kind.
type StoreError = kverrors.Error

// ErrClosed is returned by any call made after Close.
var ErrClosed = errors.New("kvstore: store is closed")

// ErrUnknownArea is returned when an area name was not configured at
// construction time.
var ErrUnknownArea = errors.New("kvstore: unknown area")
