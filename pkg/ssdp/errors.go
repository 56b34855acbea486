package ssdp

import "errors"

// Input-validation errors: raised synchronously to the caller, never
// swallowed.
var (
	ErrNilDevice             = errors.New("ssdp: device must not be nil")
	ErrEmptyOSName           = errors.New("ssdp: osName must not be empty")
	ErrEmptyOSVersion        = errors.New("ssdp: osVersion must not be empty")
	ErrEmptySearchTarget     = errors.New("ssdp: search target must not be empty")
	ErrInvalidSearchWaitTime = errors.New("ssdp: waitTime must be 0 or greater than 1s")
)

// Lifecycle errors.
var (
	ErrDisposed = errors.New("ssdp: already disposed")
)

// Invariant-violation errors (device-tree misuse).
var (
	ErrAlreadyAttached = errors.New("ssdp: embedded device already attached to a root")
	ErrAttachToSelf    = errors.New("ssdp: device cannot be attached to itself")
)
