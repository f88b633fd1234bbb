package models

import (
	"errors"
	"fmt"
)

// FailureKind classifies a failed backend call
type FailureKind string

const (
	FailureNetwork FailureKind = "network"
	FailureService FailureKind = "service"
)

var (
	// ErrNetworkFailure matches any failure caused by lost connectivity or a timeout
	ErrNetworkFailure = errors.New("network failure")
	// ErrServiceFailure matches any failure reported by a reachable backend
	ErrServiceFailure = errors.New("service failure")
)

// FailureError is the structured error returned by report service clients
type FailureError struct {
	Kind FailureKind
	Op   string
	Err  error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("%s: %s failure: %v", e.Op, e.Kind, e.Err)
}

func (e *FailureError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match a FailureError against the kind sentinels
func (e *FailureError) Is(target error) bool {
	switch target {
	case ErrNetworkFailure:
		return e.Kind == FailureNetwork
	case ErrServiceFailure:
		return e.Kind == FailureService
	}
	return false
}

// NetworkFailure wraps err as a connectivity failure of op
func NetworkFailure(op string, err error) error {
	return &FailureError{Kind: FailureNetwork, Op: op, Err: err}
}

// ServiceFailure wraps err as a backend failure of op
func ServiceFailure(op string, err error) error {
	return &FailureError{Kind: FailureService, Op: op, Err: err}
}
