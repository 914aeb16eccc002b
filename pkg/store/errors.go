package store

import (
	"errors"

	"github.com/ssargent/recordvault/pkg/alloc"
	"github.com/ssargent/recordvault/pkg/codec"
	"github.com/ssargent/recordvault/pkg/policy"
)

// Kind maps an error to a stable code for callers outside the process
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrInsufficientCapacity):
		return "insufficient_capacity"
	case errors.Is(err, alloc.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, alloc.ErrLengthExceedsCapacity):
		return "length_exceeds_capacity"
	case errors.Is(err, policy.ErrGrowthRejected):
		return "growth_rejected"
	case errors.Is(err, codec.ErrMalformedRecord):
		return "malformed_record"
	case errors.Is(err, codec.ErrInvalidValue), errors.Is(err, ErrUnknownSequence):
		return "invalid_field"
	case errors.Is(err, ErrUnknownSchema):
		return "unknown_schema"
	case errors.Is(err, ErrClosed):
		return "closed"
	}
	return "internal"
}

// IsClientError reports whether err was caused by the request rather than the store
func IsClientError(err error) bool {
	switch Kind(err) {
	case "", "internal", "closed", "length_exceeds_capacity":
		return false
	}
	return true
}
