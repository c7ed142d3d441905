package jolteon

import "errors"

var (
	// ErrInvalidEvent indicates that an event does not satisfy protocol invariants.
	ErrInvalidEvent = errors.New("jolteon: invalid event")
	// ErrInvalidSubscription indicates that a subscription configuration is invalid.
	ErrInvalidSubscription = errors.New("jolteon: invalid subscription")
	// ErrSubscriptionClosed indicates that a subscription is no longer active.
	ErrSubscriptionClosed = errors.New("jolteon: subscription closed")
	// ErrEventDropped indicates a non-blocking backpressure drop.
	ErrEventDropped = errors.New("jolteon: event dropped due to backpressure")
	// ErrServiceAlreadyRegistered indicates duplicate service registration.
	ErrServiceAlreadyRegistered = errors.New("jolteon: service already registered")
	// ErrServiceNotFound indicates a service lookup miss.
	ErrServiceNotFound = errors.New("jolteon: service not found")
	// ErrModuleAlreadyRegistered indicates duplicate module registration.
	ErrModuleAlreadyRegistered = errors.New("jolteon: module already registered")
	// ErrDriverAlreadyRegistered indicates duplicate driver registration.
	ErrDriverAlreadyRegistered = errors.New("jolteon: driver already registered")
	// ErrStorageUnavailable indicates the storage backend is unreachable or
	// the connection pool is exhausted. Prefix resolution degrades to the
	// default prefix on this error; command handlers surface a generic failure.
	ErrStorageUnavailable = errors.New("jolteon: storage unavailable")
	// ErrMessageNotFound indicates an outbound operation targeted a message
	// that no longer exists. Retraction treats this as success.
	ErrMessageNotFound = errors.New("jolteon: message not found")
)
