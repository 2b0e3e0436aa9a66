package entitlement

import "errors"

var (
	// ErrEntitlementNotFound is returned when a user has no entitlement record
	ErrEntitlementNotFound = errors.New("entitlement not found")

	// ErrEventAlreadyRecorded is returned when a webhook event id was already stored
	ErrEventAlreadyRecorded = errors.New("event already recorded")

	// ErrInvalidEntitlement is returned for records without a user id
	ErrInvalidEntitlement = errors.New("invalid entitlement")

	// ErrInvalidEventID is returned for an empty webhook event id
	ErrInvalidEventID = errors.New("invalid event id")

	// ErrStorageUnavailable is returned when storage is unavailable
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrCircuitOpen is returned when the storage circuit breaker is open
	ErrCircuitOpen = errors.New("circuit breaker is open")
)
