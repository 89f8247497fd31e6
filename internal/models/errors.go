package models

import "errors"

// Domain errors. Precondition violations are returned as these sentinels and
// matched with errors.Is; infrastructure failures wrap the underlying error
// instead.
var (
	// ErrClassificationUnavailable means the classifier call failed; no scan
	// record is created and the caller may retry.
	ErrClassificationUnavailable = errors.New("classification unavailable")

	// ErrInvalidDisposalChoice means the choice is not allowed for the item's
	// category, e.g. discard on hazardous.
	ErrInvalidDisposalChoice = errors.New("invalid disposal choice for category")

	// ErrInsufficientFunds means a debit would overdraw the account. The
	// operation aborts with no partial effect.
	ErrInsufficientFunds = errors.New("insufficient points")

	// ErrListingUnavailable means the listing is not active, typically because
	// a concurrent purchase won the sold transition.
	ErrListingUnavailable = errors.New("listing unavailable")

	// ErrNotOwnListing means a buyer attempted to purchase their own listing.
	ErrNotOwnListing = errors.New("cannot purchase own listing")

	// ErrStaleTransition means the attempted state change is no longer valid
	// for the record's current status.
	ErrStaleTransition = errors.New("stale state transition")

	// ErrNotOwner means the actor does not own the record it tried to mutate.
	ErrNotOwner = errors.New("record owned by another account")

	// ErrMigrationPartialFailure means a guest migration was interrupted; the
	// migration is safe to retry from any failure point.
	ErrMigrationPartialFailure = errors.New("guest migration incomplete")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
)
