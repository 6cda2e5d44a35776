// Package pocerrors registers the PoC Challenge Manager's surface-level
// error kinds (spec.md §7) under a cosmos-sdk error codespace, so they
// serialize the same way the chain itself reports module errors.
package pocerrors

import (
	errors "cosmossdk.io/errors"
)

const codespace = "poc_challenge_manager"

var (
	// ErrBlockNotFound — check_target was called with an empty block hash.
	// A non-empty hash is not looked up in the ledger, so an unknown one
	// surfaces as ErrInvalidOrExpiredPoc or ErrMismatchedBlockHash instead.
	ErrBlockNotFound = errors.Register(codespace, 1, "block not found")
	// ErrInvalidOrExpiredPoc — no LocalPoC exists for the given onion-key-hash.
	ErrInvalidOrExpiredPoc = errors.Register(codespace, 2, "invalid or expired poc")
	// ErrMismatchedBlockHash — the stored LocalPoC's block hash disagrees with
	// the one supplied to check_target.
	ErrMismatchedBlockHash = errors.Register(codespace, 3, "mismatched block hash")

	// ErrNoGatewaysFound — derivation exhausted its retry budget without
	// finding a non-empty candidate set.
	ErrNoGatewaysFound = errors.Register(codespace, 4, "no gateways found")
	// ErrEmptyHexList — derivation's hex/zone source returned no zones at all.
	ErrEmptyHexList = errors.Register(codespace, 5, "empty hex list")
	// ErrZoneWeightZero — the inverse-CDF zone draw landed on a zero-weight
	// entry and must resample.
	ErrZoneWeightZero = errors.Register(codespace, 6, "zone weight is zero")

	// ErrNotFound — internal Store sentinel; never surfaced past the Manager.
	ErrNotFound = errors.Register(codespace, 7, "not found")
)
