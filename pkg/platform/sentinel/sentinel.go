package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and broker layers return
// these (optionally wrapped) so services and the HTTP layer can translate them
// into responses without string matching.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entry does not exist in the store
// - ErrConflict: insert collided with an existing row
// - ErrInvalidInput: caller supplied an unusable filter or entry
// - ErrUnavailable: backing service (broker, database, cache) unreachable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnavailable  = errors.New("unavailable")
)
