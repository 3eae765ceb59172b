package orders

import "errors"

// Guard failures surfaced by the engine and service. Handlers translate
// these to 4xx responses; ErrUnauthorized is merged with ErrNotFound at
// the HTTP edge so callers cannot probe for order existence.
var (
	ErrNotFound             = errors.New("order not found")
	ErrUnauthorized         = errors.New("not a party to this order")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrAlreadyTerminal      = errors.New("order is already in a terminal state")
	ErrDisputeInProgress    = errors.New("order is disputed; use dispute resolution")
	ErrDisputeAlreadyOpen   = errors.New("a dispute is already open on this order")
	ErrRevisionLimit        = errors.New("revision limit exceeded")
	ErrInvalidOutcome       = errors.New("invalid dispute outcome")
	ErrNotInDisputedState   = errors.New("order is not in disputed state")
	ErrInvalidFulfiller     = errors.New("assignee must be a creator or admin")
	ErrPackageUnavailable   = errors.New("service package is not available")
	ErrPackageNotFound      = errors.New("service package not found")
	ErrTemplateNotFound     = errors.New("template not found")
	ErrNoFulfillerAvailable = errors.New("no fulfiller available for generic requests")
	ErrConflict             = errors.New("order was modified concurrently, retry")
	ErrAlreadyPaid          = errors.New("order is already paid")
)
