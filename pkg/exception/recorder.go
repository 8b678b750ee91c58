package exception

import "github.com/yanun0323/errors"

// Error categories surfaced by the recorder. Only ErrMalformedEvent aborts the
// processing of the event that produced it.
var (
	ErrMalformedEvent   = errors.New("recorder: malformed event")
	ErrReconcileAnomaly = errors.New("recorder: reconciliation anomaly")
	ErrExtensionFailure = errors.New("recorder: extension failure")
	ErrMisconfiguration = errors.New("recorder: misconfiguration")
)

// General errors
var (
	ErrNilInstance     = errors.New("nil instance")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Bus errors
var (
	ErrQueueFull    = errors.New("bus: event queue full")
	ErrQueueClosed  = errors.New("bus: event queue closed")
	ErrNilHandler   = errors.New("bus: nil handler")
	ErrUnknownTopic = errors.New("bus: unknown topic")
)

// Extension errors
var (
	ErrDuplicateExtension = errors.New("extension: name already registered")
	ErrEmptyExtensionName = errors.New("extension: empty name")
	ErrExtensionPanic     = errors.New("extension: panic")
)
