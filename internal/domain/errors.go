package domain

import "errors"

// Sentinel errors for domain-level error handling. Worker loops use these
// to decide between acknowledging a message and leaving it for redelivery.
var (
	// ErrUnknownSymbol means a symbol has no configured reference price.
	// For the matching stage this is a configuration error: the message
	// must not be acknowledged, since there is no valid fill to emit.
	ErrUnknownSymbol = errors.New("unknown_symbol")
)
