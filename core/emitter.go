package core

// Emitter is the narrow output sink through which the engine sends structured
// messages back to one client connection. Implementations live in the
// transport layer; the engine never touches raw connections.
//
// Implementations must be safe for concurrent use: chunk emission from a
// streaming turn can interleave with registry broadcasts on the same
// connection.
type Emitter interface {
	// Emit sends one structured outbound message. The payload is one of the
	// wire outbound types; transports are responsible for framing.
	Emit(msg any) error

	// EmitError sends one structured error payload.
	EmitError(err error) error
}
