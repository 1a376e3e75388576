// Package wire defines the transport-agnostic message frames exchanged with
// clients: structured system commands and free-form turn input on the way in,
// stream chunks, terminal events and broadcasts on the way out.
//
// Every frame carries a "type" discriminator preserved verbatim for wire
// compatibility. DecodeInbound dispatches on it, falling back to free-form
// Input for anything that is not a known command.
package wire
