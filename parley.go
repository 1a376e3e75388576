// Package parley is a real-time conversational-agent runtime for Go.
//
// Parley multiplexes many persistent client connections onto independent
// conversation workflows. Each inbound user turn drives a recursive
// model/tool-call loop against a language-model provider, streams partial
// output back to the caller and commits the reconciled result to bounded
// conversation history and persistent storage once the turn settles.
//
// The building blocks are organized as small focused packages:
//
//   - core:      shared domain types (messages, finish reasons, sessions, the Emitter sink)
//   - wire:      inbound command / outbound event frames exchanged with clients
//   - model:     the language-model provider contract plus OpenAI / Anthropic adapters
//   - history:   bounded conversation history policies (count- and token-based)
//   - tool:      function calling with schema-validated arguments
//   - agent:     the streaming/completion engine running the tool-call loop
//   - workflow:  per-conversation lifecycle, single-flight execution, persistence commit
//   - session:   the session/workflow registry fanning out system events
//   - store:     chat persistence (in-memory and SQLite backends)
//   - transport: websocket transport binding connections to sessions
package parley

// Version is the current version of the Parley runtime.
const Version = "0.1.0"
