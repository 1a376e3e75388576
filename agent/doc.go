// Package agent implements the streaming/completion engine: the state machine
// that turns one user input into zero or more tool-call round trips and a
// final assistant message.
//
// Each turn owns a transient Buffer. The engine builds every model call as
// system context + history snapshot + (enriched) user message + buffer,
// consumes incremental output, merges tool-call fragments by call index,
// executes tools through the registry (converting failures into error-text
// results the model can recover from) and recurses until the model stops
// requesting tools or the attempt cap is reached.
//
// Cancellation is cooperative and deterministic: partial text accumulated
// before cancellation survives as a ManualStop assistant message, while a
// partial tool call is discarded entirely — it must never be treated as a
// final answer.
package agent
