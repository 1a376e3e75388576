// Package workflow wraps one conversation in a lifecycle: it enforces the
// single-in-flight-turn invariant, reconciles the turn buffer before commit,
// drives persistence and title generation, and maps turn failures to
// user-safe error events. A Factory builds workflows fresh or from persisted
// state.
package workflow
