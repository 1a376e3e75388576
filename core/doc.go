// Package core contains the shared domain types of the Parley runtime:
// conversation messages with roles and finish reasons, tool call descriptors,
// token usage accounting, the Session key identifying one client connection,
// the Emitter output sink implemented by transports, and the sentinel errors
// used across package boundaries.
//
// Higher level packages (agent, workflow, session) depend on core; core
// depends on nothing inside the module. Keeping the contracts here prevents
// dependency cycles between the engine and its collaborators.
package core
