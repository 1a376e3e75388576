// Package session is the connection-facing registry: it maps live sessions
// to their open Workflow and broadcast emitter, dispatches inbound client
// payloads, and evicts workflows when their agent is deactivated. State is
// sharded by session hash so unrelated connections never share a lock.
package session
