// Package ws exposes the session registry over websocket connections. Each
// connection runs a read loop feeding the registry and a write loop that
// serializes outbound frames, with ping/pong keepalive.
package ws
