// Package store persists chats and their message history. ChatStore is the
// persistence contract used by the workflow layer; InMemoryStore backs tests
// and ephemeral deployments, SQLiteStore backs durable ones.
package store
