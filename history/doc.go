// Package history implements the bounded conversation history policies fed
// back into model calls: a count-bounded buffer dropping the oldest messages
// past a size threshold, and a token-bounded buffer that measures itself with
// a tokenizer and collapses into a single summarization message once a token
// budget is reached (falling back to truncation when summarization fails).
//
// History reflects only committed, successful exchanges: the engine appends
// the newest messages after the model call that produced them, never before.
package history
