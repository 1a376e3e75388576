// Package model defines the language-model provider contract consumed by the
// engine: a streaming completion delivering incremental content and tool-call
// fragments, and a non-streaming completion returning the whole message at
// once. Vendor adapters live in sub-packages (openai, anthropic) so the
// engine never branches per provider; MockModel supports scripted tests.
package model
