// Package tool defines the tool abstraction the engine calls into: the Tool
// interface, a schema-validating FunctionTool, and a Registry that executes
// model-issued tool calls and serializes their results.
package tool
