package wire

import (
	"encoding/json"
	"fmt"

	"github.com/parley-ai/parley/core"
)

// Inbound message type discriminators. Values are part of the client protocol
// and must not change.
const (
	TypeWorkflowNew          = "workflow.new"
	TypeWorkflowExisting     = "workflow.existing"
	TypeWorkflowClose        = "workflow.close"
	TypeWorkflowCancelStream = "workflow.cancel_stream"
)

// Command is the closed set of structured system commands a client can issue.
// Concrete command types implement the unexported isCommand marker.
type Command interface{ isCommand() }

// NewWorkflow requests creation of a fresh workflow on the session.
type NewWorkflow struct {
	AgentID      string `json:"agentId,omitempty"`
	WorkflowType string `json:"workflowType,omitempty"`
}

func (NewWorkflow) isCommand() {}

// LoadWorkflow requests opening an existing persisted workflow.
type LoadWorkflow struct {
	WorkflowID string `json:"workflowId"`
}

func (LoadWorkflow) isCommand() {}

// CloseWorkflow requests closing the session's open workflow.
type CloseWorkflow struct{}

func (CloseWorkflow) isCommand() {}

// CancelStream requests cancellation of the active stream without closing the
// workflow.
type CancelStream struct{}

func (CancelStream) isCommand() {}

// Input is free-form turn input: anything that does not parse as a system
// command. At least one of Text / Attachments must be non-empty.
type Input struct {
	Text        string            `json:"text,omitempty"`
	Attachments []core.Attachment `json:"attachments,omitempty"`
}

// Validate enforces the at-least-one-of constraint on turn input.
func (in *Input) Validate() error {
	if in.Text == "" && len(in.Attachments) == 0 {
		return core.ErrEmptyInput
	}
	return nil
}

// envelope peeks at the discriminator without committing to a payload shape.
type envelope struct {
	Type string `json:"type"`
}

// DecodeInbound parses one raw client payload. It returns either a Command or
// an *Input. Payloads carrying an unknown "type" are treated as free-form
// input, preserving forward compatibility for clients that tag their turn
// messages.
func DecodeInbound(raw []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed payload: %w", err)
	}

	switch env.Type {
	case TypeWorkflowNew:
		var cmd NewWorkflow
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return nil, fmt.Errorf("malformed %s command: %w", env.Type, err)
		}
		return cmd, nil
	case TypeWorkflowExisting:
		var cmd LoadWorkflow
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return nil, fmt.Errorf("malformed %s command: %w", env.Type, err)
		}
		if cmd.WorkflowID == "" {
			return nil, fmt.Errorf("%s command requires workflowId", env.Type)
		}
		return cmd, nil
	case TypeWorkflowClose:
		return CloseWorkflow{}, nil
	case TypeWorkflowCancelStream:
		return CancelStream{}, nil
	}

	var in Input
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("malformed input payload: %w", err)
	}
	return &in, nil
}
