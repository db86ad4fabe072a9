package chessdto

import "encoding/json"

// Envelope is the result of one dispatched command. Exactly one of Payload
// and Error is set.
type Envelope struct {
	Command string       `json:"command"`
	Success bool         `json:"success"`
	Payload any          `json:"payload,omitempty"`
	Error   *DomainError `json:"error,omitempty"`
}

// CommandRequest is a command name with its raw JSON arguments, as produced
// by a tool call or posted by a client.
type CommandRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}
