package domain

import (
	"encoding/json"
)

// Action is an action taken (or considered) against a tool: a name plus
// a free-form parameter mapping.
type Action struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

// ToolRef identifies the tool an action ran against. It is an immutable
// value owned by an external subsystem and is never persisted on its own.
type ToolRef struct {
	Module  string `json:"module"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// EnvState captures the observable environment around an action. Every
// field is optional; images are canonical string references (URL, path,
// or data URL) produced by imgref.Normalize.
type EnvState struct {
	Images      []string `json:"images,omitempty"`
	Coordinates []int    `json:"coordinates,omitempty"`
	Video       *string  `json:"video,omitempty"`
	Text        *string  `json:"text,omitempty"`
	Timestamp   *float64 `json:"timestamp,omitempty"`
}

// PromptRef is the opaque handle to the prompt/LLM-chat subsystem. A
// prompt is either referenced by id or, when it is itself a chat
// transcript, embedded whole as JSON. Exactly one of the two is set.
type PromptRef struct {
	ID      *string         `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (p *PromptRef) IsZero() bool {
	return p == nil || (p.ID == nil && len(p.Payload) == 0)
}
