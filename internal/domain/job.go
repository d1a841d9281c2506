package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultPriority is the priority coerced onto a job whose caller passed
// nil. Lower numbers run first; 1 is conventionally "highest".
const DefaultPriority int32 = 50

// Job is the persisted unit of work. It mirrors the rihanna_jobs row
// exactly: the store never adds fields the caller didn't ask for, and
// never hides columns behind derived state.
type Job struct {
	ID           int64
	Payload      Payload
	EnqueuedAt   time.Time
	DueAt        *time.Time
	FailedAt     *time.Time
	FailReason   *string
	Priority     int32
	InternalMeta InternalMeta
}

// InternalMeta carries bookkeeping the core owns. Attempts is incremented
// only by MarkRetried; every other terminal leaves it untouched.
type InternalMeta struct {
	Attempts int32 `json:"attempts"`
}

// EnqueueOptions configures a new job at insert time. A nil field takes
// the documented default; it is never an error to omit one.
type EnqueueOptions struct {
	// DueAt sets when the job becomes eligible for claim. Nil means
	// eligible immediately.
	DueAt *time.Time
	// Priority overrides DefaultPriority. Nil coerces to 50.
	Priority *int32
}

// ModuleCall is a (module, args) payload: the module name is looked up in
// a registry at dispatch time, args are the module's own argument shape.
type ModuleCall struct {
	Module string
	Args   json.RawMessage
}

// Payload is the tagged union a job's work is recorded as: exactly one of
// Module or Opaque is set. The core never interprets either variant; it
// only carries them to and from storage.
type Payload struct {
	Module *ModuleCall
	Opaque json.RawMessage
}

// NewModulePayload builds a Payload carrying a (module, args) pair. args is
// marshalled to JSON immediately so later mutation of the caller's value
// can't change what gets persisted.
func NewModulePayload(module string, args any) (Payload, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return Payload{}, fmt.Errorf("marshal module args: %w", err)
	}
	return Payload{Module: &ModuleCall{Module: module, Args: raw}}, nil
}

// NewOpaquePayload builds a Payload carrying an opaque term the core never
// looks inside.
func NewOpaquePayload(value any) (Payload, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return Payload{}, fmt.Errorf("marshal opaque payload: %w", err)
	}
	return Payload{Opaque: raw}, nil
}

type payloadWire struct {
	Kind   string          `json:"kind"`
	Module string          `json:"module,omitempty"`
	Args   json.RawMessage `json:"args,omitempty"`
	Value  json.RawMessage `json:"value,omitempty"`
}

// MarshalJSON encodes the discriminated-union wire shape the jsonb column
// stores: {"kind":"module",...} or {"kind":"opaque",...}.
func (p Payload) MarshalJSON() ([]byte, error) {
	switch {
	case p.Module != nil:
		return json.Marshal(payloadWire{Kind: "module", Module: p.Module.Module, Args: p.Module.Args})
	case p.Opaque != nil:
		return json.Marshal(payloadWire{Kind: "opaque", Value: p.Opaque})
	default:
		return json.Marshal(payloadWire{Kind: "opaque", Value: json.RawMessage("null")})
	}
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var wire payloadWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	switch wire.Kind {
	case "module":
		p.Module = &ModuleCall{Module: wire.Module, Args: wire.Args}
		p.Opaque = nil
	case "opaque":
		p.Opaque = wire.Value
		p.Module = nil
	default:
		return fmt.Errorf("unmarshal payload: unrecognized kind %q", wire.Kind)
	}
	return nil
}

// Now returns the current instant in UTC. All timestamps the store writes
// or compares against go through this so a process can't accidentally mix
// local and UTC clocks.
func Now() time.Time {
	return time.Now().UTC()
}

// DueIn returns a DueAt value d in the future, for callers building
// EnqueueOptions from a relative delay rather than an absolute timestamp.
func DueIn(d time.Duration) *time.Time {
	t := Now().Add(d)
	return &t
}
