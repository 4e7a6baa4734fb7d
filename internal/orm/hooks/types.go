// Package hooks runs the extension points fired after a revision write.
package hooks

import (
	"github.com/conduit-lang/revstore/internal/orm/schema"
)

// Type identifies the revision write a hook listens to
type Type int

const (
	OnCreate Type = iota
	OnUpdate
	OnDelete
)

// String returns the hook type name
func (t Type) String() string {
	switch t {
	case OnCreate:
		return "onCreate"
	case OnUpdate:
		return "onUpdate"
	case OnDelete:
		return "onDelete"
	default:
		return "unknown"
	}
}

// Payload describes one revision write. Records are the
// bodies that were written, stamped with editDate and editCommitId.
type Payload struct {
	Type     Type
	CommitID int64
	Meta     schema.RevisionMetadata
	Records  []map[string]any
}

// IDs returns the ids present in Records. Create payloads usually have none.
func (p *Payload) IDs() []int64 {
	ids := make([]int64, 0, len(p.Records))
	for _, r := range p.Records {
		if id, ok := schema.AsInt64(r[schema.FieldID]); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// HookFunc is a hook body. Returning an error fails the write operation
// after the revision rows have been inserted.
type HookFunc func(ctx *Context, payload *Payload) error

// Hook is a registered extension point
type Hook struct {
	Type  Type
	Fn    HookFunc
	Async bool // run on the async queue after the operation returns
}

// Registry holds the hooks of one model
type Registry struct {
	hooks map[Type][]*Hook
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		hooks: make(map[Type][]*Hook),
	}
}

// Register adds a hook
func (r *Registry) Register(hookType Type, hook *Hook) {
	hook.Type = hookType
	r.hooks[hookType] = append(r.hooks[hookType], hook)
}

// GetHooks returns the hooks registered for hookType, in registration order
func (r *Registry) GetHooks(hookType Type) []*Hook {
	return r.hooks[hookType]
}

// HasHooks reports whether any hook is registered for hookType
func (r *Registry) HasHooks(hookType Type) bool {
	return len(r.hooks[hookType]) > 0
}
