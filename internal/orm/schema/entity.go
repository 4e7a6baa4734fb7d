package schema

import (
	"fmt"
)

// Entity is one hydrated row. Jointure holds associated entities attached by
// query includes and is never persisted.
type Entity struct {
	Model    *Model
	Values   map[string]any
	Jointure map[string]any
}

// NewEntity creates an empty entity of model m
func NewEntity(m *Model) *Entity {
	return &Entity{
		Model:    m,
		Values:   make(map[string]any, len(m.Fields)),
		Jointure: make(map[string]any),
	}
}

// EntityFromRow deserializes the columns "<prefix>.<field>" of row into a new entity
func (m *Model) EntityFromRow(row map[string]any, prefix string) (*Entity, error) {
	e := NewEntity(m)
	for _, f := range m.Fields {
		v, err := f.Deserialize(row[prefix+"."+f.Name])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", m.Name, f.Name, err)
		}
		e.Values[f.Name] = v
	}
	return e, nil
}

// ID returns the entity id, or 0 when unset
func (e *Entity) ID() int64 {
	id, _ := AsInt64(e.Values[FieldID])
	return id
}

// EditCommitID returns the commit id of the last revision
func (e *Entity) EditCommitID() int64 {
	id, _ := AsInt64(e.Values[FieldEditCommitID])
	return id
}

// EditDate returns the last revision date in epoch milliseconds
func (e *Entity) EditDate() int64 {
	ms, _ := AsInt64(e.Values[FieldEditDate])
	if ms == 0 {
		if f, ok := AsFloat64(e.Values[FieldEditDate]); ok {
			return int64(f)
		}
	}
	return ms
}

// Get returns a field value
func (e *Entity) Get(name string) any {
	return e.Values[name]
}

// Set assigns a field value
func (e *Entity) Set(name string, value any) {
	e.Values[name] = value
}

// Join returns the associated entity attached under name
func (e *Entity) Join(name string) (*Entity, bool) {
	sub, ok := e.Jointure[name].(*Entity)
	return sub, ok
}

// Only copies the listed fields. Absent fields are copied as nil.
func (e *Entity) Only(fields ...string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, name := range fields {
		out[name] = e.Values[name]
	}
	return out
}

// Except copies every field but the listed ones. Jointure is never included.
func (e *Entity) Except(fields ...string) map[string]any {
	skip := make(map[string]bool, len(fields))
	for _, name := range fields {
		skip[name] = true
	}
	out := make(map[string]any, len(e.Values))
	for name, v := range e.Values {
		if !skip[name] {
			out[name] = v
		}
	}
	return out
}

// Map copies every field value
func (e *Entity) Map() map[string]any {
	return e.Except()
}
