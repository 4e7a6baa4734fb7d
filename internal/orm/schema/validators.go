package schema

import (
	"github.com/conduit-lang/revstore/internal/orm/validation"
)

// CreateBodyValidator accepts exactly the create-body fields, checked against
// their deserialized shape. A nil id is tolerated.
func (m *Model) CreateBodyValidator() validation.Type {
	props := make([]validation.Prop, 0, len(m.Fields))
	for _, f := range m.CreateBodyFields() {
		props = append(props, validation.Prop{Key: f.Name, Type: f.DeserializedValidator})
	}
	return validation.Exact(props, FieldID)
}

// UpdateBodyValidator requires a numeric id and checks every present
// update-body field.
func (m *Model) UpdateBodyValidator() validation.Type {
	props := make([]validation.Prop, 0, len(m.Fields))
	for _, f := range m.UpdateBodyFields() {
		props = append(props, validation.Prop{Key: f.Name, Type: f.DeserializedValidator})
	}
	return validation.Intersection(
		validation.Object([]validation.Prop{{Key: FieldID, Type: validation.Number}}),
		validation.Partial(props),
	)
}

// SerializedValidator checks a raw row whose columns are aliased
// "<rowPrefix>.<field>", skipping the excluded fields.
func (m *Model) SerializedValidator(exclude ...string) *validation.ObjectType {
	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}

	prefix := m.RowPrefix()
	props := make([]validation.Prop, 0, len(m.Fields))
	for _, f := range m.Fields {
		if skip[f.Name] {
			continue
		}
		props = append(props, validation.Prop{Key: prefix + "." + f.Name, Type: f.SerializedValidator})
	}
	return validation.Object(props)
}
