// Package schema compiles declarative field definitions into the metadata
// shared by DDL generation, body validation, revision writes and queries.
//
// A Model always carries the implicit fields id, editCommitId and editDate,
// plus the revision-only delete markers deleteCommitId and deleteDate which
// exist on the revision table but never on the fast table.
package schema

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/conduit-lang/revstore/internal/orm/validation"
)

// Implicit field names
const (
	FieldID             = "id"
	FieldEditCommitID   = "editCommitId"
	FieldEditDate       = "editDate"
	FieldDeleteCommitID = "deleteCommitId"
	FieldDeleteDate     = "deleteDate"
)

// Model is the field set of one persisted entity type
type Model struct {
	Name           string
	Fields         []*Field
	RevisionFields []*Field
	ExtraDDL       []string

	registry *Registry
}

// NewModel creates a model holding the implicit and revision-only fields.
// The model is not registered; use Registry.Define or Registry.Register.
func NewModel(name string) *Model {
	m := &Model{Name: name}

	m.Fields = []*Field{
		PrepareField(FieldSpec{
			Name:                FieldID,
			SQLType:             "int(11) NOT NULL",
			Kind:                KindInteger,
			SerializedValidator: validation.Number,
			SkipCreateBody:      true,
		}),
		PrepareField(FieldSpec{
			Name:                FieldEditCommitID,
			SQLType:             "int(11) NOT NULL",
			Kind:                KindInteger,
			SerializedValidator: validation.Number,
			SkipUpdateBody:      true,
		}),
		PrepareField(FieldSpec{
			Name:                FieldEditDate,
			SQLType:             "datetime NOT NULL DEFAULT current_timestamp()",
			Kind:                KindDatetime,
			SerializedValidator: validation.Number,
			SQLGetter:           timestampGetter,
			SQLSetter:           timestampSetter,
			SkipUpdateBody:      true,
		}),
	}

	m.RevisionFields = []*Field{
		PrepareField(FieldSpec{
			Name:                FieldDeleteCommitID,
			SQLType:             "int(11) DEFAULT NULL",
			Kind:                KindInteger,
			Nullable:            true,
			SerializedValidator: validation.Nullable(validation.Number),
		}),
		PrepareField(FieldSpec{
			Name:                FieldDeleteDate,
			SQLType:             "datetime DEFAULT NULL",
			Kind:                KindDatetime,
			Nullable:            true,
			SerializedValidator: validation.Nullable(validation.Number),
			SQLGetter:           timestampGetter,
			SQLSetter:           timestampSetter,
		}),
	}

	return m
}

// Registry returns the registry the model belongs to, or nil
func (m *Model) Registry() *Registry {
	return m.registry
}

// Table is the fast (current state) table name
func (m *Model) Table() string { return m.Name }

// RevisionTable is the append-only revision log table name
func (m *Model) RevisionTable() string { return m.Name + "Revision" }

// JoinTable is the side table holding the ids of a foreign-key array field
func (m *Model) JoinTable(f *Field) string { return m.Name + "_" + f.Name }

// RowPrefix is the model name with its first rune lowered, used to alias
// base columns ("BookTag" -> "bookTag", "Book_tag" -> "book_tag").
func (m *Model) RowPrefix() string {
	r, size := utf8.DecodeRuneInString(m.Name)
	if r == utf8.RuneError {
		return m.Name
	}
	return string(unicode.ToLower(r)) + m.Name[size:]
}

// AddField registers a fully described field. It panics when a field with
// the same name already exists.
func (m *Model) AddField(spec FieldSpec) *Field {
	if _, exists := m.Field(spec.Name); exists {
		panic(fmt.Sprintf("model %s: field %s is already defined", m.Name, spec.Name))
	}
	f := PrepareField(spec)
	m.Fields = append(m.Fields, f)
	return f
}

// Field looks up a declared field by name
func (m *Model) Field(name string) (*Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// FieldNames returns declared field names in declaration order
func (m *Model) FieldNames() []string {
	names := make([]string, 0, len(m.Fields))
	for _, f := range m.Fields {
		names = append(names, f.Name)
	}
	return names
}

// FastFields returns the fields stored on the fast table (everything but foreign-key arrays)
func (m *Model) FastFields() []*Field {
	return m.filter(func(f *Field) bool { return !f.ForeignKeyArray })
}

// ForeignKeys returns the scalar foreign-key fields
func (m *Model) ForeignKeys() []*Field {
	return m.filter((*Field).IsScalarForeignKey)
}

// ForeignKeyArrays returns the foreign-key array fields
func (m *Model) ForeignKeyArrays() []*Field {
	return m.filter((*Field).IsForeignKeyArray)
}

// CreateBodyFields returns the fields accepted in create bodies
func (m *Model) CreateBodyFields() []*Field {
	return m.filter(func(f *Field) bool { return f.CreateBody })
}

// UpdateBodyFields returns the fields accepted in update bodies
func (m *Model) UpdateBodyFields() []*Field {
	return m.filter(func(f *Field) bool { return f.UpdateBody })
}

// AutoJoinFields returns scalar foreign keys flagged for automatic inclusion
func (m *Model) AutoJoinFields() []*Field {
	return m.filter(func(f *Field) bool { return f.IsScalarForeignKey() && f.AutoJoin })
}

// Foreigns returns the distinct models referenced by this model, in field order
func (m *Model) Foreigns() []*Model {
	seen := make(map[*Model]bool)
	foreigns := make([]*Model, 0)
	for _, f := range m.Fields {
		if f.ForeignKey == nil || seen[f.ForeignKey] {
			continue
		}
		seen[f.ForeignKey] = true
		foreigns = append(foreigns, f.ForeignKey)
	}
	return foreigns
}

func (m *Model) filter(keep func(*Field) bool) []*Field {
	out := make([]*Field, 0, len(m.Fields))
	for _, f := range m.Fields {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}

// Boolean stores a tinyint(1); rows deserialize to bool
func (m *Model) Boolean(name string, nullable bool) *Field {
	return m.AddField(FieldSpec{
		Name:                  name,
		SQLType:               "tinyint(1) " + nullability(nullable),
		Kind:                  KindBoolean,
		Nullable:              nullable,
		SerializedValidator:   maybeNullable(validation.Number, nullable),
		DeserializedValidator: maybeNullable(validation.Boolean, nullable),
		Deserialize:           deserializeBoolean,
	})
}

// String stores a varchar(length)
func (m *Model) String(name string, length int, nullable bool) *Field {
	return m.AddField(FieldSpec{
		Name:                name,
		SQLType:             fmt.Sprintf("varchar(%d) %s", length, nullability(nullable)),
		Kind:                KindString,
		Nullable:            nullable,
		SerializedValidator: maybeNullable(validation.String, nullable),
	})
}

// Integer stores an int(11)
func (m *Model) Integer(name string, nullable bool) *Field {
	return m.AddField(FieldSpec{
		Name:                name,
		SQLType:             "int(11) " + nullability(nullable),
		Kind:                KindInteger,
		Nullable:            nullable,
		SerializedValidator: maybeNullable(validation.Number, nullable),
	})
}

// Decimal stores a decimal(length, decimals). The driver returns decimals as
// strings; bodies and entities carry float64.
func (m *Model) Decimal(name string, length, decimals int, nullable bool) *Field {
	return m.AddField(FieldSpec{
		Name:                  name,
		SQLType:               fmt.Sprintf("decimal(%d, %d) %s", length, decimals, nullability(nullable)),
		Kind:                  KindDecimal,
		Nullable:              nullable,
		SerializedValidator:   maybeNullable(validation.String, nullable),
		DeserializedValidator: maybeNullable(validation.Number, nullable),
		Serialize:             serializeDecimal,
		Deserialize:           deserializeDecimal,
	})
}

// Enum stores one of values
func (m *Model) Enum(name string, values []string, nullable bool) *Field {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, "'"+v+"'")
	}
	return m.AddField(FieldSpec{
		Name:                name,
		SQLType:             fmt.Sprintf("enum(%s) %s", strings.Join(quoted, ","), nullability(nullable)),
		Kind:                KindEnum,
		Nullable:            nullable,
		SerializedValidator: maybeNullable(validation.Enum(values...), nullable),
	})
}

// Datetime stores a datetime exposed as epoch milliseconds
func (m *Model) Datetime(name string, nullable bool) *Field {
	return m.AddField(FieldSpec{
		Name:                name,
		SQLType:             "datetime " + nullability(nullable),
		Kind:                KindDatetime,
		Nullable:            nullable,
		SerializedValidator: maybeNullable(validation.Number, nullable),
		SQLGetter:           timestampGetter,
		SQLSetter:           timestampSetter,
	})
}

// JSON stores an arbitrary document in a VARCHAR(length) column; shape
// validates the decoded value.
func (m *Model) JSON(name string, length int, shape validation.Type) *Field {
	if shape == nil {
		shape = validation.Unknown
	}
	return m.AddField(FieldSpec{
		Name:                  name,
		SQLType:               fmt.Sprintf("VARCHAR(%d) NOT NULL", length),
		Kind:                  KindJSON,
		SerializedValidator:   validation.String,
		DeserializedValidator: shape,
		Serialize:             serializeJSON,
		Deserialize:           deserializeJSON,
	})
}

// Regex stores a string that must compile as a regular expression
func (m *Model) Regex(name string, length int, nullable bool) *Field {
	return m.AddField(FieldSpec{
		Name:                name,
		SQLType:             fmt.Sprintf("varchar(%d) %s", length, nullability(nullable)),
		Kind:                KindRegex,
		Nullable:            nullable,
		SerializedValidator: maybeNullable(validation.Regex, nullable),
	})
}

// ForeignKeyOptions tunes a scalar foreign key
type ForeignKeyOptions struct {
	AutoJoin bool
	Nullable bool
	// Mutator is appended verbatim to the REFERENCES clause, e.g. "ON DELETE CASCADE"
	Mutator string
}

// ForeignKey stores the id of a target row. It panics when target is nil.
func (m *Model) ForeignKey(name string, target *Model, opts ForeignKeyOptions) *Field {
	if target == nil {
		panic(fmt.Sprintf("model %s: foreign key %s references a nil model", m.Name, name))
	}
	return m.AddField(FieldSpec{
		Name:                name,
		SQLType:             "int(11) " + nullability(opts.Nullable),
		Kind:                KindForeignKey,
		Nullable:            opts.Nullable,
		SerializedValidator: maybeNullable(validation.Number, opts.Nullable),
		ForeignKey:          target,
		ForeignKeyMutator:   opts.Mutator,
		AutoJoin:            opts.AutoJoin,
	})
}

// ForeignKeyArray stores a list of target ids. The revision table keeps the
// JSON payload; the current state lives in the <Model>_<name> join table and
// is read back through a correlated subquery on the owner id (the getter
// placeholder). It panics when target is nil.
func (m *Model) ForeignKeyArray(name string, target *Model) *Field {
	if target == nil {
		panic(fmt.Sprintf("model %s: foreign key array %s references a nil model", m.Name, name))
	}
	joinTable := m.Name + "_" + name
	return m.AddField(FieldSpec{
		Name:                  name,
		SQLType:               "text NOT NULL",
		Kind:                  KindForeignKeyArray,
		SerializedValidator:   validation.String,
		DeserializedValidator: validation.Array(validation.Number),
		Serialize:             serializeIDArray,
		Deserialize:           deserializeIDArray,
		ForeignKey:            target,
		ForeignKeyArray:       true,
		SQLGetter:             "(CONCAT('[', IFNULL((SELECT GROUP_CONCAT(foreignId) FROM `" + joinTable +
			"` WHERE ownerId = ? GROUP BY ownerId), ''), ']'))",
	})
}

// AddDDL appends statements emitted verbatim after the generated tables
func (m *Model) AddDDL(statements ...string) {
	m.ExtraDDL = append(m.ExtraDDL, statements...)
}
