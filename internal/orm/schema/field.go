package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/conduit-lang/revstore/internal/orm/validation"
)

// Codec converts a field value between its in-memory and stored representations
type Codec func(value any) (any, error)

// Identity is the default Codec
func Identity(value any) (any, error) { return value, nil }

// Kind is the archetype a field was declared with
type Kind string

// Field archetypes
const (
	KindCustom          Kind = "custom"
	KindBoolean         Kind = "boolean"
	KindString          Kind = "string"
	KindInteger         Kind = "integer"
	KindDecimal         Kind = "decimal"
	KindEnum            Kind = "enum"
	KindDatetime        Kind = "datetime"
	KindJSON            Kind = "json"
	KindRegex           Kind = "regex"
	KindForeignKey      Kind = "foreignKey"
	KindForeignKeyArray Kind = "foreignKeyArray"
)

// FieldSpec is the user-facing description of a field before defaults are applied
type FieldSpec struct {
	Name     string
	SQLType  string
	Kind     Kind
	Nullable bool

	SerializedValidator   validation.Type
	DeserializedValidator validation.Type

	// SQLGetter and SQLSetter are single-placeholder SQL fragments: "?" is
	// replaced by a column reference (getter) or bind parameter (setter).
	SQLGetter string
	SQLSetter string

	Serialize   Codec
	Deserialize Codec

	ForeignKey        *Model
	ForeignKeyMutator string
	ForeignKeyArray   bool

	SkipCreateBody bool
	SkipUpdateBody bool
	AutoJoin       bool
}

// Field is a fully-defaulted field descriptor
type Field struct {
	Name     string
	SQLType  string
	Kind     Kind
	Nullable bool

	SerializedValidator   validation.Type
	DeserializedValidator validation.Type

	SQLGetter string
	SQLSetter string

	Serialize   Codec
	Deserialize Codec

	ForeignKey        *Model
	ForeignKeyMutator string
	ForeignKeyArray   bool

	CreateBody bool
	UpdateBody bool
	AutoJoin   bool
}

// PrepareField applies defaults to spec
func PrepareField(spec FieldSpec) *Field {
	f := &Field{
		Name:                  spec.Name,
		SQLType:               spec.SQLType,
		Kind:                  spec.Kind,
		Nullable:              spec.Nullable,
		SerializedValidator:   spec.SerializedValidator,
		DeserializedValidator: spec.DeserializedValidator,
		SQLGetter:             spec.SQLGetter,
		SQLSetter:             spec.SQLSetter,
		Serialize:             spec.Serialize,
		Deserialize:           spec.Deserialize,
		ForeignKey:            spec.ForeignKey,
		ForeignKeyMutator:     spec.ForeignKeyMutator,
		ForeignKeyArray:       spec.ForeignKeyArray,
		CreateBody:            !spec.SkipCreateBody,
		UpdateBody:            !spec.SkipUpdateBody,
		AutoJoin:              spec.AutoJoin,
	}

	if f.Kind == "" {
		f.Kind = KindCustom
	}
	if f.SerializedValidator == nil {
		f.SerializedValidator = validation.Unknown
	}
	if f.DeserializedValidator == nil {
		f.DeserializedValidator = f.SerializedValidator
	}
	if f.SQLGetter == "" {
		f.SQLGetter = "?"
	}
	if f.SQLSetter == "" {
		f.SQLSetter = "?"
	}
	if f.Serialize == nil {
		f.Serialize = Identity
	}
	if f.Deserialize == nil {
		f.Deserialize = Identity
	}

	return f
}

// Getter renders the getter expression for a column reference
func (f *Field) Getter(column string) string {
	return strings.Replace(f.SQLGetter, "?", column, 1)
}

// Select renders the getter for this field on table. Foreign-key arrays have
// no fast table column; their getter is bound to the owner id instead.
func (f *Field) Select(table string) string {
	column := "`" + table + "`.`" + f.Name + "`"
	if f.ForeignKeyArray {
		column = "`" + table + "`.`id`"
	}
	return f.Getter(column)
}

// IsScalarForeignKey reports whether f is a single-valued reference
func (f *Field) IsScalarForeignKey() bool {
	return f.ForeignKey != nil && !f.ForeignKeyArray
}

// IsForeignKeyArray reports whether f is stored in a side join table
func (f *Field) IsForeignKeyArray() bool {
	return f.ForeignKey != nil && f.ForeignKeyArray
}

// AssociationName is the jointure key of a scalar foreign key: "authorId" -> "author"
func (f *Field) AssociationName() string {
	return strings.Replace(f.Name, "Id", "", 1)
}

const (
	timestampGetter = "UNIX_TIMESTAMP(?) * 1000"
	timestampSetter = "FROM_UNIXTIME(? DIV 1000)"
)

func nullability(nullable bool) string {
	if nullable {
		return "NULL"
	}
	return "NOT NULL"
}

func maybeNullable(t validation.Type, nullable bool) validation.Type {
	if nullable {
		return validation.Nullable(t)
	}
	return t
}

func deserializeBoolean(v any) (any, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return b, nil
	}
	n, ok := AsInt64(v)
	if !ok {
		return nil, fmt.Errorf("cannot deserialize %T as boolean", v)
	}
	return n != 0, nil
}

func serializeDecimal(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	f, ok := AsFloat64(v)
	if !ok {
		return nil, fmt.Errorf("cannot serialize %T as decimal", v)
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

func deserializeDecimal(v any) (any, error) {
	switch d := v.(type) {
	case nil:
		return nil, nil
	case string:
		f, err := strconv.ParseFloat(d, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot deserialize %q as decimal: %w", d, err)
		}
		return f, nil
	}
	f, ok := AsFloat64(v)
	if !ok {
		return nil, fmt.Errorf("cannot deserialize %T as decimal", v)
	}
	return f, nil
}

func serializeJSON(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func deserializeJSON(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("cannot deserialize JSON: %w", err)
	}
	return out, nil
}

func serializeIDArray(v any) (any, error) {
	ids, err := AsInt64Slice(v)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]bool, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	b, err := json.Marshal(unique)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func deserializeIDArray(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return AsInt64Slice(v)
	}
	ids := make([]int64, 0)
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil, fmt.Errorf("cannot deserialize id array %q: %w", s, err)
	}
	return ids, nil
}
