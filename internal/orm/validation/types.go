// Package validation provides the runtime shape types used to check create/update
// bodies and raw database rows. A Type is a named predicate over dynamic values
// (numbers, strings, maps, slices) that reports the first failing path.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
)

// Type is a named runtime shape
type Type interface {
	// Name is the human readable name reported in errors
	Name() string
	// Validate checks value and returns the first mismatch, or nil
	Validate(value any, path string) *FieldError
}

// Decode validates value against t and returns a *ValidationError on mismatch
func Decode(t Type, value any) error {
	if fe := t.Validate(value, ""); fe != nil {
		return &ValidationError{Errors: []FieldError{*fe}}
	}
	return nil
}

type undefinedValue struct{}

func (undefinedValue) String() string { return "undefined" }

// Undefined is reported as the value of a required key that is absent
var Undefined any = undefinedValue{}

type scalarType struct {
	name  string
	check func(any) bool
}

func (s *scalarType) Name() string { return s.name }

func (s *scalarType) Validate(value any, path string) *FieldError {
	if s.check(value) {
		return nil
	}
	return &FieldError{Field: path, Validator: s.name, Value: value}
}

var (
	// Number accepts any Go integer or floating point value
	Number Type = &scalarType{name: "number", check: IsNumber}
	// String accepts strings
	String Type = &scalarType{name: "string", check: func(v any) bool {
		_, ok := v.(string)
		return ok
	}}
	// Boolean accepts bools
	Boolean Type = &scalarType{name: "boolean", check: func(v any) bool {
		_, ok := v.(bool)
		return ok
	}}
	// Null accepts only nil
	Null Type = &scalarType{name: "null", check: func(v any) bool { return v == nil }}
	// Unknown accepts anything
	Unknown Type = &scalarType{name: "unknown", check: func(any) bool { return true }}
	// Regex accepts strings that compile as regular expressions
	Regex Type = &scalarType{name: "RegexType", check: func(v any) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		_, err := regexp.Compile(s)
		return err == nil
	}}
)

// IsNumber reports whether v holds a Go numeric value
func IsNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}

type literalType struct {
	value any
}

// Literal accepts exactly one value
func Literal(value any) Type {
	return &literalType{value: value}
}

func (l *literalType) Name() string {
	if s, ok := l.value.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprint(l.value)
}

func (l *literalType) Validate(value any, path string) *FieldError {
	if value != nil && reflect.TypeOf(value).Comparable() && value == l.value {
		return nil
	}
	return &FieldError{Field: path, Validator: l.Name(), Value: value}
}

type unionType struct {
	members []Type
}

// Union accepts a value matching any of the member types
func Union(members ...Type) Type {
	return &unionType{members: members}
}

// Nullable is Union(Null, t)
func Nullable(t Type) Type {
	return Union(Null, t)
}

// Enum is a union of string literals
func Enum(values ...string) Type {
	members := make([]Type, 0, len(values))
	for _, v := range values {
		members = append(members, Literal(v))
	}
	return Union(members...)
}

func (u *unionType) Name() string {
	names := make([]string, 0, len(u.members))
	for _, m := range u.members {
		names = append(names, m.Name())
	}
	return "(" + strings.Join(names, " | ") + ")"
}

func (u *unionType) Validate(value any, path string) *FieldError {
	for _, m := range u.members {
		if m.Validate(value, path) == nil {
			return nil
		}
	}
	return &FieldError{Field: path, Validator: u.Name(), Value: value}
}

type arrayType struct {
	elem Type
}

// Array accepts any slice or array whose elements all match elem
func Array(elem Type) Type {
	return &arrayType{elem: elem}
}

func (a *arrayType) Name() string { return "Array<" + a.elem.Name() + ">" }

func (a *arrayType) Validate(value any, path string) *FieldError {
	if value == nil {
		return &FieldError{Field: path, Validator: a.Name(), Value: value}
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return &FieldError{Field: path, Validator: a.Name(), Value: value}
	}
	for i := 0; i < rv.Len(); i++ {
		if fe := a.elem.Validate(rv.Index(i).Interface(), fmt.Sprintf("%s[%d]", path, i)); fe != nil {
			return fe
		}
	}
	return nil
}

// Prop is a named property of an object type
type Prop struct {
	Key  string
	Type Type
}

type objectMode int

const (
	modeType objectMode = iota
	modeExact
	modePartial
)

// ObjectType checks map[string]any values property by property
type ObjectType struct {
	Props    []Prop
	mode     objectMode
	allowNil map[string]bool
}

// Object requires every property and tolerates unknown keys
func Object(props []Prop) *ObjectType {
	return &ObjectType{Props: props, mode: modeType}
}

// Exact requires every property and rejects unknown keys. Keys listed in
// nilOK are tolerated when present with a nil value.
func Exact(props []Prop, nilOK ...string) *ObjectType {
	allow := make(map[string]bool, len(nilOK))
	for _, k := range nilOK {
		allow[k] = true
	}
	return &ObjectType{Props: props, mode: modeExact, allowNil: allow}
}

// Partial makes every property optional; present properties must match
func Partial(props []Prop) *ObjectType {
	return &ObjectType{Props: props, mode: modePartial}
}

// Keys returns the declared property names in declaration order
func (o *ObjectType) Keys() []string {
	keys := make([]string, 0, len(o.Props))
	for _, p := range o.Props {
		keys = append(keys, p.Key)
	}
	return keys
}

// Name implements Type
func (o *ObjectType) Name() string {
	parts := make([]string, 0, len(o.Props))
	for _, p := range o.Props {
		parts = append(parts, p.Key+": "+p.Type.Name())
	}
	body := "{ " + strings.Join(parts, ", ") + " }"
	switch o.mode {
	case modeExact:
		return "Exact<" + body + ">"
	case modePartial:
		return "Partial<" + body + ">"
	default:
		return body
	}
}

// Validate implements Type
func (o *ObjectType) Validate(value any, path string) *FieldError {
	record, ok := value.(map[string]any)
	if !ok {
		return &FieldError{Field: path, Validator: o.Name(), Value: value}
	}

	for _, p := range o.Props {
		v, present := record[p.Key]
		if !present {
			if o.mode == modePartial {
				continue
			}
			return &FieldError{Field: joinPath(path, p.Key), Validator: p.Type.Name(), Value: Undefined}
		}
		if fe := p.Type.Validate(v, joinPath(path, p.Key)); fe != nil {
			return fe
		}
	}

	if o.mode != modeExact {
		return nil
	}

	declared := make(map[string]bool, len(o.Props))
	for _, p := range o.Props {
		declared[p.Key] = true
	}
	extra := make([]string, 0)
	for k, v := range record {
		if declared[k] {
			continue
		}
		if v == nil && o.allowNil[k] {
			continue
		}
		extra = append(extra, k)
	}
	if len(extra) == 0 {
		return nil
	}
	sort.Strings(extra)
	return &FieldError{Field: joinPath(path, extra[0]), Validator: "never", Value: record[extra[0]]}
}

type intersectionType struct {
	members []Type
}

// Intersection requires value to match every member
func Intersection(members ...Type) Type {
	return &intersectionType{members: members}
}

func (i *intersectionType) Name() string {
	names := make([]string, 0, len(i.members))
	for _, m := range i.members {
		names = append(names, m.Name())
	}
	return "(" + strings.Join(names, " & ") + ")"
}

func (i *intersectionType) Validate(value any, path string) *FieldError {
	for _, m := range i.members {
		if fe := m.Validate(value, path); fe != nil {
			return fe
		}
	}
	return nil
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// Each validates every element of records against t, reporting the index of
// the first failing element in the path.
func Each(t Type, records []map[string]any) error {
	for i, r := range records {
		if fe := t.Validate(r, fmt.Sprintf("[%d]", i)); fe != nil {
			return &ValidationError{Errors: []FieldError{*fe}}
		}
	}
	return nil
}
