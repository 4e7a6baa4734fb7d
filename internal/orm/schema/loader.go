package schema

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML representation of a schema
type File struct {
	Models []ModelDef `yaml:"models"`
}

// ModelDef describes one model in a schema file
type ModelDef struct {
	Name     string     `yaml:"name"`
	Fields   []FieldDef `yaml:"fields"`
	ExtraDDL []string   `yaml:"extraDdl"`
}

// FieldDef describes one field in a schema file
type FieldDef struct {
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"`
	Length   int      `yaml:"length"`
	Decimals int      `yaml:"decimals"`
	Nullable bool     `yaml:"nullable"`
	Values   []string `yaml:"values"`
	Model    string   `yaml:"model"`
	AutoJoin bool     `yaml:"autoJoin"`
	Mutator  string   `yaml:"mutator"`
}

// LoadFile reads a YAML schema file into a new registry
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return Load(bytes.NewReader(data))
}

// Load decodes a YAML schema into a new registry. Models are created before
// any field, so foreign keys may reference models declared later in the file.
func Load(r io.Reader) (*Registry, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	registry := NewRegistry()
	for _, def := range file.Models {
		if def.Name == "" {
			return nil, fmt.Errorf("model without name")
		}
		if _, err := registry.Define(def.Name); err != nil {
			return nil, err
		}
	}

	for _, def := range file.Models {
		m, _ := registry.Get(def.Name)
		for _, fd := range def.Fields {
			if err := defineField(registry, m, fd); err != nil {
				return nil, fmt.Errorf("model %s: %w", def.Name, err)
			}
		}
		m.AddDDL(def.ExtraDDL...)
	}

	return registry, nil
}

func defineField(registry *Registry, m *Model, fd FieldDef) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	if fd.Name == "" {
		return fmt.Errorf("field without name")
	}

	target := func() (*Model, error) {
		t, ok := registry.Get(fd.Model)
		if !ok {
			return nil, fmt.Errorf("field %s references unknown model %q", fd.Name, fd.Model)
		}
		return t, nil
	}

	switch Kind(fd.Type) {
	case KindBoolean:
		m.Boolean(fd.Name, fd.Nullable)
	case KindString:
		m.String(fd.Name, lengthOr(fd.Length, 255), fd.Nullable)
	case KindInteger:
		m.Integer(fd.Name, fd.Nullable)
	case KindDecimal:
		m.Decimal(fd.Name, lengthOr(fd.Length, 10), fd.Decimals, fd.Nullable)
	case KindEnum:
		if len(fd.Values) == 0 {
			return fmt.Errorf("enum field %s has no values", fd.Name)
		}
		m.Enum(fd.Name, fd.Values, fd.Nullable)
	case KindDatetime:
		m.Datetime(fd.Name, fd.Nullable)
	case KindJSON:
		m.JSON(fd.Name, lengthOr(fd.Length, 1024), nil)
	case KindRegex:
		m.Regex(fd.Name, lengthOr(fd.Length, 255), fd.Nullable)
	case KindForeignKey:
		t, err := target()
		if err != nil {
			return err
		}
		m.ForeignKey(fd.Name, t, ForeignKeyOptions{AutoJoin: fd.AutoJoin, Nullable: fd.Nullable, Mutator: fd.Mutator})
	case KindForeignKeyArray:
		t, err := target()
		if err != nil {
			return err
		}
		m.ForeignKeyArray(fd.Name, t)
	default:
		return fmt.Errorf("field %s has unknown type %q", fd.Name, fd.Type)
	}

	return nil
}

func lengthOr(length, fallback int) int {
	if length > 0 {
		return length
	}
	return fallback
}
