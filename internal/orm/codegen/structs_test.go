package codegen

import (
	"strings"
	"testing"

	"github.com/conduit-lang/revstore/internal/orm/schema"
)

func TestGoFieldName(t *testing.T) {
	tests := map[string]string{
		"id":           "ID",
		"title":        "Title",
		"authorId":     "AuthorID",
		"tagIds":       "TagIDs",
		"editCommitId": "EditCommitID",
	}
	for in, want := range tests {
		if got := GoFieldName(in); got != want {
			t.Errorf("GoFieldName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGenerateStructs(t *testing.T) {
	registry, _, _, book := newLibrary(t)
	book.Decimal("price", 8, 2, true)
	book.JSON("meta", 500, nil)

	code := GenerateStructs(registry, "models").GoString()

	expected := []string{
		"// Code generated by revstore. DO NOT EDIT.",
		"package models",
		"type Book struct",
		"AuthorID",
		"[]int64",
		"*float64",
		"`json:\"tagIds\"`",
		"func (b *Book) CreateBody() map[string]any",
		"func (b *Book) UpdateBody() map[string]any",
		"body[\"price\"] = *b.Price",
		"type Author struct",
	}
	for _, exp := range expected {
		if !strings.Contains(code, exp) {
			t.Errorf("generated code missing %q\nGot:\n%s", exp, code)
		}
	}

	if strings.Contains(code, "body[\"editDate\"]") {
		t.Error("stamped fields must not be part of create bodies")
	}
}

func TestGoType(t *testing.T) {
	m := schema.NewModel("Thing")
	flag := m.Boolean("flag", true)
	if !isPointer(flag) {
		t.Error("nullable booleans should be pointers")
	}
	meta := m.JSON("meta", 10, nil)
	if isPointer(meta) {
		t.Error("json fields are never pointers")
	}
}
