package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const librarySchema = `
models:
  - name: Book
    fields:
      - {name: title, type: string, length: 200}
      - {name: authorId, type: foreignKey, model: Author, autoJoin: true, mutator: ON DELETE CASCADE}
      - {name: tagIds, type: foreignKeyArray, model: Tag}
      - {name: price, type: decimal, length: 8, decimals: 2, nullable: true}
      - {name: status, type: enum, values: [draft, published]}
      - {name: meta, type: json, length: 500}
    extraDdl:
      - "CREATE INDEX book_title ON Book (title);"
  - name: Author
    fields:
      - {name: name, type: string}
  - name: Tag
    fields:
      - {name: label, type: string, length: 50}
`

func TestLoad(t *testing.T) {
	registry, err := Load(strings.NewReader(librarySchema))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := strings.Join(registry.List(), ","); got != "Book,Author,Tag" {
		t.Errorf("unexpected models %s", got)
	}

	book, _ := registry.Get("Book")
	author, _ := registry.Get("Author")

	fk, ok := book.Field("authorId")
	if !ok || fk.ForeignKey != author || !fk.AutoJoin || fk.ForeignKeyMutator != "ON DELETE CASCADE" {
		t.Errorf("forward reference not resolved: %+v", fk)
	}

	name, _ := author.Field("name")
	if name.SQLType != "varchar(255) NOT NULL" {
		t.Errorf("expected default length, got %s", name.SQLType)
	}

	if len(book.ExtraDDL) != 1 {
		t.Errorf("expected extra DDL, got %v", book.ExtraDDL)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:    "unknown type",
			input:   "models:\n  - name: Book\n    fields:\n      - {name: x, type: blob}\n",
			wantErr: "unknown type",
		},
		{
			name:    "unknown model",
			input:   "models:\n  - name: Book\n    fields:\n      - {name: authorId, type: foreignKey, model: Author}\n",
			wantErr: "unknown model",
		},
		{
			name:    "duplicate model",
			input:   "models:\n  - name: Book\n  - name: Book\n",
			wantErr: "already registered",
		},
		{
			name:    "duplicate field",
			input:   "models:\n  - name: Book\n    fields:\n      - {name: title, type: string}\n      - {name: title, type: string}\n",
			wantErr: "already defined",
		},
		{
			name:    "unknown key",
			input:   "models:\n  - name: Book\n    colour: red\n",
			wantErr: "failed to parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.input))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected %q in %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	if err := os.WriteFile(path, []byte(librarySchema), 0o600); err != nil {
		t.Fatal(err)
	}

	registry, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if registry.Count() != 3 {
		t.Errorf("expected 3 models, got %d", registry.Count())
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
